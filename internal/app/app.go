// Package app wires configuration, the candidate pipeline and the HTTP
// surface into one runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/middleware"
	"github.com/simple-flow/find-image/internal/modules/cache"
	"github.com/simple-flow/find-image/internal/modules/collector"
	"github.com/simple-flow/find-image/internal/modules/evaluator"
	"github.com/simple-flow/find-image/internal/modules/finder"
	"github.com/simple-flow/find-image/internal/modules/processor"
	"github.com/simple-flow/find-image/internal/modules/storage"
	pkgcron "github.com/simple-flow/find-image/internal/pkg/cron"
	"github.com/simple-flow/find-image/internal/pkg/fetch"
	"go.uber.org/zap"
)

// App holds all application dependencies.
type App struct {
	cfg     *config.AppConfig
	router  *gin.Engine
	logger  *zap.Logger
	cancel  context.CancelFunc
	sched   *pkgcron.Scheduler
	storage *storage.Storage
}

// New initializes the application: cache store → pipeline → routes → cron.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(buildCORS(cfg))

	store, err := newCacheStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("cache store: %w", err)
	}

	// One client per timeout profile; probes share the download budget.
	downloadClient := fetch.New(cfg.Timeouts.Download(), cfg.Scrape.UserAgent)

	resultCache := cache.New(store, downloadClient, cacheTTL(cfg), logger)

	scraper := collector.NewScraper(cfg.Scrape.RenderEndpoint, cfg.Scrape.UserAgent,
		cfg.Timeouts.PageLoad(), cfg.Images.MinDimension, logger)
	search := collector.NewSearchClient(cfg.Search, logger)
	candidates := collector.New(scraper, search, cfg.Timeouts.PerSource(), logger)

	provider, err := evaluator.NewProvider(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("vision provider: %w", err)
	}
	eval := evaluator.New(provider, downloadClient, logger)

	proc := processor.New(downloadClient, cfg.Images, logger)

	files, err := storage.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	svc := finder.New(resultCache, candidates, eval, proc, files, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	sched := pkgcron.New(logger)

	app := &App{cfg: cfg, router: router, logger: logger, cancel: cancel, sched: sched, storage: files}
	app.registerRoutes(svc)
	app.registerCronJobs()
	go sched.Start(ctx)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background goroutines.
func (a *App) Shutdown() { a.cancel() }

func newCacheStore(cfg *config.AppConfig, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisStore(cfg.Cache.RedisURL, cacheTTL(cfg))
	default:
		return cache.NewFileStore(cfg.Paths.CacheFile, logger)
	}
}

func cacheTTL(cfg *config.AppConfig) time.Duration {
	return time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour
}
