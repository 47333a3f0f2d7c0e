// Package finder is the fallback orchestrator: it sequences collection,
// evaluation and processing, escalating through broader search strategies
// until exactly one response is produced for the request.
package finder

import (
	"context"
	"errors"
	"time"

	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/modules/evaluator"
	"github.com/simple-flow/find-image/internal/pkg/metrics"
	"go.uber.org/zap"
)

// ErrExhausted is returned when candidates were discovered but every
// strategy failed to turn one into a deliverable image. It is the only
// non-timeout failure a request can surface.
var ErrExhausted = errors.New("image search exhausted: no strategy produced a usable image")

const (
	searchAttempts  = 2
	genericAttempts = 2
	blindScore      = 5
)

// CandidateSource is the collector seen by the orchestrator.
type CandidateSource interface {
	CollectAll(ctx context.Context, req models.ImageRequest) ([]models.Candidate, bool)
	Search(ctx context.Context, title, research string, attempt int) []models.Candidate
	SearchGeneric(ctx context.Context, topic string, attempt int) []models.Candidate
}

// Evaluator ranks candidate URLs. The error is non-nil only for quota
// rejections.
type Evaluator interface {
	Analyze(ctx context.Context, urls []string, title, research string, opts evaluator.Options) ([]models.ImageEvaluation, error)
}

// Processor turns one candidate URL into a deliverable image, or nil.
type Processor interface {
	Process(ctx context.Context, url string) *models.ProcessedImage
}

// Store persists processed bytes and returns their public URL.
type Store interface {
	Save(ctx context.Context, img *models.ProcessedImage) (string, error)
}

// ResultCache short-circuits repeated requests.
type ResultCache interface {
	Get(ctx context.Context, req models.ImageRequest) (models.ImageResponse, bool)
	Set(ctx context.Context, req models.ImageRequest, resp models.ImageResponse)
}

// Finder wires the pipeline stages together. All collaborators are injected
// so tests can substitute doubles for the network-bound ones.
type Finder struct {
	cache      ResultCache
	collector  CandidateSource
	evaluator  Evaluator
	processor  Processor
	storage    Store
	defaultURL string
	total      time.Duration
	logger     *zap.Logger
}

func New(cache ResultCache, collector CandidateSource, eval Evaluator, proc Processor, store Store, cfg *config.AppConfig, logger *zap.Logger) *Finder {
	return &Finder{
		cache:      cache,
		collector:  collector,
		evaluator:  eval,
		processor:  proc,
		storage:    store,
		defaultURL: cfg.Images.DefaultURL,
		total:      cfg.Timeouts.Total(),
		logger:     logger.Named("finder"),
	}
}

// Find produces exactly one response for the request. The error is either
// ErrExhausted or the overall deadline; every other failure mode resolves
// internally, at worst to the default image.
func (f *Finder) Find(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	start := time.Now()
	defer func() { metrics.RequestDuration.Observe(time.Since(start).Seconds()) }()

	if resp, ok := f.cache.Get(ctx, req); ok {
		f.logger.Info("returning cached result", zap.String("title", req.Title))
		metrics.CacheHits.Inc()
		metrics.RequestsTotal.WithLabelValues(resp.ToolUsed, "ok").Inc()
		return resp, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.total)
	defer cancel()

	resp, err := f.run(ctx, req)
	if err != nil {
		status := "exhausted"
		if errors.Is(err, context.DeadlineExceeded) {
			status = "timeout"
		}
		metrics.RequestsTotal.WithLabelValues("none", status).Inc()
		return models.ImageResponse{}, err
	}

	// Only settled outcomes are cached; failures and timeouts never are.
	f.cache.Set(context.WithoutCancel(ctx), req, resp)
	metrics.RequestsTotal.WithLabelValues(resp.ToolUsed, "ok").Inc()
	return resp, nil
}

func (f *Finder) run(ctx context.Context, req models.ImageRequest) (models.ImageResponse, error) {
	m := newMachine(f.logger)
	sawCandidates := false

	m.to(StateCollecting, StrategyInitial, 1)
	candidates, searched := f.collector.CollectAll(ctx, req)
	if len(candidates) > 0 {
		sawCandidates = true
		if resp, ok := f.tryShortlist(ctx, m, req, candidates, evaluator.Options{}, ""); ok {
			return resp, nil
		}
	}

	// Specific search with alternate phrasing. The first phrasing may have
	// been spent during collection already.
	firstAttempt := 1
	if searched {
		firstAttempt = 2
	}
	for attempt := firstAttempt; attempt <= searchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.ImageResponse{}, err
		}
		m.to(StateRetrying, StrategySearchRetry, attempt)
		candidates := f.collector.Search(ctx, req.Title, req.Research, attempt)
		if len(candidates) == 0 {
			continue
		}
		sawCandidates = true
		if resp, ok := f.tryShortlist(ctx, m, req, candidates, evaluator.Options{}, "perplexity"); ok {
			return resp, nil
		}
	}

	// Broad topic search with a lowered floor. A quota failure here
	// downgrades to blind selection instead of giving up.
	topic := TopicFor(req.Title + " " + req.Research)
	opts := evaluator.Options{Floor: evaluator.FallbackFloor, FallbackMode: true}
	for attempt := 1; attempt <= genericAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return models.ImageResponse{}, err
		}
		m.to(StateRetrying, StrategyGeneric, attempt)
		candidates := f.collector.SearchGeneric(ctx, topic, attempt)
		if len(candidates) == 0 {
			continue
		}
		sawCandidates = true
		if resp, ok := f.tryShortlist(ctx, m, req, candidates, opts, "fallback (perplexity)"); ok {
			return resp, nil
		}
	}

	if sawCandidates {
		m.to(StateExhausted, m.strategy, m.attempt)
		return models.ImageResponse{}, ErrExhausted
	}

	m.to(StateDone, m.strategy, m.attempt)
	f.logger.Warn("no candidates discovered anywhere, serving default image")
	return f.defaultResponse(), nil
}

// tryShortlist runs one evaluate-then-process pass over candidates. tool
// overrides per-candidate provenance when non-empty.
func (f *Finder) tryShortlist(ctx context.Context, m *machine, req models.ImageRequest, candidates []models.Candidate, opts evaluator.Options, tool string) (models.ImageResponse, bool) {
	originByURL := make(map[string]models.Origin, len(candidates))
	urls := make([]string, 0, len(candidates))
	for _, cand := range candidates {
		originByURL[cand.URL] = cand.Origin
		urls = append(urls, cand.URL)
	}

	m.to(StateEvaluating, m.strategy, m.attempt)
	evals, err := f.evaluator.Analyze(ctx, urls, req.Title, req.Research, opts)
	if err != nil {
		if !opts.FallbackMode || !errors.Is(err, evaluator.ErrQuotaExceeded) {
			return models.ImageResponse{}, false
		}
		// Quota is gone: process the raw search order without judgment.
		m.to(StateProcessing, StrategyBlind, m.attempt)
		return f.processBlind(ctx, m, urls, tool)
	}

	m.to(StateProcessing, m.strategy, m.attempt)
	for _, eval := range evals {
		processed := f.processor.Process(ctx, eval.ImageURL)
		if processed == nil {
			continue
		}

		usedTool := tool
		if usedTool == "" {
			usedTool = string(originByURL[eval.ImageURL])
		}
		resp, err := f.buildResponse(ctx, eval, processed, usedTool)
		if err != nil {
			f.logger.Error("persisting processed image failed", zap.Error(err))
			continue
		}
		m.to(StateDone, m.strategy, m.attempt)
		return resp, true
	}
	return models.ImageResponse{}, false
}

// processBlind tries candidates in their raw order and reports a neutral
// verdict for whichever survives.
func (f *Finder) processBlind(ctx context.Context, m *machine, urls []string, tool string) (models.ImageResponse, bool) {
	for _, u := range urls {
		processed := f.processor.Process(ctx, u)
		if processed == nil {
			continue
		}
		eval := models.ImageEvaluation{
			ImageURL:          u,
			RelevanceScore:    blindScore,
			TemporalRelevance: "not_applicable",
			WatermarkSeverity: "none",
			Reasoning:         "Selected without quality evaluation (vision quota exceeded)",
		}
		resp, err := f.buildResponse(ctx, eval, processed, tool)
		if err != nil {
			f.logger.Error("persisting processed image failed", zap.Error(err))
			continue
		}
		m.to(StateDone, StrategyBlind, m.attempt)
		return resp, true
	}
	return models.ImageResponse{}, false
}

func (f *Finder) buildResponse(ctx context.Context, eval models.ImageEvaluation, processed *models.ProcessedImage, tool string) (models.ImageResponse, error) {
	imageURL := eval.ImageURL
	if processed.NeedsProcessing {
		saved, err := f.storage.Save(ctx, processed)
		if err != nil {
			return models.ImageResponse{}, err
		}
		imageURL = saved
	}

	return models.ImageResponse{
		ImageURL:          imageURL,
		OriginalURL:       eval.ImageURL,
		ToolUsed:          tool,
		ImageDescription:  eval.Reasoning,
		Format:            processed.Format,
		Dimensions:        processed.Dimensions,
		QualityScore:      eval.RelevanceScore,
		TemporalRelevance: eval.TemporalRelevance,
		WatermarkStatus:   eval.WatermarkSeverity,
		Cached:            false,
		Found:             true,
	}, nil
}

func (f *Finder) defaultResponse() models.ImageResponse {
	return models.ImageResponse{
		ImageURL:          f.defaultURL,
		OriginalURL:       f.defaultURL,
		ToolUsed:          "default",
		ImageDescription:  "Default fallback image - no suitable image found",
		Format:            "png",
		Dimensions:        "1280x720",
		QualityScore:      1,
		TemporalRelevance: "not_applicable",
		WatermarkStatus:   "none",
		Cached:            false,
		Found:             false,
	}
}
