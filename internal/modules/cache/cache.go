// Package cache maps a fingerprint of the request to a previously computed
// decision. An entry is reused only while it is fresh (age within TTL) and its
// stored image URL still answers a HEAD probe; either violation evicts that
// single entry and reads as a miss.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/simple-flow/find-image/internal/models"
	"go.uber.org/zap"
)

// Entry is one cached decision with its write timestamp.
type Entry struct {
	Response models.ImageResponse `json:"response"`
	CachedAt time.Time            `json:"cached_at"`
}

// Store is the durable backing for cache entries. Implementations persist
// synchronously: when Set returns the entry is on disk (or in Redis).
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}

// Prober checks whether a previously served image URL is still reachable.
type Prober interface {
	Alive(ctx context.Context, url string) bool
}

// Cache validates freshness and liveness on top of a Store.
type Cache struct {
	store  Store
	prober Prober
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Cache with the given TTL.
func New(store Store, prober Prober, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{store: store, prober: prober, ttl: ttl, logger: logger, now: time.Now}
}

// Fingerprint derives the deterministic cache key from the request fields.
// Optional fields participate as empty strings so field order can never
// change the key.
func Fingerprint(req models.ImageRequest) string {
	content := strings.Join([]string{
		req.Title,
		req.Research,
		req.SourceURL,
		strings.Join(req.Images, ","),
	}, "|")
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached response for req if present, fresh and live. Stale
// entries and entries whose image URL no longer resolves are both evicted and
// reported as a plain miss.
func (c *Cache) Get(ctx context.Context, req models.ImageRequest) (models.ImageResponse, bool) {
	key := Fingerprint(req)

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.Error(err))
		return models.ImageResponse{}, false
	}
	if !ok {
		return models.ImageResponse{}, false
	}

	if c.now().Sub(entry.CachedAt) > c.ttl {
		c.logger.Info("cache entry expired", zap.String("key", shortKey(key)))
		c.evict(ctx, key)
		return models.ImageResponse{}, false
	}

	if entry.Response.ImageURL == "" || !c.prober.Alive(ctx, entry.Response.ImageURL) {
		c.logger.Info("cached image url no longer reachable", zap.String("key", shortKey(key)))
		c.evict(ctx, key)
		return models.ImageResponse{}, false
	}

	resp := entry.Response
	resp.Cached = true
	c.logger.Info("cache hit", zap.String("key", shortKey(key)))
	return resp, true
}

// Set stores the response for req, stamped with the current time. Concurrent
// writers for the same fingerprint race last-write-wins; values are
// idempotent-equivalent so that is acceptable.
func (c *Cache) Set(ctx context.Context, req models.ImageRequest, resp models.ImageResponse) {
	key := Fingerprint(req)
	entry := Entry{Response: resp, CachedAt: c.now()}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.logger.Warn("cache write failed", zap.Error(err))
		return
	}
	c.logger.Info("cached result", zap.String("key", shortKey(key)))
}

func (c *Cache) evict(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.logger.Warn("cache eviction failed", zap.Error(err))
	}
}

func shortKey(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
