// Package collector gathers raw image URL candidates from three channels:
// the caller's own list, a scrape of the source page, and Perplexity image
// search. Channels are tried in priority order and each one degrades to
// nothing on failure without touching the others.
package collector

import (
	"context"
	"time"

	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/pkg/metrics"
	"go.uber.org/zap"
)

// searchThreshold: the search channel only runs when the first two channels
// produced fewer candidates than this.
const searchThreshold = 5

// Collector merges candidates from all channels, deduplicating by exact URL
// while preserving first-seen order and provenance.
type Collector struct {
	scraper   *Scraper
	search    *SearchClient
	perSource time.Duration
	logger    *zap.Logger
}

// New wires a Collector from its channel clients.
func New(scraper *Scraper, search *SearchClient, perSource time.Duration, logger *zap.Logger) *Collector {
	return &Collector{scraper: scraper, search: search, perSource: perSource, logger: logger}
}

// Search exposes the specific-query search channel for the orchestrator's
// retry strategies. Results carry the perplexity origin.
func (c *Collector) Search(ctx context.Context, title, research string, attempt int) []models.Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.perSource)
	defer cancel()

	metrics.SearchCalls.WithLabelValues("specific").Inc()
	urls, err := c.search.Search(ctx, title, research, attempt)
	if err != nil {
		c.logger.Warn("image search failed", zap.Int("attempt", attempt), zap.Error(err))
		return nil
	}
	return Dedup(asCandidates(urls, models.OriginPerplexity))
}

// SearchGeneric exposes the broad-topic search channel used as last resort.
func (c *Collector) SearchGeneric(ctx context.Context, topic string, attempt int) []models.Candidate {
	ctx, cancel := context.WithTimeout(ctx, c.perSource)
	defer cancel()

	metrics.SearchCalls.WithLabelValues("generic").Inc()
	urls, err := c.search.SearchGeneric(ctx, topic, attempt)
	if err != nil {
		c.logger.Warn("generic image search failed", zap.String("topic", topic), zap.Int("attempt", attempt), zap.Error(err))
		return nil
	}
	return Dedup(asCandidates(urls, models.OriginPerplexity))
}

// CollectAll runs the three channels in strict priority order:
//  1. user-supplied candidates, verbatim;
//  2. images scraped from the source URL, under the per-source budget;
//  3. Perplexity search, only when (1)+(2) stay below the threshold.
//
// The returned slice contains each distinct URL exactly once in first-seen
// order; the first occurrence's origin wins. searched reports whether the
// search channel ran, so retry strategies know the first query phrasing has
// already been spent.
func (c *Collector) CollectAll(ctx context.Context, req models.ImageRequest) (unique []models.Candidate, searched bool) {
	var all []models.Candidate

	if len(req.Images) > 0 {
		c.logger.Info("using user-provided candidates", zap.Int("count", len(req.Images)))
		all = append(all, asCandidates(req.Images, models.OriginCandidate)...)
	}

	if req.SourceURL != "" {
		scrapeCtx, cancel := context.WithTimeout(ctx, c.perSource)
		scraped, err := c.scraper.Scrape(scrapeCtx, req.SourceURL)
		cancel()
		if err != nil {
			c.logger.Warn("scraping source url failed", zap.String("url", req.SourceURL), zap.Error(err))
		} else {
			c.logger.Info("scraped source url", zap.String("url", req.SourceURL), zap.Int("count", len(scraped)))
			all = append(all, asCandidates(scraped, models.OriginSite)...)
		}
	}

	if len(all) < searchThreshold {
		searched = true
		metrics.SearchCalls.WithLabelValues("specific").Inc()
		searchCtx, cancel := context.WithTimeout(ctx, c.perSource)
		found, err := c.search.Search(searchCtx, req.Title, req.Research, 1)
		cancel()
		if err != nil {
			c.logger.Warn("image search failed", zap.Error(err))
		} else {
			c.logger.Info("image search results", zap.Int("count", len(found)))
			all = append(all, asCandidates(found, models.OriginPerplexity)...)
		}
	}

	unique = Dedup(all)
	c.logger.Info("collected candidates", zap.Int("total", len(all)), zap.Int("unique", len(unique)))
	return unique, searched
}

// Dedup removes repeated URLs, keeping the first occurrence (and with it the
// first origin).
func Dedup(candidates []models.Candidate) []models.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]models.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if _, dup := seen[cand.URL]; dup {
			continue
		}
		seen[cand.URL] = struct{}{}
		out = append(out, cand)
	}
	return out
}

func asCandidates(urls []string, origin models.Origin) []models.Candidate {
	out := make([]models.Candidate, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		out = append(out, models.Candidate{URL: u, Origin: origin})
	}
	return out
}
