// Package evaluator submits a bounded batch of candidate URLs to a
// vision-capable model with a structured scoring rubric and turns the answer
// into a priority-ordered shortlist. Internal failures yield an empty
// shortlist; only quota rejections surface, so the caller can fall back to
// blind selection.
package evaluator

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/pkg/fetch"
	"github.com/simple-flow/find-image/internal/pkg/urlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// maxProbes bounds the accessibility fan-out.
	maxProbes = 20
	// batchSize bounds the per-call vision cost: each image is billed and
	// adds latency.
	batchSize = 5
	// maxImageBytes rejects assets the model cannot usefully consume.
	maxImageBytes = 10 * 1024 * 1024

	// DefaultFloor is the relevance floor outside fallback modes.
	DefaultFloor = 8
	// FallbackFloor applies in degraded generic-search mode.
	FallbackFloor = 6
)

// Options tune one Analyze call.
type Options struct {
	Floor        int
	FallbackMode bool
}

// Evaluator runs the pre-filter, probe, rubric and rejection pipeline.
type Evaluator struct {
	provider Provider
	prober   *fetch.Client
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an Evaluator.
func New(provider Provider, prober *fetch.Client, logger *zap.Logger) *Evaluator {
	return &Evaluator{provider: provider, prober: prober, logger: logger, now: time.Now}
}

// Analyze evaluates urls against title+research and returns the filtered,
// priority-ordered shortlist. The error is non-nil only for quota rejections
// (wrapped ErrQuotaExceeded); every other failure degrades to an empty list.
func (e *Evaluator) Analyze(ctx context.Context, urls []string, title, research string, opts Options) ([]models.ImageEvaluation, error) {
	if opts.Floor <= 0 {
		opts.Floor = DefaultFloor
	}
	if len(urls) == 0 {
		return nil, nil
	}

	supported := make([]string, 0, len(urls))
	for _, u := range urls {
		if urlx.HasVisionExtension(u) {
			supported = append(supported, u)
		}
	}
	if len(supported) == 0 {
		e.logger.Warn("no candidates with supported image formats")
		return nil, nil
	}

	batch := e.probeBatch(ctx, supported)
	if len(batch) == 0 {
		e.logger.Warn("no reachable candidates after probing")
		return nil, nil
	}

	e.logger.Info("analyzing candidates with vision model",
		zap.Int("count", len(batch)), zap.Int("floor", opts.Floor), zap.Bool("fallback", opts.FallbackMode))

	prompt := buildAnalysisPrompt(title, research, e.now().Format("2006-01-02"), opts.FallbackMode)
	raw, err := e.provider.Complete(ctx, prompt, batch)
	if err != nil {
		if IsQuotaError(err) {
			e.logger.Warn("vision quota exhausted", zap.Error(err))
			return nil, ErrQuotaExceeded
		}
		e.logger.Error("vision call failed", zap.Error(err))
		return nil, nil
	}

	evals := parseEvaluations(raw, batch)
	if len(evals) == 0 {
		e.logger.Warn("vision response yielded no evaluations")
		return nil, nil
	}

	filtered := filterEvaluations(evals, opts.Floor)
	sortEvaluations(filtered)
	e.logger.Info("evaluation shortlist ready", zap.Int("evaluated", len(evals)), zap.Int("kept", len(filtered)))
	return filtered, nil
}

// probeBatch checks reachability and the soft size ceiling for up to
// maxProbes URLs concurrently, then keeps the first batchSize survivors in
// the original priority order.
func (e *Evaluator) probeBatch(ctx context.Context, urls []string) []string {
	if len(urls) > maxProbes {
		urls = urls[:maxProbes]
	}

	ok := make([]bool, len(urls))
	g, probeCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, u := range urls {
		g.Go(func() error {
			info, err := e.prober.Head(probeCtx, u)
			if err != nil || info.StatusCode != 200 {
				return nil
			}
			if info.ContentLength > maxImageBytes {
				return nil
			}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // probes never return errors; a cancelled ctx just leaves entries false

	batch := make([]string, 0, batchSize)
	for i, u := range urls {
		if !ok[i] {
			continue
		}
		batch = append(batch, u)
		if len(batch) == batchSize {
			break
		}
	}
	return batch
}

// rawEvaluation mirrors the model's output contract; entries align
// positionally with the submitted batch via image_index.
type rawEvaluation struct {
	ImageIndex           int    `json:"image_index"`
	RelevanceScore       int    `json:"relevance_score"`
	TemporalRelevance    string `json:"temporal_relevance"`
	WatermarkSeverity    string `json:"watermark_severity"`
	AdPresence           string `json:"ad_presence"`
	ContentQuality       string `json:"content_quality"`
	IsRelevantToEvent    bool   `json:"is_relevant_to_event"`
	ContainsOutdatedInfo bool   `json:"contains_outdated_info"`
	Reasoning            string `json:"reasoning"`
}

// parseEvaluations decodes the model's JSON array, tolerating a markdown
// fence around it. Any parse failure yields an empty result, never a partial
// one.
func parseEvaluations(raw string, batch []string) []models.ImageEvaluation {
	cleaned := stripMarkdownFence(raw)

	var items []rawEvaluation
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		// Some models pad the array with prose; retry on the bracketed slice.
		start := strings.Index(cleaned, "[")
		end := strings.LastIndex(cleaned, "]")
		if start < 0 || end <= start {
			return nil
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &items); err != nil {
			return nil
		}
	}

	out := make([]models.ImageEvaluation, 0, len(items))
	for _, item := range items {
		if item.ImageIndex < 0 || item.ImageIndex >= len(batch) {
			continue
		}
		out = append(out, models.ImageEvaluation{
			ImageURL:             batch[item.ImageIndex],
			RelevanceScore:       item.RelevanceScore,
			TemporalRelevance:    item.TemporalRelevance,
			WatermarkSeverity:    item.WatermarkSeverity,
			AdPresence:           item.AdPresence,
			ContentQuality:       item.ContentQuality,
			IsRelevantToEvent:    item.IsRelevantToEvent,
			ContainsOutdatedInfo: item.ContainsOutdatedInfo,
			Reasoning:            item.Reasoning,
		})
	}
	return out
}

func stripMarkdownFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

// filterEvaluations drops candidates with heavy watermarks, intrusive ads,
// relevance below the floor, no event relevance, or outdated content.
func filterEvaluations(evals []models.ImageEvaluation, floor int) []models.ImageEvaluation {
	out := make([]models.ImageEvaluation, 0, len(evals))
	for _, ev := range evals {
		switch {
		case ev.WatermarkSeverity == "heavy":
		case ev.AdPresence == "intrusive":
		case ev.RelevanceScore < floor:
		case !ev.IsRelevantToEvent:
		case ev.ContainsOutdatedInfo:
		default:
			out = append(out, ev)
			continue
		}
	}
	return out
}

var qualityRank = map[string]int{"high": 3, "medium": 2, "low": 1}

// sortEvaluations orders the shortlist non-increasing by relevance score,
// breaking ties by quality tier. This is the processor's trial order.
func sortEvaluations(evals []models.ImageEvaluation) {
	sort.SliceStable(evals, func(i, j int) bool {
		if evals[i].RelevanceScore != evals[j].RelevanceScore {
			return evals[i].RelevanceScore > evals[j].RelevanceScore
		}
		return qualityRank[evals[i].ContentQuality] > qualityRank[evals[j].ContentQuality]
	})
}
