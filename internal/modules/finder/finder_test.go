package finder

import (
	"context"
	"testing"

	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/modules/evaluator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeCache struct {
	hit  *models.ImageResponse
	sets []models.ImageResponse
}

func (c *fakeCache) Get(_ context.Context, _ models.ImageRequest) (models.ImageResponse, bool) {
	if c.hit != nil {
		return *c.hit, true
	}
	return models.ImageResponse{}, false
}

func (c *fakeCache) Set(_ context.Context, _ models.ImageRequest, resp models.ImageResponse) {
	c.sets = append(c.sets, resp)
}

type fakeCollector struct {
	collected      []models.Candidate
	searched       bool
	searchResults  map[int][]models.Candidate
	genericResults map[int][]models.Candidate
	searchCalls    []int
	genericCalls   []int
	topicSeen      string
}

func (f *fakeCollector) CollectAll(_ context.Context, _ models.ImageRequest) ([]models.Candidate, bool) {
	return f.collected, f.searched
}

func (f *fakeCollector) Search(_ context.Context, _, _ string, attempt int) []models.Candidate {
	f.searchCalls = append(f.searchCalls, attempt)
	return f.searchResults[attempt]
}

func (f *fakeCollector) SearchGeneric(_ context.Context, topic string, attempt int) []models.Candidate {
	f.topicSeen = topic
	f.genericCalls = append(f.genericCalls, attempt)
	return f.genericResults[attempt]
}

type fakeEvaluator struct {
	verdicts map[string]models.ImageEvaluation
	err      error
	opts     []evaluator.Options
}

func (f *fakeEvaluator) Analyze(_ context.Context, urls []string, _, _ string, opts evaluator.Options) ([]models.ImageEvaluation, error) {
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return nil, f.err
	}
	var out []models.ImageEvaluation
	for _, u := range urls {
		if v, ok := f.verdicts[u]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeProcessor struct {
	results map[string]*models.ProcessedImage
	calls   []string
}

func (f *fakeProcessor) Process(_ context.Context, url string) *models.ProcessedImage {
	f.calls = append(f.calls, url)
	return f.results[url]
}

type fakeStore struct {
	url   string
	saves int
}

func (f *fakeStore) Save(_ context.Context, _ *models.ProcessedImage) (string, error) {
	f.saves++
	return f.url, nil
}

func testFinderConfig() *config.AppConfig {
	return &config.AppConfig{
		Images:   config.ImagesConfig{DefaultURL: "https://cdn.example/default.png"},
		Timeouts: config.TimeoutsConfig{TotalRequestSeconds: 60},
	}
}

func approve(url string, score int) models.ImageEvaluation {
	return models.ImageEvaluation{
		ImageURL:          url,
		RelevanceScore:    score,
		TemporalRelevance: "current",
		WatermarkSeverity: "none",
		ContentQuality:    "high",
		IsRelevantToEvent: true,
		Reasoning:         "good match",
	}
}

func passThrough(url string) *models.ProcessedImage {
	return &models.ProcessedImage{OriginalURL: url, Format: "original", Dimensions: "unknown"}
}

func newTestFinder(cache *fakeCache, col *fakeCollector, ev *fakeEvaluator, proc *fakeProcessor, store *fakeStore) *Finder {
	return New(cache, col, ev, proc, store, testFinderConfig(), zap.NewNop())
}

func TestFindReturnsCacheHit(t *testing.T) {
	cached := models.ImageResponse{ImageURL: "https://img.example/x.jpg", Cached: true, Found: true}
	cache := &fakeCache{hit: &cached}
	f := newTestFinder(cache, &fakeCollector{}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, cached, resp)
	assert.Empty(t, cache.sets, "cache hits are not re-written")
}

func TestFindUserCandidateWins(t *testing.T) {
	const url = "https://u.example/best.jpg"
	cache := &fakeCache{}
	col := &fakeCollector{collected: []models.Candidate{{URL: url, Origin: models.OriginCandidate}}}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 9)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	f := newTestFinder(cache, col, ev, proc, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "candidate", resp.ToolUsed)
	assert.Equal(t, url, resp.ImageURL, "pass-through keeps the original URL")
	assert.Equal(t, url, resp.OriginalURL)
	assert.Equal(t, 9, resp.QualityScore)
	assert.True(t, resp.Found)
	assert.False(t, resp.Cached)
	require.Len(t, cache.sets, 1, "settled outcome is cached")
}

func TestFindScrapedCandidateTaggedSite(t *testing.T) {
	const url = "https://site.example/hero.jpg"
	col := &fakeCollector{collected: []models.Candidate{{URL: url, Origin: models.OriginSite}}}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 8)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	f := newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "site", resp.ToolUsed)
}

func TestFindStoresReEncodedImage(t *testing.T) {
	const url = "https://u.example/big.jpg"
	col := &fakeCollector{collected: []models.Candidate{{URL: url, Origin: models.OriginCandidate}}}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 9)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: {
		Data: []byte("bytes"), Format: "jpeg", Dimensions: "1280x960", SizeKB: 42, NeedsProcessing: true,
	}}}
	store := &fakeStore{url: "https://public.example/images/abc.jpg"}
	f := newTestFinder(&fakeCache{}, col, ev, proc, store)

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "https://public.example/images/abc.jpg", resp.ImageURL)
	assert.Equal(t, url, resp.OriginalURL)
	assert.Equal(t, "jpeg", resp.Format)
}

func TestFindSearchRetrySkipsSpentPhrasing(t *testing.T) {
	const url = "https://search.example/found.jpg"
	col := &fakeCollector{
		searched: true,
		searchResults: map[int][]models.Candidate{
			2: {{URL: url, Origin: models.OriginPerplexity}},
		},
	}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 8)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	f := newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "perplexity", resp.ToolUsed)
	assert.Equal(t, []int{2}, col.searchCalls, "phrasing one was spent during collection")
}

func TestFindSearchRetryRunsBothPhrasingsWhenUnspent(t *testing.T) {
	col := &fakeCollector{
		collected: []models.Candidate{{URL: "https://u.example/bad.jpg", Origin: models.OriginCandidate}},
		searched:  false,
	}
	ev := &fakeEvaluator{} // nothing ever approved
	f := newTestFinder(&fakeCache{}, col, ev, &fakeProcessor{}, &fakeStore{})

	_, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []int{1, 2}, col.searchCalls)
	assert.Equal(t, []int{1, 2}, col.genericCalls)
}

func TestFindGenericFallbackSecondAttempt(t *testing.T) {
	const url = "https://generic.example/tech.jpg"
	col := &fakeCollector{
		searched: true,
		genericResults: map[int][]models.Candidate{
			2: {{URL: url, Origin: models.OriginPerplexity}},
		},
	}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 7)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	cache := &fakeCache{}
	f := newTestFinder(cache, col, ev, proc, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "bitcoin rally", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "fallback (perplexity)", resp.ToolUsed)
	assert.True(t, resp.Found)
	assert.Equal(t, "cryptocurrency", col.topicSeen)
	assert.Equal(t, []int{1, 2}, col.genericCalls)

	// The generic stage evaluates with the lowered floor in fallback mode.
	last := ev.opts[len(ev.opts)-1]
	assert.Equal(t, evaluator.FallbackFloor, last.Floor)
	assert.True(t, last.FallbackMode)
}

func TestFindQuotaDowngradesToBlindSelection(t *testing.T) {
	first := "https://generic.example/a.jpg"
	second := "https://generic.example/b.jpg"
	col := &fakeCollector{
		searched: true,
		genericResults: map[int][]models.Candidate{
			1: {{URL: first, Origin: models.OriginPerplexity}, {URL: second, Origin: models.OriginPerplexity}},
		},
	}
	ev := &fakeEvaluator{err: evaluator.ErrQuotaExceeded}
	// The first raw candidate fails processing, the second survives.
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{second: passThrough(second)}}
	f := newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "fallback (perplexity)", resp.ToolUsed)
	assert.Equal(t, blindScore, resp.QualityScore)
	assert.Equal(t, "not_applicable", resp.TemporalRelevance)
	assert.Equal(t, []string{first, second}, proc.calls, "raw order, no ranking")
}

func TestBlindSelectionEndsInDoneState(t *testing.T) {
	url := "https://generic.example/a.jpg"
	col := &fakeCollector{
		searched: true,
		genericResults: map[int][]models.Candidate{
			1: {{URL: url, Origin: models.OriginPerplexity}},
		},
	}
	ev := &fakeEvaluator{err: evaluator.ErrQuotaExceeded}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}

	core, logs := observer.New(zap.DebugLevel)
	f := New(&fakeCache{}, col, ev, proc, &fakeStore{}, testFinderConfig(), zap.New(core))

	_, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)

	entries := logs.FilterMessage("state transition").All()
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1].ContextMap()
	assert.Equal(t, "done", last["state"])
	assert.Equal(t, "blind", last["strategy"])
}

func TestFindExhaustionIsAHardError(t *testing.T) {
	bad := "https://u.example/broken.jpg"
	col := &fakeCollector{
		collected: []models.Candidate{{URL: bad, Origin: models.OriginCandidate}},
		searched:  true,
		searchResults: map[int][]models.Candidate{
			2: {{URL: bad, Origin: models.OriginPerplexity}},
		},
		genericResults: map[int][]models.Candidate{
			1: {{URL: bad, Origin: models.OriginPerplexity}},
			2: {{URL: bad, Origin: models.OriginPerplexity}},
		},
	}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{bad: approve(bad, 9)}}
	proc := &fakeProcessor{} // nothing processes
	cache := &fakeCache{}
	f := newTestFinder(cache, col, ev, proc, &fakeStore{})

	_, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, cache.sets, "failures are never cached")
}

func TestFindNothingDiscoveredServesDefault(t *testing.T) {
	cache := &fakeCache{}
	f := newTestFinder(cache, &fakeCollector{searched: true}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{})

	resp, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.NoError(t, err)
	assert.Equal(t, "default", resp.ToolUsed)
	assert.Equal(t, "https://cdn.example/default.png", resp.ImageURL)
	assert.False(t, resp.Found)
	assert.Equal(t, 1, resp.QualityScore)
	require.Len(t, cache.sets, 1, "the default outcome is a settled decision")
}

func TestFindQuotaBeforeFallbackEscalates(t *testing.T) {
	// A quota error outside the generic stage is a soft failure: the
	// strategy ladder keeps going instead of selecting blind.
	const url = "https://u.example/a.jpg"
	col := &fakeCollector{
		collected: []models.Candidate{{URL: url, Origin: models.OriginCandidate}},
		searched:  true,
	}
	ev := &fakeEvaluator{err: evaluator.ErrQuotaExceeded}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	f := newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{})

	_, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Empty(t, proc.calls, "blind processing is reserved for the generic stage")
}

func TestTopicFor(t *testing.T) {
	assert.Equal(t, "cryptocurrency", TopicFor("Bitcoin hits new high"))
	assert.Equal(t, "cryptocurrency", TopicFor("ethereum and robot news"), "table order breaks ties")
	assert.Equal(t, "artificial intelligence", TopicFor("New LLM released"))
	assert.Equal(t, "gaming", TopicFor("esports tournament finals"))
	assert.Equal(t, "technology", TopicFor("quarterly municipal water report"))
	assert.Equal(t, "technology", TopicFor("brainstorm about rain"), "substrings inside words do not match")
}

func TestFindHonorsOverallDeadline(t *testing.T) {
	cfg := testFinderConfig()
	cfg.Timeouts.TotalRequestSeconds = 0 // expires immediately
	f := New(&fakeCache{}, &fakeCollector{searched: true}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{}, cfg, zap.NewNop())

	_, err := f.Find(context.Background(), models.ImageRequest{Title: "t", Research: "r"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
