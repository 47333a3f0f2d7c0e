package finder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/simple-flow/find-image/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(f *Finder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(f).RegisterRoutes(r)
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestHandlerFindImageSuccess(t *testing.T) {
	const url = "https://u.example/pic.jpg"
	col := &fakeCollector{collected: []models.Candidate{{URL: url, Origin: models.OriginCandidate}}}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 9)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	r := newTestRouter(newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{}))

	for _, path := range []string{"/", "/find_image"} {
		w := postJSON(r, path, `{"title": "t", "research": "r", "images": ["`+url+`"]}`)
		require.Equal(t, http.StatusOK, w.Code, path)

		var resp models.ImageResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, url, resp.ImageURL)
		assert.Equal(t, "candidate", resp.ToolUsed)
		assert.True(t, resp.Found)
	}
}

func TestHandlerAcceptsCommaJoinedImages(t *testing.T) {
	const url = "https://u.example/pic.jpg"
	col := &fakeCollector{collected: []models.Candidate{{URL: url, Origin: models.OriginCandidate}}}
	ev := &fakeEvaluator{verdicts: map[string]models.ImageEvaluation{url: approve(url, 9)}}
	proc := &fakeProcessor{results: map[string]*models.ProcessedImage{url: passThrough(url)}}
	r := newTestRouter(newTestFinder(&fakeCache{}, col, ev, proc, &fakeStore{}))

	w := postJSON(r, "/", `{"title": "t", "research": "r", "images": "`+url+`, https://u.example/other.jpg"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandlerRejectsMissingFields(t *testing.T) {
	r := newTestRouter(newTestFinder(&fakeCache{}, &fakeCollector{}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{}))

	w := postJSON(r, "/", `{"research": "r"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(r, "/", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlerExhaustionMapsTo500(t *testing.T) {
	bad := "https://u.example/broken.jpg"
	col := &fakeCollector{
		collected: []models.Candidate{{URL: bad, Origin: models.OriginCandidate}},
		searched:  true,
	}
	r := newTestRouter(newTestFinder(&fakeCache{}, col, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{}))

	w := postJSON(r, "/", `{"title": "t", "research": "r"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "detail")
}

func TestHandlerTimeoutMapsTo504(t *testing.T) {
	cfg := testFinderConfig()
	cfg.Timeouts.TotalRequestSeconds = 0
	f := New(&fakeCache{}, &fakeCollector{searched: true}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{}, cfg, zap.NewNop())
	r := newTestRouter(f)

	w := postJSON(r, "/", `{"title": "t", "research": "r"}`)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Contains(t, w.Body.String(), "timeout")
}

func TestHandlerBannerAndHealth(t *testing.T) {
	r := newTestRouter(newTestFinder(&fakeCache{}, &fakeCollector{}, &fakeEvaluator{}, &fakeProcessor{}, &fakeStore{}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Image Finder API")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
