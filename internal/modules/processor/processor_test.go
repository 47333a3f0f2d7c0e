package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/pkg/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.ImagesConfig {
	return config.ImagesConfig{
		MaxDimension: 1280,
		MaxSizeMB:    10,
		JPEGQuality:  90,
		MinDimension: 1000,
	}
}

func pngBytes(t *testing.T, w, h int, transparent bool) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	if transparent {
		img.SetNRGBA(0, 0, color.NRGBA{})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type asset struct {
	contentType string
	body        []byte
}

func assetServer(assets map[string]asset) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a, ok := assets[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", a.contentType)
		if r.Method == http.MethodHead {
			return
		}
		w.Write(a.body)
	}))
}

func newProcessor() *Processor {
	return New(fetch.New(3*time.Second, ""), testConfig(), zap.NewNop())
}

func TestProcessFastPathKeepsOriginalURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "4096")
	}))
	defer srv.Close()

	out := newProcessor().Process(context.Background(), srv.URL+"/photo.jpg")
	require.NotNil(t, out)
	assert.False(t, out.NeedsProcessing)
	assert.Equal(t, srv.URL+"/photo.jpg", out.OriginalURL)
	assert.Equal(t, "original", out.Format)
	assert.Empty(t, out.Data)
}

func TestProcessDownscalesAndEncodesJPEG(t *testing.T) {
	// octet-stream forces the extension fallback and the full download path.
	srv := assetServer(map[string]asset{
		"/wide.png": {"application/octet-stream", pngBytes(t, 2000, 1200, false)},
	})
	defer srv.Close()

	out := newProcessor().Process(context.Background(), srv.URL+"/wide.png")
	require.NotNil(t, out)
	assert.True(t, out.NeedsProcessing)
	assert.Equal(t, "jpeg", out.Format)
	assert.Equal(t, "1280x768", out.Dimensions)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 768, cfg.Height)
	assert.Equal(t, len(out.Data)/1024, out.SizeKB)
}

func TestProcessPreservesTransparencyAsPNG(t *testing.T) {
	srv := assetServer(map[string]asset{
		"/mark.png": {"application/octet-stream", pngBytes(t, 1600, 1600, true)},
	})
	defer srv.Close()

	out := newProcessor().Process(context.Background(), srv.URL+"/mark.png")
	require.NotNil(t, out)
	assert.Equal(t, "png", out.Format)
	assert.Equal(t, "1280x1280", out.Dimensions)

	_, format, err := image.DecodeConfig(bytes.NewReader(out.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestProcessKeepsInRangeDimensions(t *testing.T) {
	srv := assetServer(map[string]asset{
		"/ok.png": {"application/octet-stream", pngBytes(t, 1100, 900, false)},
	})
	defer srv.Close()

	out := newProcessor().Process(context.Background(), srv.URL+"/ok.png")
	require.NotNil(t, out)
	assert.Equal(t, "1100x900", out.Dimensions)
}

func TestProcessRejectsBelowDimensionFloor(t *testing.T) {
	srv := assetServer(map[string]asset{
		"/small.png": {"application/octet-stream", pngBytes(t, 640, 480, false)},
	})
	defer srv.Close()

	assert.Nil(t, newProcessor().Process(context.Background(), srv.URL+"/small.png"))
}

func TestProcessRejectsNonImage(t *testing.T) {
	srv := assetServer(map[string]asset{
		"/page": {"text/html", []byte("<html></html>")},
	})
	defer srv.Close()

	assert.Nil(t, newProcessor().Process(context.Background(), srv.URL+"/page"))
}

func TestProcessRejectsInaccessibleURL(t *testing.T) {
	srv := assetServer(nil)
	defer srv.Close()

	assert.Nil(t, newProcessor().Process(context.Background(), srv.URL+"/missing.jpg"))
}

func TestProcessRejectsUndecodableBytes(t *testing.T) {
	srv := assetServer(map[string]asset{
		"/broken.jpg": {"application/octet-stream", []byte("not an image at all")},
	})
	defer srv.Close()

	assert.Nil(t, newProcessor().Process(context.Background(), srv.URL+"/broken.jpg"))
}

func TestFitWithin(t *testing.T) {
	cases := []struct {
		w, h, max, wantW, wantH int
	}{
		{2000, 1200, 1280, 1280, 768},
		{1200, 2000, 1280, 768, 1280},
		{1280, 1280, 1280, 1280, 1280},
		{800, 600, 1280, 800, 600},
		{5000, 10, 1280, 1280, 2},
	}
	for _, c := range cases {
		gotW, gotH := fitWithin(c.w, c.h, c.max)
		assert.Equal(t, c.wantW, gotW)
		assert.Equal(t, c.wantH, gotH)
	}
}
