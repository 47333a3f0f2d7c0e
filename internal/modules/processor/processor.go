// Package processor validates, downloads and re-encodes candidate images so
// the stored asset fits the delivery constraints (dimension ceiling, byte
// ceiling, JPEG/PNG output). Assets that already comply pass through by URL
// without a download.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"github.com/simple-flow/find-image/internal/config"
	"github.com/simple-flow/find-image/internal/models"
	"github.com/simple-flow/find-image/internal/pkg/fetch"
	"github.com/simple-flow/find-image/internal/pkg/urlx"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
	_ "image/gif"
)

// Processor turns a candidate URL into a deliverable image.
type Processor struct {
	fetcher *fetch.Client
	cfg     config.ImagesConfig
	logger  *zap.Logger
}

func New(fetcher *fetch.Client, cfg config.ImagesConfig, logger *zap.Logger) *Processor {
	return &Processor{fetcher: fetcher, cfg: cfg, logger: logger.Named("processor")}
}

// Process returns the deliverable form of url, or nil when the asset is
// unusable for any reason. Unusable is not an error here: the orchestrator
// simply moves on to the next candidate.
func (p *Processor) Process(ctx context.Context, url string) *models.ProcessedImage {
	maxBytes := int64(p.cfg.MaxSizeMB) << 20

	info, err := p.fetcher.Head(ctx, url)
	if err != nil || info.StatusCode != http.StatusOK {
		p.logger.Debug("image url not accessible", zap.String("url", url), zap.Error(err))
		return nil
	}

	// Header-only fast path: a declared image under the byte ceiling is
	// served from its original URL without a download.
	if info.IsImage() && info.ContentLength > 0 && info.ContentLength <= maxBytes {
		p.logger.Info("image suitable without processing", zap.String("url", url))
		return &models.ProcessedImage{
			OriginalURL:     url,
			Format:          "original",
			Dimensions:      "unknown",
			NeedsProcessing: false,
		}
	}

	// Some servers announce octet-stream for images, so a recognized
	// extension is accepted as fallback evidence.
	if !info.IsImage() && !urlx.HasImageExtension(url) {
		p.logger.Debug("url is not an image", zap.String("url", url), zap.String("content_type", info.ContentType))
		return nil
	}

	data, _, err := p.fetcher.Download(ctx, url, maxBytes)
	if err != nil {
		p.logger.Warn("image download failed", zap.String("url", url), zap.Error(err))
		return nil
	}

	out := p.encode(data)
	if out == nil {
		p.logger.Warn("image rejected during processing", zap.String("url", url))
		return nil
	}
	out.OriginalURL = url
	return out
}

// encode decodes raw bytes, enforces the dimension floor, downscales to the
// ceiling and re-encodes. PNG when transparency must survive, JPEG otherwise.
func (p *Processor) encode(data []byte) *models.ProcessedImage {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		p.logger.Debug("image decode failed", zap.Error(err))
		return nil
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < p.cfg.MinDimension && h < p.cfg.MinDimension {
		p.logger.Debug("image too small", zap.Int("width", w), zap.Int("height", h))
		return nil
	}

	keepAlpha := !isOpaque(img)
	if tw, th := fitWithin(w, h, p.cfg.MaxDimension); tw != w || th != h {
		img = scale(img, tw, th, keepAlpha)
		p.logger.Info("resized image", zap.Int("width", tw), zap.Int("height", th))
		w, h = tw, th
	}

	var buf bytes.Buffer
	format := "jpeg"
	if keepAlpha {
		format = "png"
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.cfg.JPEGQuality})
	}
	if err != nil {
		p.logger.Warn("image encode failed", zap.Error(err))
		return nil
	}

	return &models.ProcessedImage{
		Data:            buf.Bytes(),
		Format:          format,
		Dimensions:      fmt.Sprintf("%dx%d", w, h),
		SizeKB:          buf.Len() / 1024,
		NeedsProcessing: true,
	}
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return true
}

// fitWithin shrinks (w, h) proportionally until both fit under max.
// Dimensions already in range come back unchanged.
func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, clampDim(h * max / w)
	}
	return clampDim(w * max / h), max
}

func clampDim(d int) int {
	if d < 1 {
		return 1
	}
	return d
}

func scale(img image.Image, w, h int, keepAlpha bool) image.Image {
	rect := image.Rect(0, 0, w, h)
	var dst draw.Image
	if keepAlpha {
		dst = image.NewNRGBA(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	draw.CatmullRom.Scale(dst, rect, img, img.Bounds(), draw.Src, nil)
	return dst
}
