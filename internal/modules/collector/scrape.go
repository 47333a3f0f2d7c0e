package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/simple-flow/find-image/internal/pkg/urlx"
	"go.uber.org/zap"
)

// Scraper extracts article imagery from a page. Pages are rendered through a
// headless-browser service when one is configured, so script-injected images
// are visible; otherwise it falls back to the raw document.
type Scraper struct {
	renderEndpoint string
	userAgent      string
	pageTimeout    time.Duration
	minDimension   int
	client         *http.Client
	logger         *zap.Logger
}

// NewScraper creates a Scraper. renderEndpoint may be empty.
func NewScraper(renderEndpoint, userAgent string, pageTimeout time.Duration, minDimension int, logger *zap.Logger) *Scraper {
	if userAgent == "" {
		userAgent = "find-image/1.0"
	}
	return &Scraper{
		renderEndpoint: renderEndpoint,
		userAgent:      userAgent,
		pageTimeout:    pageTimeout,
		minDimension:   minDimension,
		client:         &http.Client{},
		logger:         logger,
	}
}

// Scrape fetches the rendered page and returns the image URLs that survive
// the chrome blocklist and the declared-dimension floor. Elements without
// declared dimensions are kept; the processor validates them later.
func (s *Scraper) Scrape(ctx context.Context, pageURL string) ([]string, error) {
	html, err := s.fetchRendered(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	var images []string
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		alt := sel.AttrOr("alt", "")
		class := sel.AttrOr("class", "")
		src := sel.AttrOr("src", "")
		if src == "" {
			src = sel.AttrOr("data-src", "")
		}
		if src == "" {
			return
		}
		if urlx.LooksLikeLogoOrIcon(alt, class, src) {
			return
		}

		imgURL := urlx.Normalize(src, pageURL)

		width := attrInt(sel, "width")
		height := attrInt(sel, "height")
		if width > 0 && height > 0 {
			if width < s.minDimension || height < s.minDimension {
				return
			}
		}
		images = append(images, imgURL)
	})

	return images, nil
}

// fetchRendered retrieves page HTML, preferring the rendering service.
func (s *Scraper) fetchRendered(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.pageTimeout)
	defer cancel()

	if s.renderEndpoint != "" {
		html, err := s.renderViaService(ctx, pageURL)
		if err == nil {
			return html, nil
		}
		s.logger.Warn("render service failed, falling back to plain fetch",
			zap.String("url", pageURL), zap.Error(err))
	}
	return s.plainFetch(ctx, pageURL)
}

func (s *Scraper) renderViaService(ctx context.Context, pageURL string) (string, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"url":        pageURL,
		"wait_until": "networkidle",
		"timeout_ms": int(s.pageTimeout / time.Millisecond),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.renderEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("render service returned %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	// The service replies either with {"html": "..."} or with raw HTML.
	var rendered struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(raw, &rendered); err == nil && rendered.HTML != "" {
		return rendered.HTML, nil
	}
	return string(raw), nil
}

func (s *Scraper) plainFetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func attrInt(sel *goquery.Selection, name string) int {
	raw := strings.TrimSuffix(strings.TrimSpace(sel.AttrOr(name, "")), "px")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
