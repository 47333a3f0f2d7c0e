// Package fetch wraps net/http for the outbound calls every module makes:
// header probes, liveness checks and bounded downloads. Each call carries its
// own timeout so a slow host degrades one step, not the whole request.
package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultUserAgent = "find-image/1.0 (+https://find-image.simple-flow.co)"

// HeadInfo is the useful subset of a HEAD response.
type HeadInfo struct {
	StatusCode    int
	ContentType   string
	ContentLength int64
}

// IsImage reports whether the response announced an image content type.
// MIME parameters ("image/jpeg; charset=binary") are ignored.
func (h HeadInfo) IsImage() bool {
	ct := h.ContentType
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = ct[:idx]
	}
	return strings.HasPrefix(strings.TrimSpace(ct), "image/")
}

// Client is a shared outbound HTTP client with a per-call timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
	ua      string
}

// New creates a Client. timeout bounds each individual call.
func New(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
		ua:      userAgent,
	}
}

// Head issues a HEAD request following redirects.
func (c *Client) Head(ctx context.Context, url string) (HeadInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return HeadInfo{}, err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return HeadInfo{}, err
	}
	defer resp.Body.Close()

	return HeadInfo{
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
	}, nil
}

// Alive reports whether url answers a HEAD request with 200.
func (c *Client) Alive(ctx context.Context, url string) bool {
	info, err := c.Head(ctx, url)
	return err == nil && info.StatusCode == http.StatusOK
}

// ErrTooLarge marks a response body that exceeded the download cap.
var ErrTooLarge = errors.New("response body exceeds size limit")

// Download fetches url fully. A body larger than maxBytes fails with
// ErrTooLarge instead of being truncated, so oversize assets are
// distinguishable from corrupt ones. Returns the payload and the announced
// content type; a nil error with nil data never happens.
func (c *Client) Download(ctx context.Context, url string, maxBytes int64) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &StatusError{Code: resp.StatusCode, URL: url}
	}

	reader := io.Reader(resp.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", err
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, "", ErrTooLarge
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// StatusError reports a non-200 response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return "unexpected status " + http.StatusText(e.Code) + " from " + e.URL
}
