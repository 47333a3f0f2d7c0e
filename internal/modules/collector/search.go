package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/simple-flow/find-image/internal/config"
	"go.uber.org/zap"
)

// SearchClient talks to the Perplexity chat-completions API with image
// results enabled. Two query phrasings per mode diversify results across the
// orchestrator's retries.
type SearchClient struct {
	endpoint  string
	apiKey    string
	model     string
	recency   string
	maxTokens int
	client    *http.Client
	logger    *zap.Logger
}

// NewSearchClient creates a SearchClient from config.
func NewSearchClient(cfg config.SearchConfig, logger *zap.Logger) *SearchClient {
	return &SearchClient{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		recency:   cfg.Recency,
		maxTokens: cfg.MaxTokens,
		client:    &http.Client{},
		logger:    logger,
	}
}

// Search runs the specific-title query. attempt selects between the two
// phrasings; anything other than 1 uses the broadened alternative.
func (c *SearchClient) Search(ctx context.Context, title, research string, attempt int) ([]string, error) {
	var query string
	if attempt == 1 {
		query = fmt.Sprintf(
			"Find official press photos, news coverage images, or high-quality screenshots for: %s. "+
				"Context: %s. "+
				"Focus on verified project logos, technical charts with clear labels, or relevant event photos. "+
				"Strictly avoid generic office stock photos and unrelated analytic dashboards.",
			title, research)
	} else {
		query = fmt.Sprintf(
			"Search for verified visual content or news graphics related to: %s. "+
				"Background: %s. "+
				"Prioritize: infographics with specific entity names, data visualizations showing %s, or official project assets. "+
				"Exclude: generic marketing dashboards, unrelated software UI, and stock images of people.",
			title, research, title)
	}
	return c.query(ctx, query)
}

// SearchGeneric asks for broad, abstract imagery for a topic label. Used only
// as the last-resort channel.
func (c *SearchClient) SearchGeneric(ctx context.Context, topic string, attempt int) ([]string, error) {
	var query string
	if attempt == 1 {
		query = fmt.Sprintf(
			"Find high-resolution %s wallpaper, abstract background, or professional concept art. "+
				"Focus on modern, clean designs suitable for a news article header. "+
				"Must be HD or 4K. Avoid text and small icons.",
			topic)
	} else {
		query = fmt.Sprintf(
			"Find generic %s stock photo or professional background image. "+
				"Any high-quality, professional looking image representing %s. "+
				"Prioritize abstract technology backgrounds or modern business visuals.",
			topic, topic)
	}
	c.logger.Info("generic image search", zap.String("topic", topic), zap.Int("attempt", attempt))
	return c.query(ctx, query)
}

func (c *SearchClient) query(ctx context.Context, query string) ([]string, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": query},
		},
		"return_images":         true,
		"search_recency_filter": c.recency,
		"max_tokens":            c.maxTokens,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(c.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	urls := extractImageURLs(body)
	c.logger.Info("search api returned images", zap.Int("count", len(urls)))
	return urls, nil
}

// extractImageURLs tolerates the provider's two response shapes: images at
// the top level or nested inside the first choice's message, with each entry
// either a bare URL string or an object carrying a URL-bearing field.
func extractImageURLs(body []byte) []string {
	var payload struct {
		Images  []json.RawMessage `json:"images"`
		Choices []struct {
			Message struct {
				Images []json.RawMessage `json:"images"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}

	raw := payload.Images
	if len(raw) == 0 && len(payload.Choices) > 0 {
		raw = payload.Choices[0].Message.Images
	}

	var urls []string
	for _, item := range raw {
		if u := imageURLFromEntry(item); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

func imageURLFromEntry(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj struct {
		URL      string `json:"url"`
		Src      string `json:"src"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	switch {
	case obj.URL != "":
		return obj.URL
	case obj.Src != "":
		return obj.Src
	default:
		return obj.ImageURL
	}
}
