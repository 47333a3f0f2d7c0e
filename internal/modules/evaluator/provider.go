package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/simple-flow/find-image/internal/config"
)

// ErrQuotaExceeded marks a vision call rejected for quota or rate-limit
// reasons. The orchestrator downgrades to blind selection on it instead of
// treating the attempt as failed.
var ErrQuotaExceeded = errors.New("vision provider quota exceeded")

// Provider submits one multi-image prompt and returns the model's raw text.
type Provider interface {
	Complete(ctx context.Context, prompt string, imageURLs []string) (string, error)
}

// NewProvider selects the provider implementation from config.
func NewProvider(cfg config.VisionConfig) (Provider, error) {
	switch normalizeProviderType(cfg.Type) {
	case "openai", "":
		return newOpenAIProvider(cfg), nil
	case "openai-compatible", "openaicompatible":
		return newCompatProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown vision provider type %q", cfg.Type)
	}
}

func normalizeProviderType(raw string) string {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "-")
	t = strings.ReplaceAll(t, " ", "")
	return t
}

// IsQuotaError reports whether err looks like a 429/quota rejection.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apierr *openaiclient.Error
	if errors.As(err, &apierr) && apierr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit")
}

// openAIProvider uses the official SDK.
type openAIProvider struct {
	client openaiclient.Client
	model  string
}

func newOpenAIProvider(cfg config.VisionConfig) *openAIProvider {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(cfg.APIKey),
		openaioption.WithMaxRetries(0),
	}
	if normalized := normalizeOpenAIBaseURL(cfg.Endpoint); normalized != "" {
		opts = append(opts, openaioption.WithBaseURL(normalized))
	}
	return &openAIProvider{client: openaiclient.NewClient(opts...), model: cfg.Model}
}

func (p *openAIProvider) Complete(ctx context.Context, prompt string, imageURLs []string) (string, error) {
	parts := make([]openaiclient.ChatCompletionContentPartUnionParam, 0, len(imageURLs)+1)
	parts = append(parts, openaiclient.TextContentPart(prompt))
	for _, u := range imageURLs {
		parts = append(parts, openaiclient.ImageContentPart(
			openaiclient.ChatCompletionContentPartImageImageURLParam{URL: u}))
	}

	resp, err := p.client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(p.model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.UserMessage(parts),
		},
		MaxTokens:   openaiclient.Int(2000),
		Temperature: openaiclient.Float(0.1),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response from vision model")
	}
	return resp.Choices[0].Message.Content, nil
}

// compatProvider speaks raw chat-completions JSON so any OpenAI-compatible
// endpoint can serve the rubric.
type compatProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

func newCompatProvider(cfg config.VisionConfig) *compatProvider {
	return &compatProvider{
		endpoint: normalizeCompatEndpoint(cfg.Endpoint),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *compatProvider) Complete(ctx context.Context, prompt string, imageURLs []string) (string, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return "", errors.New("vision api key is empty")
	}

	content := make([]map[string]interface{}, 0, len(imageURLs)+1)
	content = append(content, map[string]interface{}{"type": "text", "text": prompt})
	for _, u := range imageURLs {
		content = append(content, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": u},
		})
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model": p.model,
		"messages": []map[string]interface{}{
			{"role": "user", "content": content},
		},
		"max_tokens":  2000,
		"temperature": 0.1,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(p.apiKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("vision provider error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", err
	}
	if result.Error != nil && strings.TrimSpace(result.Error.Message) != "" {
		return "", fmt.Errorf("vision provider error: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("empty response from vision model")
	}
	return result.Choices[0].Message.Content, nil
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeCompatEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}
	base = strings.TrimRight(base, "/")
	return strings.TrimSuffix(base, "/v1")
}
