package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"

	defaultPort      = 8001
	defaultEnv       = "development"
	defaultPublicURL = "https://find-image.simple-flow.co"

	defaultSearchEndpoint = "https://api.perplexity.ai/chat/completions"
	defaultSearchModel    = "sonar"
	defaultSearchRecency  = "day"
	defaultSearchTokens   = 1000

	defaultVisionModel = "gpt-4o-mini"

	defaultMaxDimension  = 1280
	defaultMaxSizeMB     = 10
	defaultJPEGQuality   = 90
	defaultMinDimension  = 1000
	defaultRetentionDays = 30
	// defaultImageURL is served when no strategy yields a usable image.
	defaultImageURL = "https://via.placeholder.com/1280x720/1a1a1a/ffffff?text=No+Image+Available"

	defaultPerSourceSeconds = 30
	defaultTotalSeconds     = 60
	defaultDownloadSeconds  = 10
	defaultPageLoadSeconds  = 15

	defaultCacheTTLDays = 7
)

// Load reads the YAML config at path, expands ${VAR} references, applies
// defaults and environment fallbacks, and validates required fields. A
// missing file is not an error: defaults plus environment cover everything
// except API keys.
func Load(path string) (*AppConfig, error) {
	cfg := &AppConfig{}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		expanded := os.ExpandEnv(string(raw))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyDefaults(cfg)
	applyEnvFallbacks(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.Env == "" {
		cfg.Env = defaultEnv
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = defaultPublicURL
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if cfg.Paths.Images == "" {
		cfg.Paths.Images = filepath.Join(".", "processed_images")
	}
	if cfg.Paths.CacheFile == "" {
		cfg.Paths.CacheFile = filepath.Join(".", "cache.json")
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "file"
	}
	if cfg.Cache.TTLDays == 0 {
		cfg.Cache.TTLDays = defaultCacheTTLDays
	}

	if cfg.Vision.Type == "" {
		cfg.Vision.Type = "openai"
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = defaultVisionModel
	}

	if cfg.Search.Endpoint == "" {
		cfg.Search.Endpoint = defaultSearchEndpoint
	}
	if cfg.Search.Model == "" {
		cfg.Search.Model = defaultSearchModel
	}
	if cfg.Search.Recency == "" {
		cfg.Search.Recency = defaultSearchRecency
	}
	if cfg.Search.MaxTokens == 0 {
		cfg.Search.MaxTokens = defaultSearchTokens
	}

	if cfg.Images.MaxDimension == 0 {
		cfg.Images.MaxDimension = defaultMaxDimension
	}
	if cfg.Images.MaxSizeMB == 0 {
		cfg.Images.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.Images.JPEGQuality == 0 {
		cfg.Images.JPEGQuality = defaultJPEGQuality
	}
	if cfg.Images.MinDimension == 0 {
		cfg.Images.MinDimension = defaultMinDimension
	}
	if cfg.Images.RetentionDays == 0 {
		cfg.Images.RetentionDays = defaultRetentionDays
	}
	if cfg.Images.DefaultURL == "" {
		cfg.Images.DefaultURL = defaultImageURL
	}

	if cfg.Timeouts.PerSourceSeconds == 0 {
		cfg.Timeouts.PerSourceSeconds = defaultPerSourceSeconds
	}
	if cfg.Timeouts.TotalRequestSeconds == 0 {
		cfg.Timeouts.TotalRequestSeconds = defaultTotalSeconds
	}
	if cfg.Timeouts.DownloadSeconds == 0 {
		cfg.Timeouts.DownloadSeconds = defaultDownloadSeconds
	}
	if cfg.Timeouts.PageLoadSeconds == 0 {
		cfg.Timeouts.PageLoadSeconds = defaultPageLoadSeconds
	}
}

func applyEnvFallbacks(cfg *AppConfig) {
	if cfg.Vision.APIKey == "" {
		cfg.Vision.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = strings.TrimSpace(os.Getenv("PERPLEXITY_API_KEY"))
	}
	if url := strings.TrimSpace(os.Getenv("PUBLIC_URL")); url != "" {
		cfg.PublicURL = strings.TrimRight(url, "/")
	}
	if url := strings.TrimSpace(os.Getenv("REDIS_URL")); url != "" && cfg.Cache.RedisURL == "" {
		cfg.Cache.RedisURL = url
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Vision.APIKey == "" {
		return fmt.Errorf("vision api key is required (config vision.api_key or OPENAI_API_KEY)")
	}
	if cfg.Search.APIKey == "" {
		return fmt.Errorf("search api key is required (config search.api_key or PERPLEXITY_API_KEY)")
	}
	if cfg.Cache.Backend != "file" && cfg.Cache.Backend != "redis" {
		return fmt.Errorf("unknown cache backend %q (want file or redis)", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("cache backend is redis but no redis url configured")
	}
	return nil
}
