package config

import "time"

// AppConfig holds runtime startup configuration loaded from YAML, with
// environment variables expanded and API keys falling back to the process
// environment.
type AppConfig struct {
	Port           int            `yaml:"port"`
	Env            string         `yaml:"env"` // "development" | "production"
	PublicURL      string         `yaml:"public_url"`
	AllowedOrigins []string       `yaml:"allowed_origins"`
	Paths          PathsConfig    `yaml:"paths"`
	Cache          CacheConfig    `yaml:"cache"`
	Vision         VisionConfig   `yaml:"vision"`
	Search         SearchConfig   `yaml:"search"`
	Scrape         ScrapeConfig   `yaml:"scrape"`
	Images         ImagesConfig   `yaml:"images"`
	Timeouts       TimeoutsConfig `yaml:"timeouts"`
	S3             S3Config       `yaml:"s3"`
	LogRotateSize  *int           `yaml:"log_rotate_size_mb"`
	LogRotateKeep  *int           `yaml:"log_rotate_keep"`
}

type PathsConfig struct {
	Images    string `yaml:"images"`
	CacheFile string `yaml:"cache_file"`
	Logs      string `yaml:"logs"`
}

// CacheConfig selects the durable store for computed decisions.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // "file" | "redis"
	RedisURL string `yaml:"redis_url"`
	TTLDays  int    `yaml:"ttl_days"`
}

// VisionConfig configures the image-evaluation model.
type VisionConfig struct {
	Type     string `yaml:"type"` // "openai" | "openai-compatible"
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
}

// SearchConfig configures the Perplexity image-search provider.
type SearchConfig struct {
	APIKey    string `yaml:"api_key"`
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	Recency   string `yaml:"recency"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ScrapeConfig configures the headless rendering collaborator. When
// RenderEndpoint is empty the scraper degrades to a plain fetch, which misses
// script-injected images.
type ScrapeConfig struct {
	RenderEndpoint string `yaml:"render_endpoint"`
	UserAgent      string `yaml:"user_agent"`
}

type ImagesConfig struct {
	MaxDimension  int    `yaml:"max_dimension"`
	MaxSizeMB     int    `yaml:"max_size_mb"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	MinDimension  int    `yaml:"min_dimension"`
	RetentionDays int    `yaml:"retention_days"`
	DefaultURL    string `yaml:"default_url"`
}

type TimeoutsConfig struct {
	PerSourceSeconds    int `yaml:"per_source_seconds"`
	TotalRequestSeconds int `yaml:"total_request_seconds"`
	DownloadSeconds     int `yaml:"download_seconds"`
	PageLoadSeconds     int `yaml:"page_load_seconds"`
}

func (t TimeoutsConfig) PerSource() time.Duration { return seconds(t.PerSourceSeconds) }
func (t TimeoutsConfig) Total() time.Duration     { return seconds(t.TotalRequestSeconds) }
func (t TimeoutsConfig) Download() time.Duration  { return seconds(t.DownloadSeconds) }
func (t TimeoutsConfig) PageLoad() time.Duration  { return seconds(t.PageLoadSeconds) }

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// S3Config mirrors processed images to S3-compatible object storage when
// enabled. Local disk remains the canonical copy.
type S3Config struct {
	Enable          bool   `yaml:"enable"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
	CustomDomain    string `yaml:"custom_domain"`
	PathStyleAccess bool   `yaml:"path_style_access"`
}

// IsDev reports whether the app runs in development mode.
func (c *AppConfig) IsDev() bool { return c.Env != "production" }
