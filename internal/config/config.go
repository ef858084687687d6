package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "news-summarizer"

type UpstreamConfig struct {
	Provider string `yaml:"provider"` // "newsapi" or "rss"
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"`
}

type RegionalConfig struct {
	Label      string   `yaml:"label"`
	Keywords   []string `yaml:"keywords"`
	PerKeyword int      `yaml:"per_keyword"`
}

type InferenceConfig struct {
	BaseURL            string `yaml:"base_url"`
	SummarizationModel string `yaml:"summarization_model"`
	SentimentModel     string `yaml:"sentiment_model"`
	APIKey             string `yaml:"api_key"`
}

type CacheConfig struct {
	Backend   string `yaml:"backend"` // "sqlite" or "redis"
	RedisAddr string `yaml:"redis_addr,omitempty"`
}

type Config struct {
	Listen         string          `yaml:"listen"`
	OpenBrowser    bool            `yaml:"open_browser"`
	Language       string          `yaml:"language"`
	Workers        int             `yaml:"workers"`
	RequestTimeout string          `yaml:"request_timeout"`
	QueryTimeout   string          `yaml:"query_timeout"`
	Upstream       UpstreamConfig  `yaml:"upstream"`
	Regional       RegionalConfig  `yaml:"regional"`
	Inference      InferenceConfig `yaml:"inference"`
	Cache          CacheConfig     `yaml:"cache"`
}

// NewsKey returns the upstream API key from config, falling back to NEWS_API_KEY.
func (c *Config) NewsKey() string {
	if c.Upstream.APIKey != "" {
		return c.Upstream.APIKey
	}
	return os.Getenv("NEWS_API_KEY")
}

// InferenceKey returns the inference API key from config, falling back to
// HF_API_KEY and then HUGGINGFACE_API_KEY.
func (c *Config) InferenceKey() string {
	if c.Inference.APIKey != "" {
		return c.Inference.APIKey
	}
	if k := os.Getenv("HF_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("HUGGINGFACE_API_KEY")
}

func (c *Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// QueryBudget bounds one fetch and enrichment of a query, defaulting to 2m.
func (c *Config) QueryBudget() time.Duration {
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil || d <= 0 {
		return 2 * time.Minute
	}
	return d
}

// GetWorkers returns the fan-out concurrency, defaulting to 4.
func (c *Config) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

func (c *Config) PerKeyword() int {
	if c.Regional.PerKeyword <= 0 {
		return 5
	}
	return c.Regional.PerKeyword
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, appName, "cache.db")
}

// LogPath is where the terminal browser writes its log, since stderr is
// covered by the alternate screen.
func LogPath() string {
	return filepath.Join(xdg.StateHome, appName, "tui.log")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Non-fatal: embedded defaults are used if the file can't be written.
			_ = writeDefaults(path)
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshal over the defaults so a partial file only overrides what it sets.
	cfg := *defaults
	cfg.Regional.Keywords = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Regional.Keywords) == 0 {
		cfg.Regional.Keywords = defaults.Regional.Keywords
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	switch cfg.Upstream.Provider {
	case "newsapi", "rss":
	default:
		return fmt.Errorf("upstream: unknown provider %q (valid: newsapi, rss)", cfg.Upstream.Provider)
	}
	if err := validateBaseURL("upstream", cfg.Upstream.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("inference", cfg.Inference.BaseURL); err != nil {
		return err
	}
	if cfg.Inference.SummarizationModel == "" || cfg.Inference.SentimentModel == "" {
		return fmt.Errorf("inference: summarization_model and sentiment_model are required")
	}

	switch cfg.Cache.Backend {
	case "sqlite":
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("cache: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q (valid: sqlite, redis)", cfg.Cache.Backend)
	}

	for i, k := range cfg.Regional.Keywords {
		if k == "" {
			return fmt.Errorf("regional keyword %d: must not be empty", i)
		}
	}
	if cfg.RequestTimeout != "" {
		if _, err := time.ParseDuration(cfg.RequestTimeout); err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
	}
	if cfg.QueryTimeout != "" {
		if _, err := time.ParseDuration(cfg.QueryTimeout); err != nil {
			return fmt.Errorf("query_timeout: %w", err)
		}
	}
	return nil
}

func validateBaseURL(section, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s: base_url is required", section)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid base_url: %w", section, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: base_url scheme must be http or https, got %q", section, u.Scheme)
	}
	return nil
}
