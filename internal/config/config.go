// Package config loads pipeline configuration from a YAML file with embedded
// defaults, plus API credentials from the environment.
package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/brahma2024/agentic-ledger/internal/feed"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// OpenAIConfig holds credentials and model names for the OpenAI API. The key
// is never read from YAML, only from the environment.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	LLMModel       string `yaml:"llm_model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// RSSConfig controls feed fetching.
type RSSConfig struct {
	Bundles         []feed.Bundle `yaml:"bundles"`
	FetchLimit      int           `yaml:"fetch_limit"`
	RefreshInterval string        `yaml:"refresh_interval"`
}

// ArxivConfig controls paper search. The per-category result cap lives in
// ConvergenceConfig.PapersPerCategory, since the engine is the only searcher.
type ArxivConfig struct {
	BaseURL      string `yaml:"base_url"`
	LookbackDays int    `yaml:"lookback_days"`
}

// ConvergenceConfig tunes the news-to-paper matching engine.
type ConvergenceConfig struct {
	Enabled           bool    `yaml:"enabled"`
	TopNNews          int     `yaml:"top_n_news"`
	CategoriesPerNews int     `yaml:"categories_per_news"`
	PapersPerCategory int     `yaml:"papers_per_category"`
	MinSimilarity     float64 `yaml:"min_similarity"`
	MinRelevance      float64 `yaml:"min_relevance"`
	Weight            float64 `yaml:"weight"`
	CacheTTLDays      int     `yaml:"cache_ttl_days"`
}

// Config is the root configuration.
type Config struct {
	OpenAI      OpenAIConfig      `yaml:"openai"`
	RSS         RSSConfig         `yaml:"rss"`
	Arxiv       ArxivConfig       `yaml:"arxiv"`
	Convergence ConvergenceConfig `yaml:"convergence"`
	OutputDir   string            `yaml:"output_dir,omitempty"`
}

// APIKey resolves the OpenAI key from the environment, reading a local .env
// first when present.
func APIKey() string {
	_ = godotenv.Load()
	return os.Getenv("OPENAI_API_KEY")
}

// RefreshDuration parses the RSS refresh interval, defaulting to 30 minutes.
func (c *Config) RefreshDuration() time.Duration {
	d, err := time.ParseDuration(c.RSS.RefreshInterval)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// OutputPath resolves the output directory, defaulting to ./output.
func (c *Config) OutputPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return "output"
}

// SnapshotPath is where convergence results are written.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.OutputPath(), "convergence_results.json")
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "agentic-ledger", "config.yaml")
}

// CacheDir holds embedding and lexicon caches.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "agentic-ledger")
}

// DBPath is the SQLite store location.
func DBPath() string {
	return filepath.Join(xdg.CacheHome, "agentic-ledger", "ledger.db")
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

// Load reads the config at path, falling back to embedded defaults on first
// run (and writing them to the default location).
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
			// Write defaults to config path on first run
			if err := writeDefaults(path); err != nil {
				// Non-fatal: just use embedded defaults
				return defaults, nil
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(&cfg, defaults)

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

// applyDefaults fills unset numeric and model fields from the embedded
// defaults so user configs only need the fields they change.
func applyDefaults(cfg, defaults *Config) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = defaults.OpenAI.BaseURL
	}
	if cfg.OpenAI.LLMModel == "" {
		cfg.OpenAI.LLMModel = defaults.OpenAI.LLMModel
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = defaults.OpenAI.EmbeddingModel
	}
	if cfg.RSS.FetchLimit <= 0 {
		cfg.RSS.FetchLimit = defaults.RSS.FetchLimit
	}
	if cfg.RSS.RefreshInterval == "" {
		cfg.RSS.RefreshInterval = defaults.RSS.RefreshInterval
	}
	if len(cfg.RSS.Bundles) == 0 {
		cfg.RSS.Bundles = defaults.RSS.Bundles
	}
	if cfg.Arxiv.BaseURL == "" {
		cfg.Arxiv.BaseURL = defaults.Arxiv.BaseURL
	}
	if cfg.Arxiv.LookbackDays <= 0 {
		cfg.Arxiv.LookbackDays = defaults.Arxiv.LookbackDays
	}
	if cfg.Convergence.TopNNews <= 0 {
		cfg.Convergence.TopNNews = defaults.Convergence.TopNNews
	}
	if cfg.Convergence.CategoriesPerNews <= 0 {
		cfg.Convergence.CategoriesPerNews = defaults.Convergence.CategoriesPerNews
	}
	if cfg.Convergence.PapersPerCategory <= 0 {
		cfg.Convergence.PapersPerCategory = defaults.Convergence.PapersPerCategory
	}
	if cfg.Convergence.MinSimilarity <= 0 {
		cfg.Convergence.MinSimilarity = defaults.Convergence.MinSimilarity
	}
	if cfg.Convergence.MinRelevance <= 0 {
		cfg.Convergence.MinRelevance = defaults.Convergence.MinRelevance
	}
	if cfg.Convergence.Weight <= 0 {
		cfg.Convergence.Weight = defaults.Convergence.Weight
	}
	if cfg.Convergence.CacheTTLDays <= 0 {
		cfg.Convergence.CacheTTLDays = defaults.Convergence.CacheTTLDays
	}
}

func validate(cfg *Config) error {
	for i, b := range cfg.RSS.Bundles {
		if b.Name == "" {
			return fmt.Errorf("bundle %d: name is required", i)
		}
		if len(b.FeedURLs) == 0 {
			return fmt.Errorf("bundle %q: at least one feed url is required", b.Name)
		}
		for _, raw := range b.FeedURLs {
			u, err := url.Parse(raw)
			if err != nil {
				return fmt.Errorf("bundle %q: invalid url %q: %w", b.Name, raw, err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("bundle %q: url scheme must be http or https, got %q", b.Name, u.Scheme)
			}
		}
	}
	if w := cfg.Convergence.Weight; w < 0 || w > 1 {
		return fmt.Errorf("convergence weight must be in [0,1], got %v", w)
	}
	if s := cfg.Convergence.MinSimilarity; s < 0 || s > 1 {
		return fmt.Errorf("convergence min_similarity must be in [0,1], got %v", s)
	}
	if r := cfg.Convergence.MinRelevance; r < 0 || r > 1 {
		return fmt.Errorf("convergence min_relevance must be in [0,1], got %v", r)
	}
	return nil
}
