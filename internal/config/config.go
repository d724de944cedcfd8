package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Search    SearchConfig    `yaml:"search"`
	Ads       AdsConfig       `yaml:"ads"`
	LLM       LLMConfig       `yaml:"llm"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SearchConfig bounds search results and history reads.
type SearchConfig struct {
	MaxResults   int `yaml:"max_results"`
	HistoryLimit int `yaml:"history_limit"`
}

// AdsConfig configures ad matching.
type AdsConfig struct {
	MaxMatches       int    `yaml:"max_matches"`
	FallbackCategory string `yaml:"fallback_category"`
}

// LLMConfig configures the external inference capability.
type LLMConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Provider         string  `yaml:"provider"` // "openai" or "anthropic"
	Model            string  `yaml:"model"`
	KeywordModel     string  `yaml:"keyword_model"`
	APIKey           string  `yaml:"api_key"`
	BaseURL          string  `yaml:"base_url"` // custom endpoint (optional)
	Temperature      float64 `yaml:"temperature"`
	MaxSummaryTokens int     `yaml:"max_summary_tokens"`
}

// DiscoveryConfig configures article discovery fallbacks.
type DiscoveryConfig struct {
	MaxResults int        `yaml:"max_results"`
	Feeds      []FeedItem `yaml:"feeds"`
}

// FeedItem is a single RSS/Atom feed entry.
type FeedItem struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ScheduleConfig configures feed ingestion and digest intervals.
type ScheduleConfig struct {
	IngestInterval string `yaml:"ingest_interval"`
	DigestInterval string `yaml:"digest_interval"`
}

// ParseIngestInterval returns the ingest interval as time.Duration.
func (s ScheduleConfig) ParseIngestInterval() time.Duration {
	d, err := time.ParseDuration(s.IngestInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

// ParseDigestInterval returns the digest interval as time.Duration.
func (s ScheduleConfig) ParseDigestInterval() time.Duration {
	d, err := time.ParseDuration(s.DigestInterval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// AlertsConfig configures digest destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook digests.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook digests.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook digests.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./medsearch.db"},
		Server:   ServerConfig{Port: 8080},
		Search: SearchConfig{
			MaxResults:   10,
			HistoryLimit: 3,
		},
		Ads: AdsConfig{
			MaxMatches:       3,
			FallbackCategory: "generic",
		},
		LLM: LLMConfig{
			Provider:         "openai",
			Model:            "gpt-4-turbo-preview",
			KeywordModel:     "gpt-4",
			Temperature:      0.3,
			MaxSummaryTokens: 800,
		},
		Discovery: DiscoveryConfig{
			MaxResults: 10,
			Feeds: []FeedItem{
				{Name: "PubMed Trending", URL: "https://pubmed.ncbi.nlm.nih.gov/trending/?format=rss"},
				{Name: "NEJM Current Issue", URL: "https://www.nejm.org/action/showFeed?type=etoc&feed=rss"},
				{Name: "The Lancet", URL: "https://www.thelancet.com/rssfeed/lancet_current.xml"},
			},
		},
		Schedule: ScheduleConfig{
			IngestInterval: "1h",
			DigestInterval: "24h",
		},
		Alerts:  AlertsConfig{},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MEDSEARCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("SEARCH_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Search.HistoryLimit = n
		}
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
		cfg.LLM.Provider = "openai"
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
		cfg.LLM.Provider = "anthropic"
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
