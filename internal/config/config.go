package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	SerpAPI     SerpAPIConfig     `yaml:"serpapi" mapstructure:"serpapi"`
	VectorIndex VectorIndexConfig `yaml:"vector_index" mapstructure:"vector_index"`
	Feeds       FeedsConfig       `yaml:"feeds" mapstructure:"feeds"`
	Research    ResearchConfig    `yaml:"research" mapstructure:"research"`
	Credits     CreditsConfig     `yaml:"credits" mapstructure:"credits"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the synthesis capability.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// SerpAPIConfig holds web search API settings.
type SerpAPIConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Engine         string  `yaml:"engine" mapstructure:"engine"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
}

// VectorIndexConfig holds the per-user document index capability settings.
type VectorIndexConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// FeedsConfig configures the live feed cache.
type FeedsConfig struct {
	ConfigPath           string `yaml:"config_path" mapstructure:"config_path"`
	RefreshIntervalMins  int    `yaml:"refresh_interval_mins" mapstructure:"refresh_interval_mins"`
	RetentionHours       int    `yaml:"retention_hours" mapstructure:"retention_hours"`
	MaxItemsPerFeed      int    `yaml:"max_items_per_feed" mapstructure:"max_items_per_feed"`
	FetchTimeoutSecs     int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RecencyHalfLifeHours int    `yaml:"recency_half_life_hours" mapstructure:"recency_half_life_hours"`
}

// RefreshInterval returns the refresh cycle period.
func (c FeedsConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMins) * time.Minute
}

// Retention returns the item retention window.
func (c FeedsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// ResearchConfig configures evidence gathering and synthesis.
type ResearchConfig struct {
	PerSourceLimit        int     `yaml:"per_source_limit" mapstructure:"per_source_limit"`
	MaxEvidence           int     `yaml:"max_evidence" mapstructure:"max_evidence"`
	DedupThreshold        float64 `yaml:"dedup_threshold" mapstructure:"dedup_threshold"`
	SourceTimeoutSecs     int     `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	WebSearchTimeoutSecs  int     `yaml:"web_search_timeout_secs" mapstructure:"web_search_timeout_secs"`
	SynthesisTimeoutSecs  int     `yaml:"synthesis_timeout_secs" mapstructure:"synthesis_timeout_secs"`
	AllowGeneralSynthesis bool    `yaml:"allow_general_synthesis" mapstructure:"allow_general_synthesis"`
}

// SourceTimeout returns the document/live-feed adapter timeout.
func (c ResearchConfig) SourceTimeout() time.Duration {
	return time.Duration(c.SourceTimeoutSecs) * time.Second
}

// WebSearchTimeout returns the (shorter) web search adapter timeout.
func (c ResearchConfig) WebSearchTimeout() time.Duration {
	return time.Duration(c.WebSearchTimeoutSecs) * time.Second
}

// SynthesisTimeout returns the hard timeout for the synthesis call.
func (c ResearchConfig) SynthesisTimeout() time.Duration {
	return time.Duration(c.SynthesisTimeoutSecs) * time.Second
}

// CreditsConfig configures billing.
type CreditsConfig struct {
	CostPerReport int `yaml:"cost_per_report" mapstructure:"cost_per_report"`
	SignupGrant   int `yaml:"signup_grant" mapstructure:"signup_grant"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "research.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("serpapi.base_url", "https://serpapi.com")
	v.SetDefault("serpapi.engine", "google")
	v.SetDefault("serpapi.requests_per_sec", 2.0)
	v.SetDefault("vector_index.base_url", "http://localhost:8100")
	v.SetDefault("feeds.config_path", "feeds.yaml")
	v.SetDefault("feeds.refresh_interval_mins", 15)
	v.SetDefault("feeds.retention_hours", 72)
	v.SetDefault("feeds.max_items_per_feed", 25)
	v.SetDefault("feeds.fetch_timeout_secs", 20)
	v.SetDefault("feeds.recency_half_life_hours", 24)
	v.SetDefault("research.per_source_limit", 5)
	v.SetDefault("research.max_evidence", 12)
	v.SetDefault("research.dedup_threshold", 0.85)
	v.SetDefault("research.source_timeout_secs", 10)
	v.SetDefault("research.web_search_timeout_secs", 5)
	v.SetDefault("research.synthesis_timeout_secs", 60)
	v.SetDefault("research.allow_general_synthesis", false)
	v.SetDefault("credits.cost_per_report", 1)
	v.SetDefault("credits.signup_grant", 10)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required for the given run mode. Modes map
// to CLI commands: "serve" and "research" need the full external stack,
// "feeds" and "migrate" only the store.
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required for the postgres driver")
		}
	}

	switch mode {
	case "serve", "research":
		requireStore()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
		if c.Research.DedupThreshold < 0 || c.Research.DedupThreshold > 1 {
			missing = append(missing, "research.dedup_threshold must be between 0 and 1")
		}
		if c.Credits.CostPerReport < 1 {
			missing = append(missing, "credits.cost_per_report must be >= 1")
		}
		if c.Credits.SignupGrant < 0 {
			missing = append(missing, "credits.signup_grant must be >= 0")
		}
	case "feeds", "migrate", "credits", "reports":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for mode %s: %s", mode, strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
