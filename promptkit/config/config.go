package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/promptkit/promptkit"
	"github.com/ZanzyTHEbar/promptkit/promptkit/markdown"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Session   SessionConfig   `mapstructure:"session"`
	Segmenter SegmenterConfig `mapstructure:"segmenter"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Store     StoreConfig     `mapstructure:"store"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// SessionConfig controls conversation history.
type SessionConfig struct {
	HistoryLimit  int  `mapstructure:"history_limit"`  // turns kept before front eviction
	RememberReply bool `mapstructure:"remember_reply"` // keep model replies in history
}

// SegmenterConfig controls media reference resolution.
type SegmenterConfig struct {
	Pattern          string        `mapstructure:"pattern"`           // regexp with a URL capture group
	FetchConcurrency int           `mapstructure:"fetch_concurrency"` // 0 means one goroutine per match
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout"`
	FetchRetries     int           `mapstructure:"fetch_retries"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// CacheConfig controls the resolved media cache.
type CacheConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Capacity   int  `mapstructure:"capacity"`
	TTLSeconds int  `mapstructure:"ttl_seconds"`
}

// RateLimitConfig controls per-host fetch throttling.
type RateLimitConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Capacity   int           `mapstructure:"capacity"`    // token bucket capacity
	RefillRate time.Duration `mapstructure:"refill_rate"` // time per token
}

// StoreConfig controls session persistence.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // libsql database file
}

// GeminiConfig stores the generative API settings.
type GeminiConfig struct {
	APIKey            string   `mapstructure:"api_key"`
	Model             string   `mapstructure:"model"`
	BaseURL           string   `mapstructure:"base_url"`
	SystemInstruction string   `mapstructure:"system_instruction"`
	CodeExecution     bool     `mapstructure:"code_execution"`
	GoogleSearch      bool     `mapstructure:"google_search"`
	Temperature       *float32 `mapstructure:"temperature"`
	MaxOutputTokens   int32    `mapstructure:"max_output_tokens"`
}

// LoggingConfig stores logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // zerolog level name
	Pretty bool   `mapstructure:"pretty"` // console writer instead of JSON
}

// TracingConfig toggles span logging.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file or environment variables. An
// explicit path must exist; otherwise a missing config file means defaults.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	// Replace dots with underscores in env var names e.g. gemini.api_key becomes PROMPTKIT_GEMINI_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.history_limit", internal.DefaultHistoryLimit)
	v.SetDefault("session.remember_reply", true)

	v.SetDefault("segmenter.pattern", markdown.DefaultPattern)
	v.SetDefault("segmenter.fetch_concurrency", 0)
	v.SetDefault("segmenter.fetch_timeout", "30s")
	v.SetDefault("segmenter.fetch_retries", 0)
	v.SetDefault("segmenter.user_agent", internal.DefaultUserAgent)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.capacity", 128)
	v.SetDefault("cache.ttl_seconds", 3600) // 1 hour

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.capacity", 10)
	v.SetDefault("rate_limit.refill_rate", "1s")

	v.SetDefault("store.enabled", false)
	v.SetDefault("store.path", internal.DefaultStorePath)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", internal.DefaultModel)
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("gemini.system_instruction", "")
	v.SetDefault("gemini.code_execution", false)
	v.SetDefault("gemini.google_search", false)
	v.SetDefault("gemini.max_output_tokens", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("tracing.enabled", false)
}
