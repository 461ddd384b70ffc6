// Package config provides configuration management for the discovery service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the discovery service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// OpenAlex contains upstream catalog client settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Search contains relevance scoring and retrieval settings.
	Search SearchConfig `mapstructure:"search"`
	// Cache contains result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// LLM contains query-structuring model settings.
	LLM LLMConfig `mapstructure:"llm"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// Port is the HTTP server port (default: 8080).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading the request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SearchTimeout bounds one search invocation end to end.
	SearchTimeout time.Duration `mapstructure:"search_timeout"`
	// ShutdownTimeout is the maximum wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the host:port the server binds to.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for the metrics endpoint.
	Path string `mapstructure:"path"`
}

// OpenAlexConfig holds upstream catalog client configuration.
type OpenAlexConfig struct {
	// BaseURL is the catalog API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is the mandatory contact identity for the polite pool.
	Email string `mapstructure:"email"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the sustained requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// BurstSize is the maximum request burst.
	BurstSize int `mapstructure:"burst_size"`
	// MaxRetries is the retry budget per call.
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the base delay for linear backoff.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// SearchConfig holds retrieval and scoring configuration. The weights are
// empirically chosen and deliberately tunable.
type SearchConfig struct {
	// Sort is the upstream sort expression.
	Sort string `mapstructure:"sort"`
	// CoverageWeight scales the topical coverage score component.
	CoverageWeight float64 `mapstructure:"coverage_weight"`
	// CitationWeight scales the citation score component.
	CitationWeight float64 `mapstructure:"citation_weight"`
	// CitationScale is the citation count at which the citation factor saturates.
	CitationScale int `mapstructure:"citation_scale"`
	// MatchThreshold is the minimum recorded partial-match similarity.
	MatchThreshold float64 `mapstructure:"match_threshold"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	// TTLHours is the entry time-to-live in hours.
	TTLHours int `mapstructure:"ttl_hours"`
	// MaxEntries bounds the cache size.
	MaxEntries int `mapstructure:"max_entries"`
	// EvictBatch is the number of oldest entries removed per eviction.
	EvictBatch int `mapstructure:"evict_batch"`
}

// TTL returns the entry time-to-live as a duration.
func (c *CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// LLMConfig holds query-structuring model configuration.
type LLMConfig struct {
	// Enabled enables the LLM query structuring endpoint.
	Enabled bool `mapstructure:"enabled"`
	// Model is the chat model name.
	Model string `mapstructure:"model"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible services).
	BaseURL string `mapstructure:"base_url"`
	// APIKey is loaded exclusively from the environment.
	APIKey string `mapstructure:"-"`
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("DISCOVERY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/discovery-service")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; env vars and defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged mapstructure:"-" so they never load from files.
func loadSecrets(cfg *Config) {
	cfg.LLM.APIKey = os.Getenv("DISCOVERY_LLM_API_KEY")
}

// Validate checks required fields and invariants.
func (c *Config) Validate() error {
	if c.OpenAlex.Email == "" {
		return fmt.Errorf("openalex.email is required by the upstream courtesy policy")
	}
	if c.Search.CitationWeight > 0 && c.Search.CoverageWeight < 4*c.Search.CitationWeight {
		return fmt.Errorf("search.coverage_weight must be at least 4x search.citation_weight")
	}
	if c.Cache.MaxEntries > 0 && c.Cache.EvictBatch > c.Cache.MaxEntries {
		return fmt.Errorf("cache.evict_batch must not exceed cache.max_entries")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		return fmt.Errorf("DISCOVERY_LLM_API_KEY is required when llm.enabled is true")
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.search_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// OpenAlex defaults
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.email", "")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("openalex.rate_limit", 10.0)
	v.SetDefault("openalex.burst_size", 10)
	v.SetDefault("openalex.max_retries", 3)
	v.SetDefault("openalex.retry_delay", "1s")

	// Search defaults
	v.SetDefault("search.sort", "cited_by_count:desc")
	v.SetDefault("search.coverage_weight", 0.8)
	v.SetDefault("search.citation_weight", 0.2)
	v.SetDefault("search.citation_scale", 100)
	v.SetDefault("search.match_threshold", 0.5)

	// Cache defaults
	v.SetDefault("cache.ttl_hours", 1)
	v.SetDefault("cache.max_entries", 100)
	v.SetDefault("cache.evict_batch", 10)

	// LLM defaults
	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
}
