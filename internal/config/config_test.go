package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	clearEnvVars(t)

	// The upstream contact email is the only required setting.
	t.Setenv("DISCOVERY_OPENALEX_EMAIL", "test@example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 45*time.Second, cfg.Server.SearchTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// OpenAlex defaults
	assert.Equal(t, "https://api.openalex.org", cfg.OpenAlex.BaseURL)
	assert.Equal(t, "test@example.com", cfg.OpenAlex.Email)
	assert.Equal(t, 30*time.Second, cfg.OpenAlex.Timeout)
	assert.Equal(t, 10.0, cfg.OpenAlex.RateLimit)
	assert.Equal(t, 10, cfg.OpenAlex.BurstSize)
	assert.Equal(t, 3, cfg.OpenAlex.MaxRetries)
	assert.Equal(t, time.Second, cfg.OpenAlex.RetryDelay)

	// Search defaults
	assert.Equal(t, "cited_by_count:desc", cfg.Search.Sort)
	assert.Equal(t, 0.8, cfg.Search.CoverageWeight)
	assert.Equal(t, 0.2, cfg.Search.CitationWeight)
	assert.Equal(t, 100, cfg.Search.CitationScale)
	assert.Equal(t, 0.5, cfg.Search.MatchThreshold)

	// Cache defaults
	assert.Equal(t, 1, cfg.Cache.TTLHours)
	assert.Equal(t, time.Hour, cfg.Cache.TTL())
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 10, cfg.Cache.EvictBatch)

	// LLM defaults
	assert.False(t, cfg.LLM.Enabled)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DISCOVERY_OPENALEX_EMAIL", "ops@example.com")
	t.Setenv("DISCOVERY_SERVER_PORT", "8888")
	t.Setenv("DISCOVERY_LOGGING_LEVEL", "debug")
	t.Setenv("DISCOVERY_OPENALEX_RATE_LIMIT", "5")
	t.Setenv("DISCOVERY_OPENALEX_MAX_RETRIES", "6")
	t.Setenv("DISCOVERY_SEARCH_COVERAGE_WEIGHT", "0.9")
	t.Setenv("DISCOVERY_SEARCH_CITATION_WEIGHT", "0.1")
	t.Setenv("DISCOVERY_CACHE_TTL_HOURS", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "ops@example.com", cfg.OpenAlex.Email)
	assert.Equal(t, 5.0, cfg.OpenAlex.RateLimit)
	assert.Equal(t, 6, cfg.OpenAlex.MaxRetries)
	assert.Equal(t, 0.9, cfg.Search.CoverageWeight)
	assert.Equal(t, 0.1, cfg.Search.CitationWeight)
	assert.Equal(t, 4*time.Hour, cfg.Cache.TTL())
}

func TestLoad_MissingEmail(t *testing.T) {
	clearEnvVars(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openalex.email is required")
}

func TestLoad_Secrets(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("DISCOVERY_OPENALEX_EMAIL", "test@example.com")
	t.Setenv("DISCOVERY_LLM_ENABLED", "true")
	t.Setenv("DISCOVERY_LLM_API_KEY", "sk-test-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LLM.Enabled)
	assert.Equal(t, "sk-test-key", cfg.LLM.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectedErr string
	}{
		{
			name: "missing email",
			modifyFunc: func(c *Config) {
				c.OpenAlex.Email = ""
			},
			expectedErr: "openalex.email is required",
		},
		{
			name: "coverage weight too low",
			modifyFunc: func(c *Config) {
				c.Search.CoverageWeight = 0.5
				c.Search.CitationWeight = 0.5
			},
			expectedErr: "coverage_weight must be at least 4x",
		},
		{
			name: "evict batch exceeds max entries",
			modifyFunc: func(c *Config) {
				c.Cache.MaxEntries = 10
				c.Cache.EvictBatch = 20
			},
			expectedErr: "evict_batch must not exceed",
		},
		{
			name: "LLM enabled without API key",
			modifyFunc: func(c *Config) {
				c.LLM.Enabled = true
				c.LLM.APIKey = ""
			},
			expectedErr: "DISCOVERY_LLM_API_KEY is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("exactly 4x weight ratio passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.CoverageWeight = 0.8
		cfg.Search.CitationWeight = 0.2
		assert.NoError(t, cfg.Validate())
	})
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{Host: "127.0.0.1", Port: 9000}
	assert.Equal(t, "127.0.0.1:9000", cfg.Address())
}

// clearEnvVars removes every DISCOVERY_-prefixed variable so ambient
// environment does not leak into tests.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "DISCOVERY_") {
			key, _, _ := strings.Cut(env, "=")
			os.Unsetenv(key)
		}
	}
}

// validConfig returns a configuration that passes validation.
func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		OpenAlex: OpenAlexConfig{
			BaseURL:    "https://api.openalex.org",
			Email:      "test@example.com",
			RateLimit:  10,
			MaxRetries: 3,
		},
		Search: SearchConfig{
			CoverageWeight: 0.8,
			CitationWeight: 0.2,
			CitationScale:  100,
			MatchThreshold: 0.5,
		},
		Cache: CacheConfig{
			TTLHours:   1,
			MaxEntries: 100,
			EvictBatch: 10,
		},
	}
}
