package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		ServerPort:   8000,
		DatabasePath: "test.db",
		Auth: AuthConfig{
			JWTSecret:      "0123456789abcdef0123",
			AccessTokenTTL: 30 * time.Minute,
			HashAuthDelay:  time.Second,
		},
		AI: AIConfig{Provider: "openai"},
	}
}

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "Valid settings",
			mutate: func(c *Config) {},
		},
		{
			name:     "Port out of range",
			mutate:   func(c *Config) { c.ServerPort = 70000 },
			errorMsg: "server_port must be between 1 and 65535",
		},
		{
			name:     "Missing database path",
			mutate:   func(c *Config) { c.DatabasePath = "" },
			errorMsg: "database_path is required",
		},
		{
			name:     "Short JWT secret",
			mutate:   func(c *Config) { c.Auth.JWTSecret = "short" },
			errorMsg: "jwt secret must be at least 16 characters",
		},
		{
			name:     "Token TTL too short",
			mutate:   func(c *Config) { c.Auth.AccessTokenTTL = 10 * time.Second },
			errorMsg: "access_token_ttl must be at least 1 minute",
		},
		{
			name:     "Invalid provider",
			mutate:   func(c *Config) { c.AI.Provider = "invalid-provider" },
			errorMsg: "invalid ai provider: invalid-provider",
		},
		{
			name: "Kafka without brokers",
			mutate: func(c *Config) {
				c.Events.EnableKafka = true
				c.Events.KafkaBrokers = nil
			},
			errorMsg: "kafka_brokers is required when kafka is enabled",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.errorMsg, err.Error())
		})
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("DATABASE_PATH", "/tmp/rt.db")
	t.Setenv("HASH_AUTH_DELAY", "250ms")
	t.Setenv("KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("AI_API_KEY", "sk-test")
	t.Setenv("JOB_ITEM_DELAY", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 9100, cfg.ServerPort)
	assert.Equal(t, "/tmp/rt.db", cfg.DatabasePath)
	assert.Equal(t, 250*time.Millisecond, cfg.Auth.HashAuthDelay)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Events.KafkaBrokers)
	assert.Equal(t, time.Second, cfg.Research.JobItemDelay, "invalid durations fall back to the default")
	assert.True(t, cfg.AIEnabled())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("AI_PROVIDER", "")

	cfg := Load()

	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.False(t, cfg.AIEnabled())
	assert.NoError(t, cfg.Validate())
}
