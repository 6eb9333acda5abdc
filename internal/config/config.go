package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the main application configuration
type Config struct {
	ServerPort   int            `json:"server_port"`
	DatabasePath string         `json:"database_path"`
	CORSOrigin   string         `json:"cors_origin"`
	Auth         AuthConfig     `json:"auth"`
	AI           AIConfig       `json:"ai"`
	Research     ResearchConfig `json:"research"`
	Events       EventsConfig   `json:"events"`
	Search       SearchConfig   `json:"search"`
	Logging      LoggingConfig  `json:"logging"`
}

// AuthConfig holds token and account-hash settings
type AuthConfig struct {
	JWTSecret      string        `json:"-"`
	SessionSecret  string        `json:"-"`
	AccessTokenTTL time.Duration `json:"access_token_ttl"`
	HashAuthDelay  time.Duration `json:"hash_auth_delay"`
	AccountHashTTL time.Duration `json:"account_hash_ttl"`
}

// AIConfig defines the LLM provider used for framework suggestions
type AIConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	APIKey    string `json:"-"`
	MaxTokens int    `json:"max_tokens"`
}

// ResearchConfig controls the research tooling and background jobs
type ResearchConfig struct {
	WaybackEnabled  bool          `json:"wayback_enabled"`
	WaybackEndpoint string        `json:"wayback_endpoint"`
	FetchTimeout    time.Duration `json:"fetch_timeout"`
	JobItemDelay    time.Duration `json:"job_item_delay"`
	MaxScrapePages  int           `json:"max_scrape_pages"`
	UserAgent       string        `json:"user_agent"`
}

// EventsConfig enables publishing domain events to Kafka
type EventsConfig struct {
	EnableKafka  bool     `json:"enable_kafka"`
	KafkaBrokers []string `json:"kafka_brokers"`
	KafkaTopic   string   `json:"kafka_topic"`
	ClientID     string   `json:"client_id"`
}

// SearchConfig controls the semantic session index
type SearchConfig struct {
	Enable            bool   `json:"enable"`
	Path              string `json:"path"` // empty keeps the index in memory
	EmbeddingEndpoint string `json:"embedding_endpoint"`
	Dimensions        int    `json:"dimensions"`
}

// LoggingConfig configures the zap logger
type LoggingConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ServerPort:   getEnvInt("SERVER_PORT", 8000),
		DatabasePath: getEnv("DATABASE_PATH", "researchtools.db"),
		CORSOrigin:   getEnv("CORS_ORIGIN", "*"),
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			SessionSecret:  getEnv("SESSION_SECRET", "another-secret-key-change-in-production"),
			AccessTokenTTL: getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
			HashAuthDelay:  getEnvDuration("HASH_AUTH_DELAY", time.Second),
			AccountHashTTL: getEnvDuration("ACCOUNT_HASH_TTL", 90*24*time.Hour),
		},
		AI: AIConfig{
			Provider:  getEnv("AI_PROVIDER", "openai"),
			Model:     getEnv("AI_MODEL", "gpt-4o-mini"),
			APIKey:    getEnv("AI_API_KEY", os.Getenv("OPENAI_API_KEY")),
			MaxTokens: getEnvInt("AI_MAX_TOKENS", 2000),
		},
		Research: ResearchConfig{
			WaybackEnabled:  getEnvBool("WAYBACK_ENABLE", false),
			WaybackEndpoint: getEnv("WAYBACK_ENDPOINT", "https://web.archive.org"),
			FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
			JobItemDelay:    getEnvDuration("JOB_ITEM_DELAY", time.Second),
			MaxScrapePages:  getEnvInt("MAX_SCRAPE_PAGES", 10),
			UserAgent:       getEnv("USER_AGENT", "ResearchTools/1.0 (+https://researchtools.net)"),
		},
		Events: EventsConfig{
			EnableKafka:  getEnvBool("KAFKA_ENABLE", false),
			KafkaBrokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			KafkaTopic:   getEnv("KAFKA_TOPIC", "researchtools-events"),
			ClientID:     getEnv("KAFKA_CLIENT_ID", "researchtools-api"),
		},
		Search: SearchConfig{
			Enable:            getEnvBool("SEARCH_ENABLE", true),
			Path:              getEnv("SEARCH_INDEX_PATH", ""),
			EmbeddingEndpoint: getEnv("EMBEDDING_ENDPOINT", ""),
			Dimensions:        getEnvInt("EMBEDDING_DIMENSIONS", 256),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvBool("LOG_DEVELOPMENT", false),
		},
	}
}

// Validate checks the settings needed to serve requests
func (c *Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 1 and 65535")
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("jwt secret must be at least 16 characters")
	}

	if c.Auth.AccessTokenTTL < time.Minute {
		return fmt.Errorf("access_token_ttl must be at least 1 minute")
	}

	if c.Auth.HashAuthDelay < 0 {
		return fmt.Errorf("hash_auth_delay cannot be negative")
	}

	validProviders := map[string]bool{
		"openai":    true,
		"anthropic": true,
		"gemini":    true,
		"cerebras":  true,
		"deepseek":  true,
		"groq":      true,
		"ollama":    true,
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("invalid ai provider: %s", c.AI.Provider)
	}

	if c.Events.EnableKafka && len(c.Events.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka_brokers is required when kafka is enabled")
	}

	return nil
}

// AIEnabled reports whether an API key is configured for the AI provider
func (c *Config) AIEnabled() bool {
	return c.AI.APIKey != "" || c.AI.Provider == "ollama"
}

// getEnv retrieves environment variable with fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool retrieves boolean environment variable with fallback
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvInt retrieves integer environment variable with fallback
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("750ms", "2h")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
