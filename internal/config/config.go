// Package config provides environment configuration for the pipeline services.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	APIPort            string
	AdminPort          string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Store settings
	DatabaseDSN string

	// Redis (shared rate-limit counter store)
	RedisAddr     string
	RedisPassword string

	// JWT settings
	JWTSecret string

	// LLM settings
	OpenAIAPIKey    string
	AnthropicAPIKey string
	CompletionModel string
	SummaryModel    string
	EmbeddingModel  string

	// Channel gateway
	ChannelGatewayURL   string
	ChannelGatewayToken string

	// Retrieval
	RetrievalTopK      int
	RetrievalThreshold float64

	// Timeout monitor
	MonitorInterval  time.Duration
	WarningThreshold time.Duration
	CloseThreshold   time.Duration

	// Worker
	WorkerConcurrency int

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		APIPort:            getEnv("PORT", "8080"),
		AdminPort:          getEnv("ADMIN_PORT", "9090"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Store
		DatabaseDSN: getEnv("DATABASE_DSN", "pipeline.db"),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		CompletionModel: getEnv("COMPLETION_MODEL", "gpt-4o"),
		SummaryModel:    getEnv("SUMMARY_MODEL", "gpt-4o-mini"),
		EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		// Channel gateway
		ChannelGatewayURL:   getEnv("CHANNEL_GATEWAY_URL", "http://localhost:3000"),
		ChannelGatewayToken: getEnv("CHANNEL_GATEWAY_TOKEN", ""),

		// Retrieval
		RetrievalTopK:      getIntEnv("RETRIEVAL_TOP_K", 5),
		RetrievalThreshold: getFloatEnv("RETRIEVAL_THRESHOLD", 0.3),

		// Timeout monitor
		MonitorInterval:  getDurationEnv("MONITOR_INTERVAL", 5*time.Minute),
		WarningThreshold: getDurationEnv("INACTIVITY_WARNING_AFTER", 15*time.Minute),
		CloseThreshold:   getDurationEnv("INACTIVITY_CLOSE_AFTER", 30*time.Minute),

		// Worker
		WorkerConcurrency: getIntEnv("WORKER_CONCURRENCY", 2),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
