package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Store backends
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Audit sinks
const (
	AuditLog      = "log"
	AuditPostgres = "postgres"
	AuditRedis    = "redis"
	AuditMongo    = "mongo"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	DatabaseURL   string
	DBMaxConns    int32
	RedisURL      string
	MongoURL      string
	MongoDatabase string

	StoreBackend  string
	AuditSink     string
	NotifyChannel string

	JWTSecret string

	DefaultCountryCode string
	ViewLimit          int
	PhaseSyncSchedule  string
	TxMaxAttempts      int
	AutoSubmitOnCreate bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:5174")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		DBMaxConns:    int32(getIntEnv("DB_MAX_CONNS", 20)),
		RedisURL:      getEnv("REDIS_URL", ""),
		MongoURL:      getEnv("MONGO_URL", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "ballot_engine"),

		StoreBackend:  strings.ToLower(getEnv("STORE_BACKEND", StorePostgres)),
		AuditSink:     strings.ToLower(getEnv("AUDIT_SINK", AuditLog)),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "233"),
		ViewLimit:          getIntEnv("VIEW_LIMIT", 10),
		PhaseSyncSchedule:  getEnv("PHASE_SYNC_SCHEDULE", "@every 30s"),
		TxMaxAttempts:      getIntEnv("TX_MAX_ATTEMPTS", 3),
		AutoSubmitOnCreate: getBoolEnv("AUTO_SUBMIT_ON_CREATE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected backends have what they need
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.AuditSink {
	case AuditLog:
	case AuditPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres audit sink")
		}
	case AuditRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis audit sink")
		}
	case AuditMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("MONGO_URL is required for the mongo audit sink")
		}
	default:
		return fmt.Errorf("unknown AUDIT_SINK %q", c.AuditSink)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.ViewLimit < 1 {
		return fmt.Errorf("VIEW_LIMIT must be at least 1")
	}
	return nil
}

// IsDevelopment reports whether the service runs locally
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "local"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
