package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kbforge/kbforge/pkg/objectstore"
	"github.com/kbforge/kbforge/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// PostgreSQL configuration
	Postgres PostgresConfig

	// Redis configuration (sessions, rate limiting, resolution cache)
	Redis RedisConfig

	// Object storage configuration (document buckets)
	ObjectStore objectstore.Config

	// Session configuration
	Session SessionConfig

	// Permission resolution cache TTL (0 disables caching)
	CacheTTL time.Duration

	// Audit retention window (0 disables the cleanup janitor)
	AuditRetention time.Duration

	// Rate limiting
	RateLimit RateLimitConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// PostgresConfig holds database connection settings
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SessionConfig holds session store settings
type SessionConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:         loadServerConfig(),
		Postgres:       loadPostgresConfig(),
		Redis:          loadRedisConfig(),
		ObjectStore:    loadObjectStoreConfig(),
		Session:        loadSessionConfig(),
		CacheTTL:       getEnvDuration("KBFORGE_CACHE_TTL", 30*time.Second),
		AuditRetention: getEnvDuration("KBFORGE_AUDIT_RETENTION", 90*24*time.Hour),
		RateLimit:      loadRateLimitConfig(),
		Observability:  loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("KBFORGE_HOST", "0.0.0.0"),
		Port:            getEnv("KBFORGE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("KBFORGE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("KBFORGE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("KBFORGE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("KBFORGE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("KBFORGE_HEALTH_PORT", "9090"),
	}
}

// loadPostgresConfig loads database configuration from environment
func loadPostgresConfig() PostgresConfig {
	return PostgresConfig{
		URL:             getEnv("KBFORGE_POSTGRES_URL", ""),
		MaxOpenConns:    getEnvInt("KBFORGE_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns:    getEnvInt("KBFORGE_POSTGRES_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("KBFORGE_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

// loadRedisConfig loads Redis configuration from environment
func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("KBFORGE_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("KBFORGE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("KBFORGE_REDIS_DB", 0),
	}
}

// loadObjectStoreConfig loads object storage configuration from environment.
// An empty endpoint leaves bucket provisioning disabled.
func loadObjectStoreConfig() objectstore.Config {
	return objectstore.Config{
		Endpoint:     getEnv("KBFORGE_S3_ENDPOINT", ""),
		Region:       getEnv("KBFORGE_S3_REGION", "us-east-1"),
		AccessKey:    getEnv("KBFORGE_S3_ACCESS_KEY", ""),
		SecretKey:    getEnv("KBFORGE_S3_SECRET_KEY", ""),
		UsePathStyle: getEnvBool("KBFORGE_S3_USE_PATH_STYLE", true),
		BucketPrefix: getEnv("KBFORGE_S3_BUCKET_PREFIX", "kbforge"),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		TTL: getEnvDuration("KBFORGE_SESSION_TTL", 24*time.Hour),
	}
}

// loadRateLimitConfig loads rate limiter configuration from environment
func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("KBFORGE_RATELIMIT_ENABLED", true),
		RequestsPerWindow: getEnvInt("KBFORGE_RATELIMIT_REQUESTS", 300),
		WindowDuration:    getEnvDuration("KBFORGE_RATELIMIT_WINDOW", time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("KBFORGE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("KBFORGE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Postgres.URL == "" {
		return fmt.Errorf("postgres URL is required (set KBFORGE_POSTGRES_URL)")
	}
	if c.Postgres.MaxOpenConns < 1 {
		return fmt.Errorf("postgres max conns must be at least 1")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.ObjectStore.Endpoint != "" {
		if c.ObjectStore.AccessKey == "" || c.ObjectStore.SecretKey == "" {
			return fmt.Errorf("S3 access key and secret key are required when an endpoint is set")
		}
	}

	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerWindow < 1 {
			return fmt.Errorf("rate limit requests per window must be at least 1")
		}
		if c.RateLimit.WindowDuration <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
