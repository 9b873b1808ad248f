package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quarryhost/quarry/pkg/observability"
	"github.com/quarryhost/quarry/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Auth configuration
	Auth AuthConfig

	// Bans configuration
	Bans BansConfig

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

// AuthConfig holds OIDC and session configuration
type AuthConfig struct {
	OIDCEnabled      bool
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	SessionTTL time.Duration
}

// BansConfig holds ban registry configuration
type BansConfig struct {
	// Path to the YAML message catalog; empty uses built-in messages
	MessagesPath string
	// Hot-reload the message catalog on file changes
	WatchMessages bool
	// Cron schedule for the expired-ban sweep
	SweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Bans:          loadBansConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("QUARRY_HOST", "0.0.0.0"),
		Port:            getEnv("QUARRY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("QUARRY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("QUARRY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("QUARRY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("QUARRY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("QUARRY_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// PostgreSQL config
	if pgURL := getEnv("QUARRY_POSTGRES_URL", ""); pgURL != "" {
		cfg.PostgresURL = pgURL
	}
	if replicaURLs := getEnv("QUARRY_POSTGRES_REPLICA_URLS", ""); replicaURLs != "" {
		cfg.PostgresReplicaURLs = replicaURLs
	}
	if maxConns := getEnvInt("QUARRY_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("QUARRY_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("QUARRY_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	// S3 config
	if s3Endpoint := getEnv("QUARRY_S3_ENDPOINT", ""); s3Endpoint != "" {
		cfg.S3Endpoint = s3Endpoint
	}
	if s3Region := getEnv("QUARRY_S3_REGION", ""); s3Region != "" {
		cfg.S3Region = s3Region
	}
	if s3Bucket := getEnv("QUARRY_S3_BUCKET", ""); s3Bucket != "" {
		cfg.S3Bucket = s3Bucket
	}
	if s3AccessKey := getEnv("QUARRY_S3_ACCESS_KEY", ""); s3AccessKey != "" {
		cfg.S3AccessKey = s3AccessKey
	}
	if s3SecretKey := getEnv("QUARRY_S3_SECRET_KEY", ""); s3SecretKey != "" {
		cfg.S3SecretKey = s3SecretKey
	}
	if s3UsePathStyle := getEnv("QUARRY_S3_USE_PATH_STYLE", ""); s3UsePathStyle != "" {
		cfg.S3UsePathStyle = strings.ToLower(s3UsePathStyle) == "true"
	}
	if s3ForcePathStyle := getEnv("QUARRY_S3_FORCE_PATH_STYLE", ""); s3ForcePathStyle != "" {
		cfg.S3ForcePathStyle = strings.ToLower(s3ForcePathStyle) == "true"
	}

	// Redis config
	if redisURL := getEnv("QUARRY_REDIS_URL", ""); redisURL != "" {
		cfg.RedisURL = redisURL
	}
	if redisPassword := getEnv("QUARRY_REDIS_PASSWORD", ""); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}
	if redisDB := getEnvInt("QUARRY_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if redisMaxRetries := getEnvInt("QUARRY_REDIS_MAX_RETRIES", 0); redisMaxRetries > 0 {
		cfg.RedisMaxRetries = redisMaxRetries
	}
	if redisPoolSize := getEnvInt("QUARRY_REDIS_POOL_SIZE", 0); redisPoolSize > 0 {
		cfg.RedisPoolSize = redisPoolSize
	}

	// Cache config
	if cacheEnabled := getEnv("QUARRY_CACHE_ENABLED", ""); cacheEnabled != "" {
		cfg.CacheEnabled = strings.ToLower(cacheEnabled) == "true"
	}
	if l1CacheSize := getEnvInt("QUARRY_L1_CACHE_SIZE", 0); l1CacheSize > 0 {
		cfg.L1CacheSize = l1CacheSize
	}

	return cfg
}

// loadAuthConfig loads auth configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCEnabled:      getEnvBool("QUARRY_OIDC_ENABLED", false),
		OIDCIssuerURL:    getEnv("QUARRY_OIDC_ISSUER_URL", ""),
		OIDCClientID:     getEnv("QUARRY_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("QUARRY_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("QUARRY_OIDC_REDIRECT_URL", ""),
		SessionTTL:       getEnvDuration("QUARRY_SESSION_TTL", 14*24*time.Hour),
	}
}

// loadBansConfig loads ban registry configuration from environment
func loadBansConfig() BansConfig {
	return BansConfig{
		MessagesPath:  getEnv("QUARRY_BAN_MESSAGES_PATH", ""),
		WatchMessages: getEnvBool("QUARRY_BAN_MESSAGES_WATCH", false),
		SweepSchedule: getEnv("QUARRY_BAN_SWEEP_SCHEDULE", "@hourly"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("QUARRY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("QUARRY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("QUARRY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("QUARRY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("QUARRY_OTEL_SERVICE_NAME", "quarry-api"),
		OTelServiceVersion: getEnv("QUARRY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("QUARRY_OTEL_INSECURE", true),
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

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Auth.OIDCEnabled {
		if c.Auth.OIDCIssuerURL == "" {
			return fmt.Errorf("OIDC issuer URL is required when OIDC is enabled")
		}
		if c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC client ID is required when OIDC is enabled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
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
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
