package config

import (
	"os"
	"testing"
	"time"

	"github.com/quarryhost/quarry/pkg/observability"
)

// TestGetEnv tests the getEnv helper function
func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns env value when set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when env not set",
			key:          "TEST_VAR_NOT_SET",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvBool tests the getEnvBool helper function
func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "returns true for 'true'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "returns true for '1'",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "returns false for 'false'",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "false",
			want:         false,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_BOOL_NOT_SET",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGetEnvDuration tests the getEnvDuration helper function
func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns parsed duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default for invalid duration",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_DURATION_NOT_SET",
			defaultValue: 10 * time.Second,
			envValue:     "",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			} else {
				os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestLoadServerConfig tests the loadServerConfig function
func TestLoadServerConfig(t *testing.T) {
	originalEnv := map[string]string{
		"QUARRY_HOST":             os.Getenv("QUARRY_HOST"),
		"QUARRY_PORT":             os.Getenv("QUARRY_PORT"),
		"QUARRY_READ_TIMEOUT":     os.Getenv("QUARRY_READ_TIMEOUT"),
		"QUARRY_WRITE_TIMEOUT":    os.Getenv("QUARRY_WRITE_TIMEOUT"),
		"QUARRY_IDLE_TIMEOUT":     os.Getenv("QUARRY_IDLE_TIMEOUT"),
		"QUARRY_SHUTDOWN_TIMEOUT": os.Getenv("QUARRY_SHUTDOWN_TIMEOUT"),
		"QUARRY_HEALTH_PORT":      os.Getenv("QUARRY_HEALTH_PORT"),
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ServerConfig{
				Host:            "0.0.0.0",
				Port:            "8080",
				ReadTimeout:     15 * time.Second,
				WriteTimeout:    15 * time.Second,
				IdleTimeout:     60 * time.Second,
				ShutdownTimeout: 30 * time.Second,
				HealthPort:      "9090",
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"QUARRY_HOST":             "localhost",
				"QUARRY_PORT":             "3000",
				"QUARRY_READ_TIMEOUT":     "30s",
				"QUARRY_WRITE_TIMEOUT":    "30s",
				"QUARRY_IDLE_TIMEOUT":     "120s",
				"QUARRY_SHUTDOWN_TIMEOUT": "60s",
				"QUARRY_HEALTH_PORT":      "9091",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k := range originalEnv {
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadServerConfig()
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadStorageConfig tests the loadStorageConfig function
func TestLoadStorageConfig(t *testing.T) {
	envVars := []string{
		"QUARRY_POSTGRES_URL",
		"QUARRY_POSTGRES_REPLICA_URLS",
		"QUARRY_POSTGRES_MAX_CONNS",
		"QUARRY_POSTGRES_MIN_CONNS",
		"QUARRY_POSTGRES_TIMEOUT",
		"QUARRY_S3_ENDPOINT",
		"QUARRY_S3_REGION",
		"QUARRY_S3_BUCKET",
		"QUARRY_S3_ACCESS_KEY",
		"QUARRY_S3_SECRET_KEY",
		"QUARRY_S3_USE_PATH_STYLE",
		"QUARRY_S3_FORCE_PATH_STYLE",
		"QUARRY_REDIS_URL",
		"QUARRY_REDIS_PASSWORD",
		"QUARRY_REDIS_DB",
		"QUARRY_REDIS_MAX_RETRIES",
		"QUARRY_REDIS_POOL_SIZE",
		"QUARRY_CACHE_ENABLED",
		"QUARRY_L1_CACHE_SIZE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("loads postgres config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_POSTGRES_URL", "postgres://localhost/quarry")
		os.Setenv("QUARRY_POSTGRES_REPLICA_URLS", "postgres://replica1,postgres://replica2")
		os.Setenv("QUARRY_POSTGRES_MAX_CONNS", "50")
		os.Setenv("QUARRY_POSTGRES_MIN_CONNS", "5")
		os.Setenv("QUARRY_POSTGRES_TIMEOUT", "20s")

		cfg := loadStorageConfig()
		if cfg.PostgresURL != "postgres://localhost/quarry" {
			t.Errorf("PostgresURL = %v, want postgres://localhost/quarry", cfg.PostgresURL)
		}
		if cfg.PostgresReplicaURLs != "postgres://replica1,postgres://replica2" {
			t.Errorf("PostgresReplicaURLs = %v", cfg.PostgresReplicaURLs)
		}
		if cfg.PostgresMaxConns != 50 {
			t.Errorf("PostgresMaxConns = %v, want 50", cfg.PostgresMaxConns)
		}
		if cfg.PostgresMinConns != 5 {
			t.Errorf("PostgresMinConns = %v, want 5", cfg.PostgresMinConns)
		}
		if cfg.PostgresTimeout != 20*time.Second {
			t.Errorf("PostgresTimeout = %v, want 20s", cfg.PostgresTimeout)
		}
	})

	t.Run("loads s3 config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_S3_ENDPOINT", "s3.amazonaws.com")
		os.Setenv("QUARRY_S3_REGION", "us-east-1")
		os.Setenv("QUARRY_S3_BUCKET", "quarry-files")
		os.Setenv("QUARRY_S3_USE_PATH_STYLE", "true")

		cfg := loadStorageConfig()
		if cfg.S3Endpoint != "s3.amazonaws.com" {
			t.Errorf("S3Endpoint = %v, want s3.amazonaws.com", cfg.S3Endpoint)
		}
		if cfg.S3Region != "us-east-1" {
			t.Errorf("S3Region = %v, want us-east-1", cfg.S3Region)
		}
		if cfg.S3Bucket != "quarry-files" {
			t.Errorf("S3Bucket = %v, want quarry-files", cfg.S3Bucket)
		}
		if !cfg.S3UsePathStyle {
			t.Errorf("S3UsePathStyle = %v, want true", cfg.S3UsePathStyle)
		}
	})

	t.Run("loads redis config from env", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_REDIS_URL", "redis://localhost:6379")
		os.Setenv("QUARRY_REDIS_DB", "1")
		os.Setenv("QUARRY_REDIS_POOL_SIZE", "20")

		cfg := loadStorageConfig()
		if cfg.RedisURL != "redis://localhost:6379" {
			t.Errorf("RedisURL = %v, want redis://localhost:6379", cfg.RedisURL)
		}
		if cfg.RedisDB != 1 {
			t.Errorf("RedisDB = %v, want 1", cfg.RedisDB)
		}
		if cfg.RedisPoolSize != 20 {
			t.Errorf("RedisPoolSize = %v, want 20", cfg.RedisPoolSize)
		}
	})

	t.Run("ignores invalid postgres max conns", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_POSTGRES_MAX_CONNS", "0")

		cfg := loadStorageConfig()
		if cfg.PostgresMaxConns != 20 {
			t.Errorf("PostgresMaxConns = %v, want 20 (default)", cfg.PostgresMaxConns)
		}
	})
}

// TestLoadAuthConfig tests the loadAuthConfig function
func TestLoadAuthConfig(t *testing.T) {
	envVars := []string{
		"QUARRY_OIDC_ENABLED",
		"QUARRY_OIDC_ISSUER_URL",
		"QUARRY_OIDC_CLIENT_ID",
		"QUARRY_OIDC_CLIENT_SECRET",
		"QUARRY_OIDC_REDIRECT_URL",
		"QUARRY_SESSION_TTL",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadAuthConfig()
		if cfg.OIDCEnabled {
			t.Error("OIDCEnabled = true, want false")
		}
		if cfg.SessionTTL != 14*24*time.Hour {
			t.Errorf("SessionTTL = %v, want 336h", cfg.SessionTTL)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_OIDC_ENABLED", "true")
		os.Setenv("QUARRY_OIDC_ISSUER_URL", "https://id.example.com")
		os.Setenv("QUARRY_OIDC_CLIENT_ID", "quarry")
		os.Setenv("QUARRY_SESSION_TTL", "24h")

		cfg := loadAuthConfig()
		if !cfg.OIDCEnabled {
			t.Error("OIDCEnabled = false, want true")
		}
		if cfg.OIDCIssuerURL != "https://id.example.com" {
			t.Errorf("OIDCIssuerURL = %v", cfg.OIDCIssuerURL)
		}
		if cfg.OIDCClientID != "quarry" {
			t.Errorf("OIDCClientID = %v", cfg.OIDCClientID)
		}
		if cfg.SessionTTL != 24*time.Hour {
			t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
		}
	})
}

// TestLoadBansConfig tests the loadBansConfig function
func TestLoadBansConfig(t *testing.T) {
	envVars := []string{
		"QUARRY_BAN_MESSAGES_PATH",
		"QUARRY_BAN_MESSAGES_WATCH",
		"QUARRY_BAN_SWEEP_SCHEDULE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	t.Run("defaults", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		cfg := loadBansConfig()
		if cfg.MessagesPath != "" {
			t.Errorf("MessagesPath = %v, want empty", cfg.MessagesPath)
		}
		if cfg.WatchMessages {
			t.Error("WatchMessages = true, want false")
		}
		if cfg.SweepSchedule != "@hourly" {
			t.Errorf("SweepSchedule = %v, want @hourly", cfg.SweepSchedule)
		}
	})

	t.Run("custom values", func(t *testing.T) {
		for _, k := range envVars {
			os.Unsetenv(k)
		}

		os.Setenv("QUARRY_BAN_MESSAGES_PATH", "/etc/quarry/bans.yaml")
		os.Setenv("QUARRY_BAN_MESSAGES_WATCH", "true")
		os.Setenv("QUARRY_BAN_SWEEP_SCHEDULE", "*/5 * * * *")

		cfg := loadBansConfig()
		if cfg.MessagesPath != "/etc/quarry/bans.yaml" {
			t.Errorf("MessagesPath = %v", cfg.MessagesPath)
		}
		if !cfg.WatchMessages {
			t.Error("WatchMessages = false, want true")
		}
		if cfg.SweepSchedule != "*/5 * * * *" {
			t.Errorf("SweepSchedule = %v", cfg.SweepSchedule)
		}
	})
}

// TestLoadObservabilityConfig tests the loadObservabilityConfig function
func TestLoadObservabilityConfig(t *testing.T) {
	envVars := []string{
		"QUARRY_LOG_LEVEL",
		"QUARRY_METRICS_ENABLED",
		"QUARRY_OTEL_ENABLED",
		"QUARRY_OTEL_ENDPOINT",
		"QUARRY_OTEL_SERVICE_NAME",
		"QUARRY_OTEL_SERVICE_VERSION",
		"QUARRY_OTEL_INSECURE",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name string
		env  map[string]string
		want ObservabilityConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: ObservabilityConfig{
				LogLevel:           observability.InfoLevel,
				MetricsEnabled:     true,
				OTelEnabled:        false,
				OTelEndpoint:       "localhost:4317",
				OTelServiceName:    "quarry-api",
				OTelServiceVersion: "1.0.0",
				OTelInsecure:       true,
			},
		},
		{
			name: "custom values",
			env: map[string]string{
				"QUARRY_LOG_LEVEL":            "debug",
				"QUARRY_METRICS_ENABLED":      "false",
				"QUARRY_OTEL_ENABLED":         "true",
				"QUARRY_OTEL_ENDPOINT":        "otel-collector:4317",
				"QUARRY_OTEL_SERVICE_NAME":    "my-service",
				"QUARRY_OTEL_SERVICE_VERSION": "2.0.0",
				"QUARRY_OTEL_INSECURE":        "false",
			},
			want: ObservabilityConfig{
				LogLevel:           observability.DebugLevel,
				MetricsEnabled:     false,
				OTelEnabled:        true,
				OTelEndpoint:       "otel-collector:4317",
				OTelServiceName:    "my-service",
				OTelServiceVersion: "2.0.0",
				OTelInsecure:       false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envVars {
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			got := loadObservabilityConfig()
			if got != tt.want {
				t.Errorf("loadObservabilityConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestConfigValidate tests the Config.Validate method
func TestConfigValidate(t *testing.T) {
	validConfig := func() Config {
		cfg := Config{
			Server: ServerConfig{
				Port:       "8080",
				HealthPort: "9090",
			},
		}
		cfg.Storage.PostgresURL = "postgres://localhost/quarry"
		return cfg
	}

	t.Run("valid config", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})

	t.Run("missing server port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Port = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port is required" {
			t.Errorf("Validate() error = %v, want 'server port is required'", err.Error())
		}
	})

	t.Run("missing health port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HealthPort = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.HealthPort = "8080"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "server port and health port must be different" {
			t.Errorf("Validate() error = %v", err.Error())
		}
	})

	t.Run("missing postgres url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Storage.PostgresURL = ""
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
		if err != nil && err.Error() != "postgres URL is required" {
			t.Errorf("Validate() error = %v, want 'postgres URL is required'", err.Error())
		}
	})

	t.Run("oidc enabled without issuer", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.OIDCEnabled = true
		cfg.Auth.OIDCClientID = "quarry"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("oidc enabled without client id", func(t *testing.T) {
		cfg := validConfig()
		cfg.Auth.OIDCEnabled = true
		cfg.Auth.OIDCIssuerURL = "https://id.example.com"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("otel enabled without endpoint", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelServiceName = "test"
		err := cfg.Validate()
		if err == nil {
			t.Error("Validate() expected error, got nil")
		}
	})

	t.Run("valid otel config", func(t *testing.T) {
		cfg := validConfig()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelEndpoint = "localhost:4317"
		cfg.Observability.OTelServiceName = "test-service"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error = %v", err)
		}
	})
}

// TestLoadConfig tests the LoadConfig function
func TestLoadConfig(t *testing.T) {
	envVars := []string{
		"QUARRY_PORT",
		"QUARRY_HEALTH_PORT",
		"QUARRY_POSTGRES_URL",
	}
	originalEnv := make(map[string]string)
	for _, k := range envVars {
		originalEnv[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range originalEnv {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{
			name: "valid config",
			env: map[string]string{
				"QUARRY_PORT":         "8080",
				"QUARRY_HEALTH_PORT":  "9090",
				"QUARRY_POSTGRES_URL": "postgres://localhost/quarry",
			},
			wantErr: false,
		},
		{
			name: "invalid config - same ports",
			env: map[string]string{
				"QUARRY_PORT":         "8080",
				"QUARRY_HEALTH_PORT":  "8080",
				"QUARRY_POSTGRES_URL": "postgres://localhost/quarry",
			},
			wantErr: true,
		},
		{
			name: "invalid config - no postgres url",
			env: map[string]string{
				"QUARRY_PORT":        "8080",
				"QUARRY_HEALTH_PORT": "9090",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range envVars {
				os.Unsetenv(k)
			}
			for k, v := range tt.env {
				os.Setenv(k, v)
			}

			cfg, err := LoadConfig()
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && cfg == nil {
				t.Error("LoadConfig() returned nil config without error")
			}
		})
	}
}
