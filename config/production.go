// Package config provides configuration management and environment variable handling for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	AdPlatform AdPlatformConfig `json:"ad_platform"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	RequestTimeout  time.Duration `json:"request_timeout"`
	BodyLimit       int           `json:"body_limit"`
}

type SecurityConfig struct {
	AllowedOrigins  []string      `json:"allowed_origins"`
	GlobalRateLimit int           `json:"global_rate_limit"`
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

type JWTConfig struct {
	SecretKey       string        `json:"secret_key"`
	PrivateKey      string        `json:"private_key"`  // RSA private key in PEM format
	PublicKey       string        `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys      bool          `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	AccessTokenTTL  time.Duration `json:"access_token_ttl"`
	RefreshTokenTTL time.Duration `json:"refresh_token_ttl"`
	Issuer          string        `json:"issuer"`
	Audience        string        `json:"audience"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled             bool          `json:"enabled"`
	Provider            string        `json:"provider"` // redis, memory
	RedisURL            string        `json:"redis_url"`
	RedisDB             int           `json:"redis_db"`
	RedisPrefix         string        `json:"redis_prefix"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
}

// AdPlatformConfig configures the Graph API integration
type AdPlatformConfig struct {
	AppID              string        `json:"app_id"`
	AppSecret          string        `json:"-"`
	GraphBaseURL       string        `json:"graph_base_url"`
	GraphVersion       string        `json:"graph_version"`
	RequestTimeout     time.Duration `json:"request_timeout"`
	DefaultTokenTTL    time.Duration `json:"default_token_ttl"`
	TokenEncryptionKey string        `json:"-"`
	PrivacyPolicyURL   string        `json:"privacy_policy_url"`
	MaxListPages       int           `json:"max_list_pages"`
	LockTTL            time.Duration `json:"lock_ttl"`
	LockWait           time.Duration `json:"lock_wait"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// DeliverySteps is the number of remote creation calls in a full delivery run
const DeliverySteps = 6

// DeliveryTimeout bounds one delivery run: the request timeout plus one remote
// round trip per creation step
func (c *ProductionConfig) DeliveryTimeout() time.Duration {
	return c.Server.RequestTimeout + DeliverySteps*c.AdPlatform.RequestTimeout
}

// HasCredentials reports whether the app id and secret are both configured
func (c AdPlatformConfig) HasCredentials() bool {
	return c.AppID != "" && c.AppSecret != ""
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 90*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
		},
		Security: SecurityConfig{
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://app.adbridge.io", "https://admin.adbridge.io"}),
			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 600),
			RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:       getEnvString("JWT_SECRET_KEY", ""),
			PrivateKey:      getEnvString("JWT_PRIVATE_KEY", ""),
			PublicKey:       getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys:      getEnvBool("JWT_USE_RSA_KEYS", false),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TOKEN_TTL", 7*24*time.Hour),
			Issuer:          getEnvString("JWT_ISSUER", "adbridge"),
			Audience:        getEnvString("JWT_AUDIENCE", "adbridge-api"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/adbridge/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:             getEnvBool("CACHE_ENABLED", true),
			Provider:            getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:            getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:             getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:         getEnvString("CACHE_REDIS_PREFIX", "adbridge:"),
			HealthCheckInterval: getEnvDuration("CACHE_HEALTH_CHECK_INTERVAL", 30*time.Second),
		},
		AdPlatform: AdPlatformConfig{
			AppID:              getEnvString("AD_PLATFORM_APP_ID", ""),
			AppSecret:          getEnvString("AD_PLATFORM_APP_SECRET", ""),
			GraphBaseURL:       getEnvString("AD_PLATFORM_GRAPH_BASE_URL", "https://graph.facebook.com"),
			GraphVersion:       getEnvString("AD_PLATFORM_GRAPH_VERSION", "v21.0"),
			RequestTimeout:     getEnvDuration("AD_PLATFORM_REQUEST_TIMEOUT", 20*time.Second),
			DefaultTokenTTL:    getEnvDuration("AD_PLATFORM_DEFAULT_TOKEN_TTL", 60*24*time.Hour),
			TokenEncryptionKey: getEnvString("AD_PLATFORM_TOKEN_ENCRYPTION_KEY", ""),
			PrivacyPolicyURL:   getEnvString("AD_PLATFORM_PRIVACY_POLICY_URL", "https://adbridge.io/privacy"),
			MaxListPages:       getEnvInt("AD_PLATFORM_MAX_LIST_PAGES", 10),
			LockTTL:            getEnvDuration("AD_PLATFORM_LOCK_TTL", 5*time.Minute),
			LockWait:           getEnvDuration("AD_PLATFORM_LOCK_WAIT", 30*time.Second),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from the given file if it exists.
// Variables already present in the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate JWT configuration
	if !cfg.JWT.UseRSAKeys && len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.UseRSAKeys && (cfg.JWT.PrivateKey == "" || cfg.JWT.PublicKey == "") {
		errors = append(errors, "JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required when JWT_USE_RSA_KEYS is set")
	}
	if cfg.JWT.AccessTokenTTL <= 0 {
		errors = append(errors, "JWT_ACCESS_TOKEN_TTL must be positive")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.RequestTimeout <= 0 {
		errors = append(errors, "SERVER_REQUEST_TIMEOUT must be positive")
	}

	// Validate logging configuration
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errors = append(errors, "LOG_LEVEL must be one of: [debug info warn error]")
	}
	switch cfg.Logging.Output {
	case "stdout":
	case "file", "both":
		if cfg.Logging.FilePath == "" {
			errors = append(errors, "LOG_FILE_PATH is required when LOG_OUTPUT writes to a file")
		}
	default:
		errors = append(errors, "LOG_OUTPUT must be one of: [stdout file both]")
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
	}

	// Validate ad platform configuration. Missing app credentials are
	// reported per request as a fatal configuration error instead.
	if cfg.AdPlatform.GraphBaseURL == "" {
		errors = append(errors, "AD_PLATFORM_GRAPH_BASE_URL is required")
	}
	if cfg.AdPlatform.GraphVersion == "" {
		errors = append(errors, "AD_PLATFORM_GRAPH_VERSION is required")
	}
	if cfg.AdPlatform.RequestTimeout <= 0 {
		errors = append(errors, "AD_PLATFORM_REQUEST_TIMEOUT must be positive")
	}
	if len(cfg.AdPlatform.TokenEncryptionKey) < 32 {
		errors = append(errors, "AD_PLATFORM_TOKEN_ENCRYPTION_KEY must be at least 32 characters long")
	}
	if cfg.AdPlatform.MaxListPages <= 0 {
		errors = append(errors, "AD_PLATFORM_MAX_LIST_PAGES must be positive")
	}
	// A campaign lock must outlive the longest run holding it
	if limit := cfg.DeliveryTimeout(); cfg.AdPlatform.LockTTL <= limit {
		errors = append(errors, fmt.Sprintf("AD_PLATFORM_LOCK_TTL must be longer than the delivery timeout (%s)", limit))
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
