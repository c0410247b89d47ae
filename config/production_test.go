package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "adbridge", User: "adbridge", Password: "secret"},
		Server:   ServerConfig{Port: 8080, RequestTimeout: 30 * time.Second},
		JWT: JWTConfig{
			SecretKey:      "test-secret-key-for-jwt-signing-32-chars",
			AccessTokenTTL: time.Hour,
		},
		Logging: LoggingConfig{Level: "info", Output: "stdout"},
		Cache:   CacheConfig{Enabled: false},
		AdPlatform: AdPlatformConfig{
			GraphBaseURL:       "https://graph.facebook.com",
			GraphVersion:       "v21.0",
			RequestTimeout:     10 * time.Second,
			TokenEncryptionKey: "0123456789abcdef0123456789abcdef",
			MaxListPages:       5,
			LockTTL:            5 * time.Minute,
		},
	}
}

func TestValidateProductionConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *ProductionConfig)
		expectError string
	}{
		{
			name:   "valid configuration",
			mutate: func(cfg *ProductionConfig) {},
		},
		{
			name:        "missing database password",
			mutate:      func(cfg *ProductionConfig) { cfg.Database.Password = "" },
			expectError: "DB_PASSWORD is required",
		},
		{
			name:        "short jwt secret",
			mutate:      func(cfg *ProductionConfig) { cfg.JWT.SecretKey = "short" },
			expectError: "JWT_SECRET_KEY must be at least 32 characters long",
		},
		{
			name:        "short token encryption key",
			mutate:      func(cfg *ProductionConfig) { cfg.AdPlatform.TokenEncryptionKey = "short" },
			expectError: "AD_PLATFORM_TOKEN_ENCRYPTION_KEY",
		},
		{
			name:        "file logging without a path",
			mutate:      func(cfg *ProductionConfig) { cfg.Logging.Output = "file"; cfg.Logging.FilePath = "" },
			expectError: "LOG_FILE_PATH is required",
		},
		{
			name:        "unknown log level",
			mutate:      func(cfg *ProductionConfig) { cfg.Logging.Level = "trace" },
			expectError: "LOG_LEVEL must be one of",
		},
		{
			name:        "lock ttl shorter than a delivery run",
			mutate:      func(cfg *ProductionConfig) { cfg.AdPlatform.LockTTL = 2 * time.Minute; cfg.AdPlatform.RequestTimeout = 20 * time.Second },
			expectError: "AD_PLATFORM_LOCK_TTL must be longer than the delivery timeout (2m30s)",
		},
		{
			name:        "lock ttl equal to a delivery run",
			mutate:      func(cfg *ProductionConfig) { cfg.AdPlatform.LockTTL = 90 * time.Second },
			expectError: "AD_PLATFORM_LOCK_TTL",
		},
		{
			name:   "missing app credentials are allowed at startup",
			mutate: func(cfg *ProductionConfig) { cfg.AdPlatform.AppID = ""; cfg.AdPlatform.AppSecret = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := ValidateProductionConfig(cfg)
			if tt.expectError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestDeliveryTimeout(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, 30*time.Second+6*10*time.Second, cfg.DeliveryTimeout())

	cfg.Server.RequestTimeout = 60 * time.Second
	cfg.AdPlatform.RequestTimeout = 20 * time.Second
	assert.Equal(t, 3*time.Minute, cfg.DeliveryTimeout())
}

func TestAdPlatformConfig_HasCredentials(t *testing.T) {
	assert.False(t, AdPlatformConfig{}.HasCredentials())
	assert.False(t, AdPlatformConfig{AppID: "123"}.HasCredentials())
	assert.True(t, AdPlatformConfig{AppID: "123", AppSecret: "s3cr3t"}.HasCredentials())
}

func TestLoadEnvFile_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADBRIDGE_TEST_KEEP=from-file\nADBRIDGE_TEST_NEW=\"quoted value\"\n"), 0o600))

	t.Setenv("ADBRIDGE_TEST_KEEP", "from-env")
	t.Setenv("ADBRIDGE_TEST_NEW", "")
	require.NoError(t, os.Unsetenv("ADBRIDGE_TEST_NEW"))

	require.NoError(t, loadEnvFile(path))

	assert.Equal(t, "from-env", os.Getenv("ADBRIDGE_TEST_KEEP"))
	assert.Equal(t, "quoted value", os.Getenv("ADBRIDGE_TEST_NEW"))
}

func TestLoadEnvFile_MissingFileIsIgnored(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("ADBRIDGE_TEST_SLICE", " a, b ,,c ")
	t.Setenv("ADBRIDGE_TEST_DURATION", "90s")
	t.Setenv("ADBRIDGE_TEST_INT", "not-a-number")

	assert.Equal(t, []string{"a", "b", "c"}, getEnvStringSlice("ADBRIDGE_TEST_SLICE", nil))
	assert.Equal(t, 90*time.Second, getEnvDuration("ADBRIDGE_TEST_DURATION", time.Second))
	assert.Equal(t, 7, getEnvInt("ADBRIDGE_TEST_INT", 7))
	assert.Equal(t, "fallback", getEnvString("ADBRIDGE_TEST_UNSET_KEY", "fallback"))
}
