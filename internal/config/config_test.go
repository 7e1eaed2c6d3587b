package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, "development", cfg.Server.Env)
	assert.Equal(t, 5, cfg.Upload.MaxFiles)
	assert.Equal(t, int64(5<<20), cfg.Upload.MaxFileSize)
	assert.Equal(t, 1000, cfg.RateLimit.Max)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, StateBackendRedis, cfg.StateBackend)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 6, cfg.OTP.Length)
}

func TestLoadRedisOptionalForDynamoDBBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STATE_BACKEND", "dynamodb")
	t.Setenv("REDIS_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.Redis.Endpoint)

	t.Setenv("REDIS_ENDPOINT", "cache:6379")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", cfg.Redis.Endpoint)
}

func TestLoadRejectsOTPLengthOutOfRange(t *testing.T) {
	for _, tc := range []struct {
		key   string
		value string
	}{
		{"OTP_LENGTH", "0"},
		{"OTP_LENGTH", "19"},
		{"EMAIL_OTP_LENGTH", "-1"},
		{"EMAIL_OTP_LENGTH", "25"},
		{"OTP_MAX_ATTEMPTS", "0"},
	} {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("CONFIG_FILE", "")
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.ErrorContains(t, err, tc.key)
		})
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("OTP_EXPIRY", "2m")
	t.Setenv("MEDIA_BASE_URL", "https://cdn.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STATE_BACKEND", "DynamoDB")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, 2*time.Minute, cfg.OTP.Expiry)
	assert.Equal(t, "https://cdn.example.com", cfg.Media.BaseURL)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, StateBackendDynamoDB, cfg.StateBackend)
}

func TestLoadDotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	require.NoError(t, os.WriteFile(path, []byte("UPLOAD_ROOT=/srv/uploads\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	// t.Setenv restores the variable godotenv sets once the test ends.
	t.Setenv("UPLOAD_ROOT", "")
	require.NoError(t, os.Unsetenv("UPLOAD_ROOT"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/uploads", cfg.Upload.Root)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STATE_BACKEND", "memcached")

	_, err := Load()
	assert.Error(t, err)
}

func TestRequireJWT(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireJWT())

	cfg.JWT.SecretKey = "short"
	assert.Error(t, cfg.RequireJWT())

	cfg.JWT.SecretKey = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.RequireJWT())
}
