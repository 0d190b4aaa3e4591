package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 30*time.Second, cfg.Exchange.RequestTimeout.Duration)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exgate.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[exchange]
api_key = "from-file"
request_timeout = "5s"

[rate_limit]
max_requests_per_minute = 30
`), 0o600))

	t.Setenv("EXGATE_EXCHANGE_API_KEY", "from-env")
	t.Setenv("EXGATE_BUNDLE_LOCK_TTL", "2m")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "from-env", cfg.Exchange.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Exchange.RequestTimeout.Duration)
	assert.Equal(t, 30, cfg.RateLimit.MaxRequestsPerMinute)
	assert.Equal(t, 2*time.Minute, cfg.Bundle.LockTTL.Duration)
	assert.Equal(t, "bittrex", cfg.Exchange.Name, "unset keys keep defaults")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Bundle.RootDir, cfg.Bundle.RootDir)
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = "), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.RateLimit.Backend = "carrier-pigeon"
	cfg.RateLimit.MaxRequestsPerMinute = 0
	cfg.Bundle.Source = "s3"
	cfg.S3.Bucket = ""
	cfg.Exchange.EncryptedSecretPath = "secret.json"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"log_level",
		"rate_limit: unknown backend",
		"max_requests_per_minute",
		"s3: bucket",
		"secret_password",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestUsesRedis(t *testing.T) {
	cfg := Defaults()
	assert.False(t, cfg.UsesRedis())
	cfg.RateLimit.Backend = "redis"
	assert.True(t, cfg.UsesRedis())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Exchange.APIKey = "key"
	cfg.Exchange.APISecret = "secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Notify.TelegramToken = ""

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Exchange.APIKey)
	assert.Equal(t, "***", out.Exchange.APISecret)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Empty(t, out.Notify.TelegramToken)
	assert.Equal(t, "key", cfg.Exchange.APIKey, "original untouched")

	out.Notify.Events[0] = "changed"
	assert.Equal(t, "order_created", cfg.Notify.Events[0])
}
