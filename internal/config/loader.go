package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies EXGATE_* environment variable overrides, and
// returns the final Config. A missing file leaves the defaults in place. The
// returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known EXGATE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.Name, "EXGATE_EXCHANGE_NAME")
	setStr(&cfg.Exchange.APIKey, "EXGATE_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.APISecret, "EXGATE_EXCHANGE_API_SECRET")
	setStr(&cfg.Exchange.EncryptedSecretPath, "EXGATE_EXCHANGE_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Exchange.SecretPassword, "EXGATE_EXCHANGE_SECRET_PASSWORD")
	setStr(&cfg.Exchange.BaseURL, "EXGATE_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.TicksURL, "EXGATE_EXCHANGE_TICKS_URL")
	setDuration(&cfg.Exchange.RequestTimeout, "EXGATE_EXCHANGE_REQUEST_TIMEOUT")

	// ── Rate limit ──
	setStr(&cfg.RateLimit.Backend, "EXGATE_RATE_LIMIT_BACKEND")
	setInt(&cfg.RateLimit.MaxRequestsPerMinute, "EXGATE_RATE_LIMIT_MAX_REQUESTS_PER_MINUTE")

	// ── Bundle ──
	setStr(&cfg.Bundle.RootDir, "EXGATE_BUNDLE_ROOT_DIR")
	setStr(&cfg.Bundle.BaseURL, "EXGATE_BUNDLE_BASE_URL")
	setStr(&cfg.Bundle.Source, "EXGATE_BUNDLE_SOURCE")
	setStr(&cfg.Bundle.S3Prefix, "EXGATE_BUNDLE_S3_PREFIX")
	setDuration(&cfg.Bundle.DownloadTimeout, "EXGATE_BUNDLE_DOWNLOAD_TIMEOUT")
	setDuration(&cfg.Bundle.LockTTL, "EXGATE_BUNDLE_LOCK_TTL")

	// ── Symbols ──
	setStr(&cfg.Symbols.CatalogURL, "EXGATE_SYMBOLS_CATALOG_URL")
	setBool(&cfg.Symbols.Publish, "EXGATE_SYMBOLS_PUBLISH")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "EXGATE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "EXGATE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "EXGATE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "EXGATE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "EXGATE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "EXGATE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "EXGATE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "EXGATE_REDIS_KEY_PREFIX")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "EXGATE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "EXGATE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "EXGATE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "EXGATE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "EXGATE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "EXGATE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "EXGATE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "EXGATE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "EXGATE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "EXGATE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "EXGATE_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "EXGATE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "EXGATE_S3_REGION")
	setStr(&cfg.S3.Bucket, "EXGATE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "EXGATE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "EXGATE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "EXGATE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "EXGATE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "EXGATE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "EXGATE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "EXGATE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "EXGATE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "EXGATE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.DataDir, "EXGATE_DATA_DIR")
	setStr(&cfg.LogLevel, "EXGATE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
