// Package config defines the top-level configuration for the exchange gateway
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EXGATE_* environment variables.
type Config struct {
	Exchange  ExchangeConfig  `toml:"exchange"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Bundle    BundleConfig    `toml:"bundle"`
	Symbols   SymbolsConfig   `toml:"symbols"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Notify    NotifyConfig    `toml:"notify"`
	DataDir   string          `toml:"data_dir"`
	LogLevel  string          `toml:"log_level"`
}

// ExchangeConfig selects the exchange and holds its API credentials. The
// secret is read from APISecret or, when that is empty, decrypted from
// EncryptedSecretPath with SecretPassword.
type ExchangeConfig struct {
	Name                string   `toml:"name"`
	APIKey              string   `toml:"api_key"`
	APISecret           string   `toml:"api_secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	BaseURL             string   `toml:"base_url"`
	TicksURL            string   `toml:"ticks_url"`
	RequestTimeout      duration `toml:"request_timeout"`
}

// RateLimitConfig picks the limiter backend. "memory" limits this process
// only; "redis" shares the budget across every process using the same Redis.
type RateLimitConfig struct {
	Backend              string `toml:"backend"`
	MaxRequestsPerMinute int    `toml:"max_requests_per_minute"`
}

// BundleConfig controls historical-data archive retrieval.
type BundleConfig struct {
	RootDir         string   `toml:"root_dir"`
	BaseURL         string   `toml:"base_url"`
	Source          string   `toml:"source"` // http or s3
	S3Prefix        string   `toml:"s3_prefix"`
	DownloadTimeout duration `toml:"download_timeout"`
	LockTTL         duration `toml:"lock_ttl"`
}

// SymbolsConfig controls where the cached symbol catalog comes from and
// whether refreshed catalogs are published to object storage.
type SymbolsConfig struct {
	CatalogURL string `toml:"catalog_url"`
	Publish    bool   `toml:"publish"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// PostgresConfig holds connection parameters for the order journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in exgate.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:           "bittrex",
			BaseURL:        "https://bittrex.com/api/v1.1",
			TicksURL:       "https://bittrex.com/Api/v2.0",
			RequestTimeout: duration{30 * time.Second},
		},
		RateLimit: RateLimitConfig{
			Backend:              "memory",
			MaxRequestsPerMinute: 60,
		},
		Bundle: BundleConfig{
			RootDir:         "data/bundles",
			BaseURL:         "https://s3.amazonaws.com/enigmaco/catalyst-bundles",
			Source:          "http",
			S3Prefix:        "archives",
			DownloadTimeout: duration{10 * time.Minute},
			LockTTL:         duration{15 * time.Minute},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "exgate",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "exgate",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "exgate-data",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{
			Events: []string{"order_created", "order_declined", "order_cancelled"},
		},
		DataDir:  "data",
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// UsesS3 reports whether any configured feature needs object storage.
func (c *Config) UsesS3() bool {
	return strings.EqualFold(c.Bundle.Source, "s3") || c.Symbols.Publish
}

// UsesRedis reports whether the limiter or bundle locks run on Redis.
func (c *Config) UsesRedis() bool {
	return c.Redis.Enabled || strings.EqualFold(c.RateLimit.Backend, "redis")
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir must not be empty")
	}

	// Exchange
	if c.Exchange.Name == "" {
		errs = append(errs, "exchange: name must not be empty")
	}
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.RequestTimeout.Duration <= 0 {
		errs = append(errs, "exchange: request_timeout must be > 0")
	}
	if c.Exchange.APISecret == "" && c.Exchange.EncryptedSecretPath != "" && c.Exchange.SecretPassword == "" {
		errs = append(errs, "exchange: secret_password is required when encrypted_secret_path is set")
	}

	// Rate limit
	switch strings.ToLower(c.RateLimit.Backend) {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("rate_limit: unknown backend %q (valid: memory, redis)", c.RateLimit.Backend))
	}
	if c.RateLimit.MaxRequestsPerMinute < 1 {
		errs = append(errs, "rate_limit: max_requests_per_minute must be >= 1")
	}

	// Bundle
	if c.Bundle.RootDir == "" {
		errs = append(errs, "bundle: root_dir must not be empty")
	}
	switch strings.ToLower(c.Bundle.Source) {
	case "http":
		if c.Bundle.BaseURL == "" {
			errs = append(errs, "bundle: base_url must not be empty for the http source")
		}
	case "s3":
	default:
		errs = append(errs, fmt.Sprintf("bundle: unknown source %q (valid: http, s3)", c.Bundle.Source))
	}
	if c.Bundle.LockTTL.Duration <= 0 {
		errs = append(errs, "bundle: lock_ttl must be > 0")
	}

	// Redis
	if c.UsesRedis() {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.UsesS3() && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
