package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/exchangegate/internal/blob/s3"
	"github.com/alanyoungcy/exchangegate/internal/bundle"
	"github.com/alanyoungcy/exchangegate/internal/cache/redis"
	"github.com/alanyoungcy/exchangegate/internal/config"
	"github.com/alanyoungcy/exchangegate/internal/crypto"
	"github.com/alanyoungcy/exchangegate/internal/domain"
	"github.com/alanyoungcy/exchangegate/internal/exchange"
	"github.com/alanyoungcy/exchangegate/internal/notify"
	"github.com/alanyoungcy/exchangegate/internal/ratelimit"
	"github.com/alanyoungcy/exchangegate/internal/store/postgres"
	"github.com/alanyoungcy/exchangegate/internal/symbols"
)

// Dependencies bundles everything a command needs. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Exchange domain.Exchange
	Assets   domain.AssetFinder

	Fetcher *bundle.Fetcher

	// Optional; nil when the backing service is not configured.
	Journal    domain.OrderJournal
	BlobReader domain.BlobReader

	// BundlePrefix is the object prefix archives live under in BlobReader.
	BundlePrefix string
}

// assetLoader is implemented by gateways that keep an asset map built from
// the symbol catalog.
type assetLoader interface {
	LoadAssets(ctx context.Context) error
	Assets() domain.AssetFinder
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}
	window := time.Minute

	// --- Redis (distributed limiter and bundle locks) ---
	var redisClient *redis.Client
	if cfg.UsesRedis() {
		c, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		redisClient = c
	}

	var limiter domain.RateLimiter
	if strings.EqualFold(cfg.RateLimit.Backend, "redis") {
		limiter = redis.NewRateLimiter(redisClient, cfg.RateLimit.MaxRequestsPerMinute, window)
	} else {
		limiter = ratelimit.New(cfg.RateLimit.MaxRequestsPerMinute, window)
	}

	// --- S3 blob storage ---
	var s3Client *s3blob.Client
	if cfg.UsesS3() {
		c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = c.Close() })
		s3Client = c
		deps.BlobReader = s3blob.NewReader(c)
	}

	// --- PostgreSQL order journal ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Journal = postgres.NewOrderStore(pgClient.Pool())
	}

	// --- Historical data archives ---
	var source bundle.Source
	if strings.EqualFold(cfg.Bundle.Source, "s3") {
		source = s3blob.NewSource(s3Client, cfg.Bundle.S3Prefix)
		deps.BundlePrefix = cfg.Bundle.S3Prefix
	} else {
		source = bundle.NewHTTPSource(cfg.Bundle.BaseURL, cfg.Bundle.DownloadTimeout.Duration)
	}
	var fetchOpts []bundle.FetcherOption
	if redisClient != nil {
		fetchOpts = append(fetchOpts, bundle.WithLocks(redis.NewLockManager(redisClient), cfg.Bundle.LockTTL.Duration))
	}
	deps.Fetcher = bundle.NewFetcher(source, cfg.Bundle.RootDir, logger, fetchOpts...)

	// --- Symbol catalog ---
	var catalogOpts []symbols.Option
	switch {
	case cfg.Symbols.CatalogURL != "":
		catalogOpts = append(catalogOpts, symbols.WithRemote(
			bundle.NewHTTPSource(cfg.Symbols.CatalogURL, cfg.Exchange.RequestTimeout.Duration)))
	case s3Client != nil:
		catalogOpts = append(catalogOpts, symbols.WithRemote(s3blob.NewSource(s3Client, "symbols")))
	}
	if cfg.Symbols.Publish {
		catalogOpts = append(catalogOpts, symbols.WithPublisher(s3blob.NewWriter(s3Client)))
	}
	catalog := symbols.NewFileStore(cfg.DataDir, logger, catalogOpts...)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("",
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, "exgate"))
	}

	// --- Exchange gateway ---
	secret, err := resolveSecret(cfg)
	if err != nil {
		return fail(fmt.Errorf("wire: api secret: %w", err))
	}
	if secret == "" {
		logger.WarnContext(ctx, "no API secret configured, private endpoints will be rejected")
	}

	exDeps := exchange.Deps{
		APIKey:         cfg.Exchange.APIKey,
		APISecret:      secret,
		BaseURL:        cfg.Exchange.BaseURL,
		TicksURL:       cfg.Exchange.TicksURL,
		RequestTimeout: cfg.Exchange.RequestTimeout.Duration,
		Limiter:        limiter,
		Catalog:        catalog,
		Logger:         logger,
	}
	if deps.Journal != nil {
		exDeps.Journal = deps.Journal
	}
	if len(senders) > 0 {
		exDeps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	ex, err := exchange.New(cfg.Exchange.Name, exDeps)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Exchange = ex

	if loader, ok := ex.(assetLoader); ok {
		if err := loader.LoadAssets(ctx); err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		deps.Assets = loader.Assets()
	}

	return deps, cleanup, nil
}

// resolveSecret returns the API secret, or "" when none is configured.
func resolveSecret(cfg *config.Config) (string, error) {
	if cfg.Exchange.APISecret == "" && cfg.Exchange.EncryptedSecretPath == "" {
		return "", nil
	}
	return crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:           cfg.Exchange.APISecret,
		EncryptedSecretPath: cfg.Exchange.EncryptedSecretPath,
		Password:            cfg.Exchange.SecretPassword,
	})
}
