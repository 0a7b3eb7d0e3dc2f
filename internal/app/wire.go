package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/predictmarket/internal/aggregator"
	s3blob "github.com/alanyoungcy/predictmarket/internal/blob/s3"
	"github.com/alanyoungcy/predictmarket/internal/cache/redis"
	"github.com/alanyoungcy/predictmarket/internal/config"
	"github.com/alanyoungcy/predictmarket/internal/crypto"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/matching"
	"github.com/alanyoungcy/predictmarket/internal/notify"
	"github.com/alanyoungcy/predictmarket/internal/platform"
	"github.com/alanyoungcy/predictmarket/internal/platform/kalshi"
	"github.com/alanyoungcy/predictmarket/internal/platform/manifold"
	"github.com/alanyoungcy/predictmarket/internal/platform/metaculus"
	"github.com/alanyoungcy/predictmarket/internal/platform/polymarket"
	"github.com/alanyoungcy/predictmarket/internal/platform/predictit"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/service"
	"github.com/alanyoungcy/predictmarket/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function.
type Dependencies struct {
	Registry   *aggregator.Registry
	Aggregator *aggregator.Aggregator
	Tools      *service.ToolService

	// Optional infrastructure; nil when disabled.
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus
	RunStore    domain.ComparisonRunStore
	Archiver    service.RunArchiver
	Notifier    *notify.Notifier

	// Probes feed the health endpoint, keyed by dependency name.
	Probes map[string]handler.Probe
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that releases them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Probes: make(map[string]handler.Probe)}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Probes["redis"] = redisClient.Ping
	}

	// --- PostgreSQL ---
	if cfg.Supabase.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Supabase.DSN,
			Host:     cfg.Supabase.Host,
			Port:     cfg.Supabase.Port,
			Database: cfg.Supabase.Database,
			User:     cfg.Supabase.User,
			Password: cfg.Supabase.Password,
			SSLMode:  cfg.Supabase.SSLMode,
			MaxConns: cfg.Supabase.PoolMaxConns,
			MinConns: cfg.Supabase.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Supabase.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.RunStore = postgres.NewComparisonRunStore(pgClient.Pool())
		deps.Probes["postgres"] = pgClient.Ping
	}

	// --- S3 run archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewRunArchiver(s3blob.NewWriter(s3Client), cfg.S3.Prefix)
		deps.Probes["s3"] = s3Client.Health
	}

	// --- Spread alerts ---
	if cfg.Notify.Enabled() {
		var senders []notify.Sender
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
		}
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.MinSpread, logger)
	}

	// --- Platform adapters ---
	adapters, err := buildAdapters(cfg, deps.RateLimiter, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: platforms: %w", err)
	}
	deps.Registry = aggregator.NewRegistry()
	for _, a := range adapters {
		deps.Registry.Register(a)
	}

	matcher := matching.New(matching.Options{
		EntityBoost:         cfg.Matching.EntityBoost,
		YearMismatchPenalty: cfg.Matching.YearMismatchPenalty,
	})
	deps.Aggregator = aggregator.New(deps.Registry, matcher, aggregator.Options{
		MinConfidence: cfg.Matching.MinConfidence,
	}, logger)

	var recorder *service.Recorder
	if deps.SignalBus != nil || deps.RunStore != nil || deps.Archiver != nil || deps.Notifier != nil {
		recorder = service.NewRecorder(deps.SignalBus, deps.RunStore, deps.Archiver, logger)
		if deps.Notifier != nil {
			recorder.WithAlerter(deps.Notifier)
		}
		// Runs last in cleanup so in-flight writes reach the sinks before they close.
		closers = append(closers, recorder.Wait)
	}
	deps.Tools = service.NewToolService(deps.Aggregator, recorder, logger)

	return deps, cleanup, nil
}

// buildAdapters creates one adapter per enabled platform in registration
// order. limiter may be nil, which disables upstream throttling.
func buildAdapters(cfg *config.Config, limiter domain.RateLimiter, logger *slog.Logger) ([]domain.PlatformAdapter, error) {
	p := cfg.Platforms
	base := func(pc config.PlatformConfig) platform.Config {
		return platform.Config{
			BaseURL:     pc.BaseURL,
			Timeout:     pc.TimeoutOf(),
			SearchLimit: pc.SearchLimit,
			Limiter:     limiter,
			RateLimit:   pc.RateLimit,
			RateWindow:  cfg.Upstream.RateWindowOf(),
			Logger:      logger,
		}
	}

	var out []domain.PlatformAdapter
	if p.Manifold.Enabled {
		out = append(out, manifold.NewClient(base(p.Manifold)))
	}
	if p.Polymarket.Enabled {
		out = append(out, polymarket.NewGammaClient(base(p.Polymarket)))
	}
	if p.Metaculus.Enabled {
		out = append(out, metaculus.NewClient(base(p.Metaculus.PlatformConfig), p.Metaculus.APIToken))
	}
	if p.PredictIt.Enabled {
		out = append(out, predictit.NewClient(base(p.PredictIt)))
	}
	if p.Kalshi.Enabled {
		k := kalshi.NewClient(base(p.Kalshi.PlatformConfig), p.Kalshi.ApiKey)
		keyCfg := crypto.KeyConfig{
			PEMPath:          p.Kalshi.RsaPrivateKeyPath,
			EncryptedKeyPath: p.Kalshi.EncryptedKeyPath,
			KeyPassword:      p.Kalshi.KeyPassword,
		}
		if keyCfg.Configured() {
			pemBytes, err := crypto.LoadKey(keyCfg)
			if err != nil {
				return nil, fmt.Errorf("kalshi key: %w", err)
			}
			if err := k.SetRSAPrivateKey(pemBytes); err != nil {
				return nil, err
			}
		}
		out = append(out, k)
	}
	return out, nil
}
