package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/hyperwatch/internal/cache/redis"
	"github.com/alanyoungcy/hyperwatch/internal/config"
	"github.com/alanyoungcy/hyperwatch/internal/domain"
	"github.com/alanyoungcy/hyperwatch/internal/histlog"
	"github.com/alanyoungcy/hyperwatch/internal/history"
	"github.com/alanyoungcy/hyperwatch/internal/notify"
	"github.com/alanyoungcy/hyperwatch/internal/platform/hyperliquid"
	"github.com/alanyoungcy/hyperwatch/internal/store/postgres"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	PositionStore domain.PositionHistoryStore
	MetricsStore  domain.MetricsHistoryStore
	FillStore     domain.FillStore

	// Caches and bus (nil when Redis is not wired for the mode)
	PriceCache   domain.PriceCache
	SignalBus    *redis.SignalBus
	AlertLimiter domain.AlertLimiter

	// Exchange
	Exchange *hyperliquid.Client

	// Services
	HistLogger *histlog.Logger
	Reader     *history.Reader
	Notifier   *notify.Notifier

	// Health probes
	PGPing    func(ctx context.Context) error
	RedisPing func(ctx context.Context) error
}

// needsRedis returns true for modes that use the price cache, signal bus, or
// alert cooldown. The import mode only touches Postgres.
func needsRedis(mode string) bool {
	return mode != "import"
}

// Wire constructs the concrete dependency implementations from the
// configuration and returns them with a cleanup function.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists or reads history) ---
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
		if err := pgClient.RunMigrations(ctx, cfg.History.NaturalKeys); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PositionStore = postgres.NewPositionHistoryStore(pool, cfg.History.NaturalKeys)
	deps.MetricsStore = postgres.NewMetricsHistoryStore(pool, cfg.History.NaturalKeys)
	deps.FillStore = postgres.NewFillStore(pool)
	deps.PGPing = func(ctx context.Context) error { return pool.Ping(ctx) }

	// --- Redis ---
	if needsRedis(cfg.Mode) {
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.AlertLimiter = redis.NewAlertLimiter(redisClient)
		deps.RedisPing = redisClient.Ping
	}

	// --- Exchange client ---
	deps.Exchange = hyperliquid.NewClient(cfg.Hyperliquid.APIURL)

	// --- Services ---
	policy := histlog.NewPolicy(cfg.History.MinInterval())
	deps.HistLogger = histlog.New(deps.PositionStore, deps.MetricsStore, deps.FillStore, policy, logger)
	deps.Reader = history.NewReader(deps.PositionStore, deps.MetricsStore, deps.FillStore,
		history.Source(cfg.History.PnLSource))

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhook))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
