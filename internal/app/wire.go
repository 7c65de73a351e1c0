package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/pairbot/internal/blob/s3"
	"github.com/alanyoungcy/pairbot/internal/cache/redis"
	"github.com/alanyoungcy/pairbot/internal/config"
	"github.com/alanyoungcy/pairbot/internal/domain"
	"github.com/alanyoungcy/pairbot/internal/notify"
	"github.com/alanyoungcy/pairbot/internal/platform/binance"
	"github.com/alanyoungcy/pairbot/internal/service"
	"github.com/alanyoungcy/pairbot/internal/store/postgres"
	"github.com/alanyoungcy/pairbot/internal/strategy"
)

// Dependencies bundles every collaborator the operating modes need. Optional
// backends (Redis, S3) leave their fields nil when disabled.
type Dependencies struct {
	Postgres *postgres.Client
	Redis    *redis.Client
	S3       *s3blob.Client
	Exchange *binance.Client

	// Stores
	States    domain.StateStore
	Trades    *postgres.TradeLogStore
	Sentiment domain.SentimentStore
	Audit     domain.AuditStore

	// Caches
	Candles     domain.CandleCache
	Locks       domain.LockManager
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Services
	Market   *service.MarketService
	Risk     *service.RiskService
	TradeLog *service.TradeService
	Cycles   *service.CycleService

	Notifier *notify.Notifier
}

// needsRedis reports whether mode uses the cache, locks or the signal bus.
func needsRedis(mode string) bool {
	return mode == "once" || mode == "daemon"
}

// needsS3 reports whether mode uses object storage.
func needsS3(mode string, cfg *config.Config) bool {
	switch mode {
	case "archive", "verify":
		return true
	case "daemon":
		return cfg.Archive.Enabled
	}
	return false
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode reads or writes the tables) ---
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
	deps.Postgres = pgClient

	if cfg.Supabase.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.States = postgres.NewStateStore(pool)
	deps.Trades = postgres.NewTradeLogStore(pool)
	deps.Sentiment = postgres.NewSentimentStore(pool)
	deps.Audit = postgres.NewAuditStore(pool)

	// --- Redis ---
	if cfg.Redis.Enabled && needsRedis(mode) {
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
		deps.Redis = redisClient

		deps.Candles = redis.NewCandleCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Engine.UseLocks {
			deps.Locks = redis.NewLockManager(redisClient)
		}
	} else {
		logger.InfoContext(ctx, "redis disabled: no candle cache, pair locks or signal bus")
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled && needsS3(mode, cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		deps.S3 = s3Client

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Trades,
			deps.Audit,
			cfg.Archive.BatchSize,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Services ---
	deps.Exchange = binance.New(binance.ClientConfig{
		BaseURL:   cfg.Exchange.BaseURL,
		Timeout:   cfg.ExchangeTimeout(),
		RateLimit: cfg.Exchange.RateLimit,
		Burst:     cfg.Exchange.Burst,
	})
	deps.Market = service.NewMarketService(deps.Exchange, deps.Candles, service.MarketConfig{
		QuoteFallbacks: cfg.Exchange.QuoteFallbacks,
		CacheTTL:       cfg.CandleCacheTTL(),
	}, logger)
	deps.Risk = service.NewRiskService(deps.Sentiment, logger)
	deps.TradeLog = service.NewTradeService(deps.Trades, deps.SignalBus, deps.Notifier, logger)
	deps.Cycles = service.NewCycleService(Pairs(cfg), service.CycleDeps{
		Prices:   deps.Market,
		Risk:     deps.Risk,
		States:   deps.States,
		Sink:     deps.TradeLog,
		Locks:    deps.Locks,
		Bus:      deps.SignalBus,
		Audit:    deps.Audit,
		Notifier: deps.Notifier,
	}, CycleConfig(cfg), logger)

	return deps, cleanup, nil
}

// Pairs converts the configured pairs to domain pairs.
func Pairs(cfg *config.Config) []domain.Pair {
	out := make([]domain.Pair, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		out = append(out, domain.Pair{
			ID:         p.ID,
			Name:       name,
			AssetA:     append([]string(nil), p.AssetA...),
			AssetB:     append([]string(nil), p.AssetB...),
			Allocation: p.Allocation,
		})
	}
	return out
}

// CycleConfig converts the engine section to the orchestrator parameters.
func CycleConfig(cfg *config.Config) service.CycleConfig {
	e := cfg.Engine
	fetchTimeout := cfg.ExchangeTimeout()
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	return service.CycleConfig{
		Timeframe: e.Timeframe,
		Lookback:  e.Lookback,
		Window:    e.Window,
		Thresholds: strategy.Thresholds{
			Entry:         e.EntryThreshold,
			Exit:          e.ExitThreshold,
			StopLoss:      e.StopLoss,
			StopLossFirst: e.StopLossFirst,
		},
		MaxRiskScore:          e.MaxRiskScore,
		MaxParallel:           e.MaxParallel,
		FetchTimeout:          fetchTimeout,
		LockTTL:               cfg.LockTTL(),
		RatioBasis:            e.RatioBasis,
		ExitsWhenNonReverting: e.ExitsWhenNonReverting,
		ExitsWhenRiskHalted:   e.ExitsWhenRiskHalted,
	}
}
