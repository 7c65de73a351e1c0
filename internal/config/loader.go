package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PAIRBOT_* environment variable overrides, and
// returns the final Config. A missing file is not an error; defaults and
// environment variables then describe the run. The returned Config has NOT
// been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PAIRBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "PAIRBOT_EXCHANGE_BASE_URL")
	setDuration(&cfg.Exchange.Timeout, "PAIRBOT_EXCHANGE_TIMEOUT")
	setFloat64(&cfg.Exchange.RateLimit, "PAIRBOT_EXCHANGE_RATE_LIMIT")
	setInt(&cfg.Exchange.Burst, "PAIRBOT_EXCHANGE_BURST")
	setStringSlice(&cfg.Exchange.QuoteFallbacks, "PAIRBOT_EXCHANGE_QUOTE_FALLBACKS")
	setDuration(&cfg.Exchange.CandleCacheTTL, "PAIRBOT_EXCHANGE_CANDLE_CACHE_TTL")

	// ── Engine ──
	setStr(&cfg.Engine.Timeframe, "PAIRBOT_ENGINE_TIMEFRAME")
	setInt(&cfg.Engine.Lookback, "PAIRBOT_ENGINE_LOOKBACK")
	setInt(&cfg.Engine.Window, "PAIRBOT_ENGINE_WINDOW")
	setFloat64(&cfg.Engine.EntryThreshold, "PAIRBOT_ENGINE_ENTRY_THRESHOLD")
	setFloat64(&cfg.Engine.ExitThreshold, "PAIRBOT_ENGINE_EXIT_THRESHOLD")
	setFloat64(&cfg.Engine.StopLoss, "PAIRBOT_ENGINE_STOP_LOSS")
	setInt(&cfg.Engine.MaxRiskScore, "PAIRBOT_ENGINE_MAX_RISK_SCORE")
	setInt(&cfg.Engine.MaxParallel, "PAIRBOT_ENGINE_MAX_PARALLEL")
	setDuration(&cfg.Engine.LockTTL, "PAIRBOT_ENGINE_LOCK_TTL")
	setBool(&cfg.Engine.UseLocks, "PAIRBOT_ENGINE_USE_LOCKS")
	setStr(&cfg.Engine.RatioBasis, "PAIRBOT_ENGINE_RATIO_BASIS")
	setBool(&cfg.Engine.StopLossFirst, "PAIRBOT_ENGINE_STOP_LOSS_FIRST")
	setBool(&cfg.Engine.ExitsWhenNonReverting, "PAIRBOT_ENGINE_EXITS_WHEN_NON_REVERTING")
	setBool(&cfg.Engine.ExitsWhenRiskHalted, "PAIRBOT_ENGINE_EXITS_WHEN_RISK_HALTED")

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "PAIRBOT_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "PAIRBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Supabase.Host, "PAIRBOT_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "PAIRBOT_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "PAIRBOT_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "PAIRBOT_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "PAIRBOT_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.SSLMode, "PAIRBOT_SUPABASE_SSL_MODE")
	setInt(&cfg.Supabase.PoolMaxConns, "PAIRBOT_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "PAIRBOT_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "PAIRBOT_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PAIRBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PAIRBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PAIRBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PAIRBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PAIRBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PAIRBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PAIRBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PAIRBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PAIRBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PAIRBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PAIRBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PAIRBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PAIRBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PAIRBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PAIRBOT_S3_FORCE_PATH_STYLE")

	// ── Schedule / Archive ──
	setStr(&cfg.Schedule.CycleCron, "PAIRBOT_SCHEDULE_CYCLE_CRON")
	setBool(&cfg.Schedule.RunOnStart, "PAIRBOT_SCHEDULE_RUN_ON_START")
	setBool(&cfg.Archive.Enabled, "PAIRBOT_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PAIRBOT_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "PAIRBOT_ARCHIVE_CRON")
	setInt(&cfg.Archive.BatchSize, "PAIRBOT_ARCHIVE_BATCH_SIZE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PAIRBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PAIRBOT_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "PAIRBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "PAIRBOT_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PAIRBOT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PAIRBOT_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PAIRBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PAIRBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PAIRBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PAIRBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PAIRBOT_MODE")
	setStr(&cfg.LogLevel, "PAIRBOT_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
