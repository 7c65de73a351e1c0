// Package config defines the top-level configuration for the pairs-trading
// signal engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PAIRBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig `toml:"exchange"`
	Engine   EngineConfig   `toml:"engine"`
	Pairs    []PairConfig   `toml:"pairs"`
	Supabase SupabaseConfig `toml:"supabase"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Schedule ScheduleConfig `toml:"schedule"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ExchangeConfig holds the market-data REST endpoint used to fetch candles.
type ExchangeConfig struct {
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
	// RateLimit is the sustained request rate (requests/second); Burst the
	// bucket size.
	RateLimit float64 `toml:"rate_limit"`
	Burst     int     `toml:"burst"`
	// QuoteFallbacks lists alternate quote currencies tried, in order, when a
	// pair leg is configured with a single symbol.
	QuoteFallbacks []string `toml:"quote_fallbacks"`
	CandleCacheTTL duration `toml:"candle_cache_ttl"`
}

// EngineConfig holds signal-engine thresholds and cycle policy.
type EngineConfig struct {
	Timeframe      string   `toml:"timeframe"`
	Lookback       int      `toml:"lookback"`
	Window         int      `toml:"window"`
	EntryThreshold float64  `toml:"entry_threshold"`
	ExitThreshold  float64  `toml:"exit_threshold"`
	StopLoss       float64  `toml:"stop_loss"`
	MaxRiskScore   int      `toml:"max_risk_score"`
	MaxParallel    int      `toml:"max_parallel"`
	LockTTL        duration `toml:"lock_ttl"`
	UseLocks       bool     `toml:"use_locks"`
	// RatioBasis selects the value recorded as entry/exit ratio: "spread"
	// (log ratio) or "price" (raw A/B).
	RatioBasis string `toml:"ratio_basis"`

	StopLossFirst         bool `toml:"stop_loss_first"`
	ExitsWhenNonReverting bool `toml:"exits_when_non_reverting"`
	ExitsWhenRiskHalted   bool `toml:"exits_when_risk_halted"`
}

// PairConfig describes one tradable pair. AssetA and AssetB list candidate
// exchange symbols in preference order.
type PairConfig struct {
	ID         string   `toml:"id"`
	Name       string   `toml:"name"`
	AssetA     []string `toml:"asset_a"`
	AssetB     []string `toml:"asset_b"`
	Allocation float64  `toml:"allocation"`
}

// SupabaseConfig holds PostgreSQL / Supabase connection parameters.
type SupabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the engine runs without candle caching, locks or the signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ScheduleConfig controls when the daemon runs evaluation cycles.
type ScheduleConfig struct {
	CycleCron  string `toml:"cycle_cron"`
	RunOnStart bool   `toml:"run_on_start"`
}

// ArchiveConfig controls export of old trade events to object storage.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled"`
	RetentionDays int    `toml:"retention_days"`
	Cron          string `toml:"cron"`
	BatchSize     int    `toml:"batch_size"`
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

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps mutating requests per client IP per RateWindow; 0
	// disables it. Requires Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:        "https://api.binance.com",
			Timeout:        duration{10 * time.Second},
			RateLimit:      10,
			Burst:          5,
			QuoteFallbacks: []string{"USDT", "USDC", "BUSD"},
			CandleCacheTTL: duration{5 * time.Minute},
		},
		Engine: EngineConfig{
			Timeframe:      "1h",
			Lookback:       100,
			Window:         50,
			EntryThreshold: 2.0,
			ExitThreshold:  0.0,
			StopLoss:       4.0,
			MaxRiskScore:   75,
			MaxParallel:    4,
			LockTTL:        duration{2 * time.Minute},
			UseLocks:       true,
			RatioBasis:     "spread",
		},
		Pairs: []PairConfig{
			{ID: "ATOM/DOT", Name: "The Shield", AssetA: []string{"ATOM/USDT"}, AssetB: []string{"DOT/USDT"}, Allocation: 0.40},
			{ID: "SAND/MANA", Name: "The Stability", AssetA: []string{"SAND/USDT"}, AssetB: []string{"MANA/USDT"}, Allocation: 0.35},
			{ID: "CRV/CVX", Name: "The Rocket", AssetA: []string{"CRV/USDT"}, AssetB: []string{"CVX/USDT"}, Allocation: 0.25},
		},
		Supabase: SupabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "pairbot-archive",
			ForcePathStyle: true,
		},
		Schedule: ScheduleConfig{
			CycleCron:  "0 * * * *",
			RunOnStart: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Cron:          "0 3 1 * *",
			BatchSize:     5000,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   30,
			RateWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"entry", "exit", "cycle_halted", "error"},
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":    true,
	"daemon":  true,
	"verify":  true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validTimeframes = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, daemon, verify, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.BaseURL == "" {
		errs = append(errs, "exchange: base_url must not be empty")
	}
	if c.Exchange.Timeout.Duration <= 0 {
		errs = append(errs, "exchange: timeout must be > 0")
	}
	if c.Exchange.RateLimit <= 0 {
		errs = append(errs, "exchange: rate_limit must be > 0")
	}
	if c.Exchange.Burst < 1 {
		errs = append(errs, "exchange: burst must be >= 1")
	}

	// Engine
	e := c.Engine
	if !validTimeframes[e.Timeframe] {
		errs = append(errs, fmt.Sprintf("engine: unsupported timeframe %q", e.Timeframe))
	}
	if e.Window < 2 {
		errs = append(errs, "engine: window must be >= 2")
	}
	if e.Lookback < e.Window+1 {
		errs = append(errs, fmt.Sprintf("engine: lookback (%d) must be >= window+1 (%d)", e.Lookback, e.Window+1))
	}
	if e.EntryThreshold <= 0 {
		errs = append(errs, "engine: entry_threshold must be > 0")
	}
	if e.StopLoss <= e.EntryThreshold {
		errs = append(errs, "engine: stop_loss must be greater than entry_threshold")
	}
	if e.ExitThreshold >= e.EntryThreshold || e.ExitThreshold <= -e.EntryThreshold {
		errs = append(errs, "engine: exit_threshold must lie strictly inside (-entry_threshold, entry_threshold)")
	}
	if e.MaxRiskScore < 0 || e.MaxRiskScore > 100 {
		errs = append(errs, "engine: max_risk_score must be within 0-100")
	}
	if e.MaxParallel < 1 {
		errs = append(errs, "engine: max_parallel must be >= 1")
	}
	if e.RatioBasis != "spread" && e.RatioBasis != "price" {
		errs = append(errs, fmt.Sprintf("engine: ratio_basis must be spread or price, got %q", e.RatioBasis))
	}
	if e.UseLocks && c.Redis.Enabled && e.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0 when locks are used")
	}

	// Pairs
	if len(c.Pairs) == 0 {
		errs = append(errs, "pairs: at least one pair must be configured")
	}
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: id must not be empty", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("pairs[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if len(p.AssetA) == 0 || len(p.AssetB) == 0 {
			errs = append(errs, fmt.Sprintf("pairs[%d] %s: asset_a and asset_b need at least one symbol", i, p.ID))
		}
	}

	// Supabase
	if strings.TrimSpace(c.Supabase.DSN) == "" {
		if c.Supabase.Host == "" {
			errs = append(errs, "supabase: host must not be empty (or set supabase.dsn)")
		}
		if c.Supabase.Port <= 0 || c.Supabase.Port > 65535 {
			errs = append(errs, fmt.Sprintf("supabase: port must be 1-65535, got %d", c.Supabase.Port))
		}
		if c.Supabase.Database == "" {
			errs = append(errs, "supabase: database must not be empty")
		}
	}
	if c.Supabase.PoolMaxConns < 1 {
		errs = append(errs, "supabase: pool_max_conns must be >= 1")
	}
	if c.Supabase.PoolMinConns < 0 {
		errs = append(errs, "supabase: pool_min_conns must be >= 0")
	}
	if c.Supabase.PoolMinConns > c.Supabase.PoolMaxConns {
		errs = append(errs, "supabase: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled || c.Mode == "archive" {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
		if len(strings.Fields(c.Archive.Cron)) != 5 {
			errs = append(errs, fmt.Sprintf("archive: cron must have 5 fields, got %q", c.Archive.Cron))
		}
	}

	// Schedule
	if c.Mode == "daemon" && len(strings.Fields(c.Schedule.CycleCron)) != 5 {
		errs = append(errs, fmt.Sprintf("schedule: cycle_cron must have 5 fields, got %q", c.Schedule.CycleCron))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExchangeTimeout returns the per-request market-data timeout.
func (c *Config) ExchangeTimeout() time.Duration { return c.Exchange.Timeout.Duration }

// CandleCacheTTL returns how long fetched candles stay cached.
func (c *Config) CandleCacheTTL() time.Duration { return c.Exchange.CandleCacheTTL.Duration }

// RateWindow returns the API rate-limit window.
func (c *Config) RateWindow() time.Duration { return c.Server.RateWindow.Duration }

// LockTTL returns the per-pair advisory lock lifetime.
func (c *Config) LockTTL() time.Duration { return c.Engine.LockTTL.Duration }
