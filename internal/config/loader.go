package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HYPERWATCH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HYPERWATCH_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject secrets at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.APIURL, "HYPERWATCH_HYPERLIQUID_API_URL")
	setStr(&cfg.Hyperliquid.WSURL, "HYPERWATCH_HYPERLIQUID_WS_URL")
	setStrList(&cfg.Hyperliquid.Wallets, "HYPERWATCH_WALLETS")
	setStrList(&cfg.Hyperliquid.Wallets, "WALLET_ADDRESS") // legacy .env name

	// ── Supabase ──
	setStr(&cfg.Supabase.DSN, "HYPERWATCH_SUPABASE_DSN")
	setStr(&cfg.Supabase.DSN, "SUPABASE_URL") // legacy .env name
	setStr(&cfg.Supabase.Host, "HYPERWATCH_SUPABASE_HOST")
	setInt(&cfg.Supabase.Port, "HYPERWATCH_SUPABASE_PORT")
	setStr(&cfg.Supabase.Database, "HYPERWATCH_SUPABASE_DATABASE")
	setStr(&cfg.Supabase.User, "HYPERWATCH_SUPABASE_USER")
	setStr(&cfg.Supabase.Password, "HYPERWATCH_SUPABASE_PASSWORD")
	setStr(&cfg.Supabase.Password, "SUPABASE_KEY") // legacy .env name
	setStr(&cfg.Supabase.SSLMode, "HYPERWATCH_SUPABASE_SSLMODE")
	setInt(&cfg.Supabase.PoolMaxConns, "HYPERWATCH_SUPABASE_POOL_MAX_CONNS")
	setInt(&cfg.Supabase.PoolMinConns, "HYPERWATCH_SUPABASE_POOL_MIN_CONNS")
	setBool(&cfg.Supabase.RunMigrations, "HYPERWATCH_SUPABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "HYPERWATCH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HYPERWATCH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HYPERWATCH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HYPERWATCH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HYPERWATCH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HYPERWATCH_REDIS_TLS_ENABLED")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxLeverage, "HYPERWATCH_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.MaxPositionPct, "HYPERWATCH_RISK_MAX_POSITION_PCT")
	setFloat64(&cfg.Risk.MinDistanceToLiqPct, "HYPERWATCH_RISK_MIN_DISTANCE_TO_LIQ_PCT")
	setFloat64(&cfg.Risk.MaxMarginUtilization, "HYPERWATCH_RISK_MAX_MARGIN_UTILIZATION")
	setFloat64(&cfg.Risk.MaxPortfolioHeat, "HYPERWATCH_RISK_MAX_PORTFOLIO_HEAT")

	// ── History ──
	setInt(&cfg.History.MinIntervalSeconds, "HYPERWATCH_HISTORY_MIN_INTERVAL_SECONDS")
	setBool(&cfg.History.NaturalKeys, "HYPERWATCH_HISTORY_NATURAL_KEYS")
	setStr(&cfg.History.PnLSource, "HYPERWATCH_HISTORY_PNL_SOURCE")
	setInt(&cfg.History.PnLWindowHours, "HYPERWATCH_HISTORY_PNL_WINDOW_HOURS")

	// ── Monitor ──
	setInt(&cfg.Monitor.PollIntervalSeconds, "HYPERWATCH_MONITOR_POLL_INTERVAL_SECONDS")
	setInt(&cfg.Monitor.MaxSnapshotAgeSeconds, "HYPERWATCH_MONITOR_MAX_SNAPSHOT_AGE_SECONDS")
	setInt(&cfg.Monitor.FillLookbackHours, "HYPERWATCH_MONITOR_FILL_LOOKBACK_HOURS")

	// ── Server ──
	setInt(&cfg.Server.Port, "HYPERWATCH_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HYPERWATCH_SERVER_API_KEY")
	setStrList(&cfg.Server.CORSOrigins, "HYPERWATCH_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "HYPERWATCH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HYPERWATCH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhook, "HYPERWATCH_NOTIFY_DISCORD_WEBHOOK")

	// ── Misc ──
	setStr(&cfg.Mode, "HYPERWATCH_MODE")
	setStr(&cfg.LogLevel, "HYPERWATCH_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setStrList(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
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
