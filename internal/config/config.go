// Package config defines the top-level configuration for hyperwatch and
// provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HYPERWATCH_* environment variables.
type Config struct {
	Hyperliquid HyperliquidConfig `toml:"hyperliquid"`
	Supabase    SupabaseConfig    `toml:"supabase"`
	Redis       RedisConfig       `toml:"redis"`
	Risk        RiskConfig        `toml:"risk"`
	History     HistoryConfig     `toml:"history"`
	Monitor     MonitorConfig     `toml:"monitor"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Import      ImportConfig      `toml:"import"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// HyperliquidConfig holds exchange API endpoints and the tracked wallets.
type HyperliquidConfig struct {
	APIURL  string   `toml:"api_url"`
	WSURL   string   `toml:"ws_url"`
	Wallets []string `toml:"wallets"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// ScoreWeights weights the three components of the per-position risk score.
// The weights must sum to 1.
type ScoreWeights struct {
	DistanceToLiq float64 `toml:"distance_to_liq"`
	Leverage      float64 `toml:"leverage"`
	PositionSize  float64 `toml:"position_size"`
}

// HeatWeights weights the three components of portfolio heat. The weights must
// sum to 1.
type HeatWeights struct {
	Leverage      float64 `toml:"leverage"`
	Liquidation   float64 `toml:"liquidation"`
	Concentration float64 `toml:"concentration"`
}

// RiskConfig holds every normalization bound, weight, and alert threshold used
// by the scorer, the aggregator, and the alert evaluator. It is validated once
// at startup so an invalid weight sum is caught before any computation runs.
type RiskConfig struct {
	MaxLeverage          float64      `toml:"max_leverage"`            // normalization bound for leverage components
	MaxPositionPct       float64      `toml:"max_position_pct"`        // single-position % of equity bound
	MinDistanceToLiqPct  float64      `toml:"min_distance_to_liq_pct"` // liquidation proximity saturation point and alert threshold
	MaxMarginUtilization float64      `toml:"max_margin_utilization"`  // alert threshold, fraction in (0,1]
	MaxPortfolioHeat     float64      `toml:"max_portfolio_heat"`      // alert threshold, 0..100
	ScoreWeights         ScoreWeights `toml:"score_weights"`
	HeatWeights          HeatWeights  `toml:"heat_weights"`
}

// HistoryConfig controls the historical logger and reader.
type HistoryConfig struct {
	// MinIntervalSeconds is the minimum wall-clock gap between persisted
	// metrics/position ticks for one account.
	MinIntervalSeconds int `toml:"min_interval_seconds"`
	// NaturalKeys enables the composite-key schema variant: unique
	// (timestamp, coin) / (timestamp) indexes plus ON CONFLICT DO NOTHING
	// inserts, deduplicating same-tick rows at the store level.
	NaturalKeys bool `toml:"natural_keys"`
	// PnLSource selects where realized-PnL windows come from: "fills" (the
	// fills_history table) or "positions" (position-level realized_pnl
	// deltas, for schema variants without a fills table).
	PnLSource string `toml:"pnl_source"`
	// PnLWindowHours is the trailing window used for risk-adjusted return.
	PnLWindowHours int `toml:"pnl_window_hours"`
}

// MinInterval returns the logging interval as a duration.
func (h HistoryConfig) MinInterval() time.Duration {
	return time.Duration(h.MinIntervalSeconds) * time.Second
}

// PnLWindow returns the trailing realized-PnL window as a duration.
func (h HistoryConfig) PnLWindow() time.Duration {
	return time.Duration(h.PnLWindowHours) * time.Hour
}

// MonitorConfig controls the poll loop.
type MonitorConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	// MaxSnapshotAgeSeconds is the freshness bound; older snapshots are
	// flagged as stale but still processed.
	MaxSnapshotAgeSeconds int `toml:"max_snapshot_age_seconds"`
	// FillLookbackHours bounds how far back fills are fetched on startup.
	FillLookbackHours int `toml:"fill_lookback_hours"`
}

// PollInterval returns the poll interval as a duration.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSeconds) * time.Second
}

// MaxSnapshotAge returns the snapshot freshness bound as a duration.
func (m MonitorConfig) MaxSnapshotAge() time.Duration {
	return time.Duration(m.MaxSnapshotAgeSeconds) * time.Second
}

// ServerConfig holds the read-API HTTP server configuration.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"` // empty disables authentication
}

// NotifyConfig holds optional alert-forwarding channels.
type NotifyConfig struct {
	TelegramToken  string   `toml:"telegram_token"`
	TelegramChatID string   `toml:"telegram_chat_id"`
	DiscordWebhook string   `toml:"discord_webhook"`
	Events         []string `toml:"events"` // allowed alert kinds; empty allows all
	// CooldownSeconds suppresses repeat alerts for the same account, kind, and
	// asset within the window.
	CooldownSeconds int `toml:"cooldown_seconds"`
}

// Cooldown returns the repeat-alert suppression window as a duration.
func (n NotifyConfig) Cooldown() time.Duration {
	return time.Duration(n.CooldownSeconds) * time.Second
}

// ImportConfig holds paths for the legacy CSV import mode.
type ImportConfig struct {
	PositionsCSV string `toml:"positions_csv"`
	MetricsCSV   string `toml:"metrics_csv"`
	Account      string `toml:"account"`
	BatchSize    int    `toml:"batch_size"`
}

// Defaults returns a Config with sane defaults that Load overlays the TOML
// file onto.
func Defaults() Config {
	return Config{
		Hyperliquid: HyperliquidConfig{
			APIURL: "https://api.hyperliquid.xyz",
			WSURL:  "wss://api.hyperliquid.xyz/ws",
		},
		Supabase: SupabaseConfig{
			Port:         5432,
			SSLMode:      "require",
			PoolMaxConns: 4,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Risk: RiskConfig{
			MaxLeverage:          10,
			MaxPositionPct:       20,
			MinDistanceToLiqPct:  10,
			MaxMarginUtilization: 0.8,
			MaxPortfolioHeat:     70,
			ScoreWeights: ScoreWeights{
				DistanceToLiq: 0.6,
				Leverage:      0.3,
				PositionSize:  0.1,
			},
			HeatWeights: HeatWeights{
				Leverage:      0.4,
				Liquidation:   0.4,
				Concentration: 0.2,
			},
		},
		History: HistoryConfig{
			MinIntervalSeconds: 60,
			PnLSource:          "fills",
			PnLWindowHours:     168, // trailing 7 days
		},
		Monitor: MonitorConfig{
			PollIntervalSeconds:   30,
			MaxSnapshotAgeSeconds: 120,
			FillLookbackHours:     24,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Notify: NotifyConfig{
			CooldownSeconds: 300,
		},
		Import: ImportConfig{
			BatchSize: 100,
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It is called
// once at startup, before any computation or connection is attempted.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Mode) {
	case "monitor", "serve", "full", "import":
	default:
		return fmt.Errorf("config: unsupported mode %q", c.Mode)
	}

	if c.Mode != "serve" && len(c.Hyperliquid.Wallets) == 0 && c.Mode != "import" {
		return fmt.Errorf("config: at least one wallet is required in %q mode", c.Mode)
	}
	if c.Hyperliquid.APIURL == "" {
		return fmt.Errorf("config: hyperliquid api_url is required")
	}

	if err := c.Risk.validate(); err != nil {
		return err
	}

	if c.History.MinIntervalSeconds <= 0 {
		return fmt.Errorf("config: history min_interval_seconds must be positive")
	}
	switch c.History.PnLSource {
	case "fills", "positions":
	default:
		return fmt.Errorf("config: history pnl_source must be \"fills\" or \"positions\", got %q", c.History.PnLSource)
	}
	if c.History.PnLWindowHours <= 0 {
		return fmt.Errorf("config: history pnl_window_hours must be positive")
	}

	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("config: monitor poll_interval_seconds must be positive")
	}
	if c.Monitor.MaxSnapshotAgeSeconds <= 0 {
		return fmt.Errorf("config: monitor max_snapshot_age_seconds must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server port %d out of range", c.Server.Port)
	}

	if c.Import.BatchSize <= 0 {
		return fmt.Errorf("config: import batch_size must be positive")
	}

	return nil
}

const weightTolerance = 1e-9

func (r RiskConfig) validate() error {
	if r.MaxLeverage < 1 {
		return fmt.Errorf("config: risk max_leverage must be >= 1, got %g", r.MaxLeverage)
	}
	if r.MaxPositionPct <= 0 {
		return fmt.Errorf("config: risk max_position_pct must be positive")
	}
	if r.MinDistanceToLiqPct <= 0 {
		return fmt.Errorf("config: risk min_distance_to_liq_pct must be positive")
	}
	if r.MaxMarginUtilization <= 0 || r.MaxMarginUtilization > 1 {
		return fmt.Errorf("config: risk max_margin_utilization must be in (0,1], got %g", r.MaxMarginUtilization)
	}
	if r.MaxPortfolioHeat <= 0 || r.MaxPortfolioHeat > 100 {
		return fmt.Errorf("config: risk max_portfolio_heat must be in (0,100], got %g", r.MaxPortfolioHeat)
	}

	if err := checkWeights("score_weights",
		r.ScoreWeights.DistanceToLiq, r.ScoreWeights.Leverage, r.ScoreWeights.PositionSize); err != nil {
		return err
	}
	return checkWeights("heat_weights",
		r.HeatWeights.Leverage, r.HeatWeights.Liquidation, r.HeatWeights.Concentration)
}

func checkWeights(name string, weights ...float64) error {
	var sum float64
	for _, w := range weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("config: risk %s components must be in [0,1]", name)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("config: risk %s must sum to 1, got %g", name, sum)
	}
	return nil
}
