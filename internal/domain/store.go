package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for history queries. Since
// and Until are compared against row timestamps in absolute (UTC) time.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionHistoryStore persists the append-only position_history table. Rows
// are write-once; retention is an external concern.
type PositionHistoryStore interface {
	// InsertSnapshot writes one row per open position, all sharing the
	// snapshot timestamp (one logical tick).
	InsertSnapshot(ctx context.Context, account string, ts time.Time, positions []Position) error
	// List returns rows for the account, newest first. asset filters to a
	// single instrument when non-empty.
	List(ctx context.Context, account, asset string, opts ListOpts) ([]PositionRecord, error)
}

// MetricsHistoryStore persists the append-only metrics_history table.
type MetricsHistoryStore interface {
	Insert(ctx context.Context, account string, m PortfolioMetrics) error
	List(ctx context.Context, account string, opts ListOpts) ([]PortfolioMetrics, error)
	Latest(ctx context.Context, account string) (PortfolioMetrics, error)
	// AverageExposure averages total_exposure over rows in [since, until];
	// returns 0 with no error when the window is empty.
	AverageExposure(ctx context.Context, account string, since, until time.Time) (float64, error)
}

// FillStore persists the append-only fills_history table, deduplicated by the
// exchange fill id.
type FillStore interface {
	// InsertBatch writes fills and skips rows whose fill_id already exists.
	// It returns the number of newly inserted rows.
	InsertBatch(ctx context.Context, account string, fills []Fill) (int, error)
	// SumClosedPnL sums closed_pnl over fills in [since, until]; asset filters
	// when non-empty. An empty window yields 0, not an error.
	SumClosedPnL(ctx context.Context, account, asset string, since, until time.Time) (float64, error)
	// ListClosing returns the most recent position-closing fills
	// (closed_pnl != 0), newest first.
	ListClosing(ctx context.Context, account string, limit int) ([]Fill, error)
	List(ctx context.Context, account string, opts ListOpts) ([]Fill, error)
}

// PriceCache provides fast access to the latest mark prices.
type PriceCache interface {
	SetPrices(ctx context.Context, prices map[string]float64, ts time.Time) error
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// SignalBus publishes threshold-crossing alerts for external consumers
// (dashboard, alert routers). Publish is ephemeral pub/sub; StreamAppend is a
// durable, trimmed stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// AlertLimiter suppresses repeat alerts for the same condition. Allow returns
// true when the alert may fire and atomically starts the cooldown window.
type AlertLimiter interface {
	Allow(ctx context.Context, key string, cooldown time.Duration) (bool, error)
}
