// Package history reconstructs time-windowed views (trailing realized PnL,
// closed-trade lists, average exposure) from the persisted history tables.
// All window arithmetic happens in absolute UTC time; row timestamps are
// stored as timestamptz, so daylight-saving shifts in the caller's locale
// cannot move a window boundary.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// Source selects where realized-PnL windows are computed from.
type Source string

const (
	// SourceFills sums closed_pnl over the fills_history table.
	SourceFills Source = "fills"
	// SourcePositions derives realized PnL from position-level realized_pnl
	// deltas, for schema variants without a dedicated fills table.
	SourcePositions Source = "positions"
)

// Reader answers historical queries for the aggregator and the dashboard.
type Reader struct {
	positions domain.PositionHistoryStore
	metrics   domain.MetricsHistoryStore
	fills     domain.FillStore
	source    Source
	now       func() time.Time
}

// NewReader creates a Reader over the given stores using the configured PnL
// source.
func NewReader(
	positions domain.PositionHistoryStore,
	metrics domain.MetricsHistoryStore,
	fills domain.FillStore,
	source Source,
) *Reader {
	return &Reader{
		positions: positions,
		metrics:   metrics,
		fills:     fills,
		source:    source,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// RealizedPnLWindow sums realized PnL for the account over the trailing
// window, optionally filtered to one asset. An empty window yields 0, which
// is a defined value ("no trades"), distinct from the aggregator's undefined
// ratio sentinel.
func (r *Reader) RealizedPnLWindow(ctx context.Context, account, asset string, window time.Duration) (float64, error) {
	until := r.now().UTC()
	since := until.Add(-window)

	switch r.source {
	case SourcePositions:
		return r.pnlFromPositionDeltas(ctx, account, asset, since, until)
	default:
		sum, err := r.fills.SumClosedPnL(ctx, account, asset, since, until)
		if err != nil {
			return 0, fmt.Errorf("history: sum closed pnl: %w", err)
		}
		return sum, nil
	}
}

// pnlFromPositionDeltas approximates realized PnL as the per-asset difference
// between the newest and oldest realized_pnl values inside the window. The
// exchange reports realized_pnl cumulatively per open position, so the delta
// over the window is what was realized during it.
func (r *Reader) pnlFromPositionDeltas(ctx context.Context, account, asset string, since, until time.Time) (float64, error) {
	rows, err := r.positions.List(ctx, account, asset, domain.ListOpts{Since: &since, Until: &until})
	if err != nil {
		return 0, fmt.Errorf("history: list position rows: %w", err)
	}

	// Rows arrive newest first. Track the newest and oldest observation per
	// asset and sum the deltas.
	type span struct{ newest, oldest float64 }
	spans := make(map[string]*span)
	for _, rec := range rows {
		s, ok := spans[rec.Position.Asset]
		if !ok {
			s = &span{newest: rec.Position.RealizedPnL}
			spans[rec.Position.Asset] = s
		}
		s.oldest = rec.Position.RealizedPnL
	}

	var total float64
	for _, s := range spans {
		total += s.newest - s.oldest
	}
	return total, nil
}

// AverageExposure averages total_exposure over metrics rows in the trailing
// window; 0 when no history exists.
func (r *Reader) AverageExposure(ctx context.Context, account string, window time.Duration) (float64, error) {
	until := r.now().UTC()
	since := until.Add(-window)

	avg, err := r.metrics.AverageExposure(ctx, account, since, until)
	if err != nil {
		return 0, fmt.Errorf("history: average exposure: %w", err)
	}
	return avg, nil
}

// PnLWindow bundles RealizedPnLWindow and AverageExposure into the input the
// portfolio aggregator consumes.
func (r *Reader) PnLWindow(ctx context.Context, account string, window time.Duration) (domain.PnLWindow, error) {
	realized, err := r.RealizedPnLWindow(ctx, account, "", window)
	if err != nil {
		return domain.PnLWindow{}, err
	}
	avg, err := r.AverageExposure(ctx, account, window)
	if err != nil {
		return domain.PnLWindow{}, err
	}
	return domain.PnLWindow{Realized: realized, AvgExposure: avg}, nil
}

// ClosedTrades returns the most recent closed trades, newest first. Entry
// prices are reconstructed from the closing fill itself: for a long close,
// profit = (exit − entry) · size, so entry = exit − profit/size; a short
// close mirrors the sign. Fills are the only append-only record that
// survives position churn, so this stays correct after the open position
// rows disappear.
func (r *Reader) ClosedTrades(ctx context.Context, account string, limit int) ([]domain.ClosedTrade, error) {
	fills, err := r.fills.ListClosing(ctx, account, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list closing fills: %w", err)
	}

	trades := make([]domain.ClosedTrade, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, closedTrade(f))
	}
	return trades, nil
}

func closedTrade(f domain.Fill) domain.ClosedTrade {
	t := domain.ClosedTrade{
		Timestamp: f.Timestamp,
		Asset:     f.Asset,
		Side:      f.Side,
		Size:      f.Size,
		ExitPrice: f.Price,
		Profit:    f.ClosedPnL,
	}
	if f.Size > 0 {
		perUnit := f.ClosedPnL / f.Size
		// The fill side is the closing order's side: a sell closes a long
		// (entry below exit when profitable), a buy closes a short.
		if f.Side == domain.SideShort {
			t.EntryPrice = f.Price - perUnit
		} else {
			t.EntryPrice = f.Price + perUnit
		}
	}
	return t
}
