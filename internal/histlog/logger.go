package histlog

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// Logger owns the per-cycle persistence decision. Record is called once per
// poll cycle with the fresh snapshot, its computed metrics, and any fills
// observed since the previous cycle.
type Logger struct {
	positions domain.PositionHistoryStore
	metrics   domain.MetricsHistoryStore
	fills     domain.FillStore
	policy    *Policy
	logger    *slog.Logger
}

// New creates a Logger writing through the given stores under the given
// interval policy.
func New(
	positions domain.PositionHistoryStore,
	metrics domain.MetricsHistoryStore,
	fills domain.FillStore,
	policy *Policy,
	logger *slog.Logger,
) *Logger {
	return &Logger{
		positions: positions,
		metrics:   metrics,
		fills:     fills,
		policy:    policy,
		logger:    logger.With(slog.String("component", "histlog")),
	}
}

// Result reports what one Record call actually persisted.
type Result struct {
	MetricsWritten   bool
	PositionsWritten int
	FillsInserted    int
	FillsSkipped     int
}

// Record applies the persistence policy for one tick. Metrics and position
// rows share the rate limit and are written as one logical tick; fills are
// always attempted and deduplicated by the store. Store failures come back as
// domain.PersistenceError values (joined when several artifacts fail) and
// never advance the rate-limit clock, so the caller can simply retry on the
// next cycle. A failure on one artifact does not stop the others.
func (l *Logger) Record(ctx context.Context, snap domain.AccountSnapshot, m domain.PortfolioMetrics, fills []domain.Fill) (Result, error) {
	var res Result
	var errs []error

	if l.policy.ShouldWrite(snap.Account, ArtifactMetrics) {
		if err := l.metrics.Insert(ctx, snap.Account, m); err != nil {
			errs = append(errs, &domain.PersistenceError{Artifact: string(ArtifactMetrics), Err: err})
		} else {
			l.policy.MarkWritten(snap.Account, ArtifactMetrics)
			res.MetricsWritten = true
		}
	}

	if l.policy.ShouldWrite(snap.Account, ArtifactPositions) {
		if err := l.positions.InsertSnapshot(ctx, snap.Account, snap.Timestamp, snap.Positions); err != nil {
			errs = append(errs, &domain.PersistenceError{Artifact: string(ArtifactPositions), Err: err})
		} else {
			l.policy.MarkWritten(snap.Account, ArtifactPositions)
			res.PositionsWritten = len(snap.Positions)
		}
	}

	if len(fills) > 0 {
		inserted, err := l.fills.InsertBatch(ctx, snap.Account, fills)
		if err != nil {
			errs = append(errs, &domain.PersistenceError{Artifact: "fills", Err: err})
		} else {
			res.FillsInserted = inserted
			res.FillsSkipped = len(fills) - inserted
			if res.FillsSkipped > 0 {
				l.logger.DebugContext(ctx, "skipped redelivered fills",
					slog.String("account", snap.Account),
					slog.Int("skipped", res.FillsSkipped),
				)
			}
		}
	}

	if len(errs) > 0 {
		return res, errors.Join(errs...)
	}
	return res, nil
}

// RecordFills persists a fill batch outside the snapshot tick, for callers
// fed by the real-time fill stream. It returns inserted and skipped counts.
func (l *Logger) RecordFills(ctx context.Context, account string, fills []domain.Fill) (int, int, error) {
	if len(fills) == 0 {
		return 0, 0, nil
	}
	inserted, err := l.fills.InsertBatch(ctx, account, fills)
	if err != nil {
		return 0, 0, &domain.PersistenceError{Artifact: "fills", Err: err}
	}
	skipped := len(fills) - inserted
	if skipped > 0 {
		l.logger.DebugContext(ctx, "skipped redelivered fills",
			slog.String("account", account),
			slog.Int("skipped", skipped),
		)
	}
	return inserted, skipped, nil
}
