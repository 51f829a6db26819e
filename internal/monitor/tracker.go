// Package monitor runs the poll loop: fetch the account state from the
// exchange, score it, persist history, and emit threshold alerts.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/config"
	"github.com/alanyoungcy/hyperwatch/internal/domain"
	"github.com/alanyoungcy/hyperwatch/internal/histlog"
	"github.com/alanyoungcy/hyperwatch/internal/history"
	"github.com/alanyoungcy/hyperwatch/internal/risk"
)

// Exchange is the read surface of the exchange client the tracker needs.
type Exchange interface {
	AccountSnapshot(ctx context.Context, wallet string) (domain.AccountSnapshot, error)
	MarkPrices(ctx context.Context) (map[string]float64, error)
	UserFills(ctx context.Context, wallet string, since time.Time) ([]domain.Fill, error)
}

// AlertSender forwards an alert to an external channel (Telegram, Discord).
type AlertSender interface {
	Send(ctx context.Context, alert domain.Alert) error
}

// Tracker runs one account's monitoring cycle. The price cache, signal bus,
// alert limiter, and sender are all optional; a nil value disables that
// side effect and the cycle still computes and persists.
type Tracker struct {
	exchange Exchange
	histLog  *histlog.Logger
	reader   *history.Reader

	prices  domain.PriceCache
	bus     domain.SignalBus
	limiter domain.AlertLimiter
	sender  AlertSender

	riskCfg    config.RiskConfig
	monitorCfg config.MonitorConfig
	pnlWindow  time.Duration
	cooldown   time.Duration

	logger *slog.Logger
	now    func() time.Time

	// lastFillFetch tracks, per wallet, how far the fill backfill has
	// reached. Guarded by mu; one Tracker serves every wallet loop.
	mu            sync.Mutex
	lastFillFetch map[string]time.Time
}

// Options carries the optional side-effect dependencies for a Tracker.
type Options struct {
	Prices  domain.PriceCache
	Bus     domain.SignalBus
	Limiter domain.AlertLimiter
	Sender  AlertSender
}

// New creates a Tracker.
func New(
	exchange Exchange,
	histLog *histlog.Logger,
	reader *history.Reader,
	cfg config.Config,
	opts Options,
	logger *slog.Logger,
) *Tracker {
	return &Tracker{
		exchange:      exchange,
		histLog:       histLog,
		reader:        reader,
		prices:        opts.Prices,
		bus:           opts.Bus,
		limiter:       opts.Limiter,
		sender:        opts.Sender,
		riskCfg:       cfg.Risk,
		monitorCfg:    cfg.Monitor,
		pnlWindow:     cfg.History.PnLWindow(),
		cooldown:      cfg.Notify.Cooldown(),
		logger:        logger.With(slog.String("component", "monitor")),
		now:           time.Now,
		lastFillFetch: make(map[string]time.Time),
	}
}

// WithClock replaces the wall clock, for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// CycleReport summarizes what one poll cycle computed and persisted.
type CycleReport struct {
	Snapshot domain.AccountSnapshot
	Risks    []domain.PositionRisk
	Metrics  domain.PortfolioMetrics
	Alerts   []domain.Alert
	Stale    bool
	Logged   histlog.Result
}

// Cycle runs one poll cycle for the wallet. A snapshot fetch failure aborts
// the cycle; downstream side-effect failures are logged and do not, so a
// flaky Redis never stops risk computation.
func (t *Tracker) Cycle(ctx context.Context, wallet string) (CycleReport, error) {
	var report CycleReport

	snap, err := t.exchange.AccountSnapshot(ctx, wallet)
	if err != nil {
		return report, fmt.Errorf("monitor: fetch snapshot %s: %w", wallet, err)
	}
	report.Snapshot = snap

	now := t.now().UTC()
	age := now.Sub(snap.Timestamp)
	if age > t.monitorCfg.MaxSnapshotAge() {
		report.Stale = true
		t.logger.WarnContext(ctx, "stale snapshot",
			slog.String("account", wallet),
			slog.Duration("age", age),
		)
	}

	marks, err := t.exchange.MarkPrices(ctx)
	if err != nil {
		// Entry prices stand in for marks; scoring degrades but continues.
		t.logger.WarnContext(ctx, "mark price fetch failed, using entry prices",
			slog.String("error", err.Error()))
		marks = nil
	}

	fills := t.fetchFills(ctx, wallet, now)

	window, err := t.reader.PnLWindow(ctx, wallet, t.pnlWindow)
	if err != nil {
		t.logger.WarnContext(ctx, "pnl window query failed",
			slog.String("account", wallet),
			slog.String("error", err.Error()))
		window = domain.PnLWindow{}
	}

	for _, pos := range snap.Positions {
		pr, err := risk.ScorePosition(pos, snap, marks[pos.Asset], t.riskCfg)
		if err != nil {
			t.logger.WarnContext(ctx, "skipping unscorable position",
				slog.String("account", wallet),
				slog.String("asset", pos.Asset),
				slog.String("error", err.Error()))
			continue
		}
		report.Risks = append(report.Risks, pr)
	}

	report.Metrics = risk.AggregatePortfolio(snap, marks, window, t.riskCfg)

	logged, err := t.histLog.Record(ctx, snap, report.Metrics, fills)
	report.Logged = logged
	if err != nil {
		// Persistence retries next cycle; the computed state is still good.
		t.logger.ErrorContext(ctx, "history write failed",
			slog.String("account", wallet),
			slog.String("error", err.Error()))
	}

	if t.prices != nil && len(marks) > 0 {
		if err := t.prices.SetPrices(ctx, marks, now); err != nil {
			t.logger.WarnContext(ctx, "price cache update failed",
				slog.String("error", err.Error()))
		}
	}

	alerts := risk.Evaluate(wallet, report.Risks, report.Metrics, t.riskCfg)
	if report.Stale {
		alerts = append(alerts, risk.StaleAlert(wallet, age, t.monitorCfg.MaxSnapshotAge(), now))
	}
	report.Alerts = t.emitAlerts(ctx, alerts)

	return report, nil
}

// fetchFills pulls fills since the last successful fetch (bounded by the
// configured lookback on the first cycle). Fetch failures are logged and
// yield an empty batch; the dedup key makes re-fetching harmless.
func (t *Tracker) fetchFills(ctx context.Context, wallet string, now time.Time) []domain.Fill {
	t.mu.Lock()
	since, ok := t.lastFillFetch[wallet]
	t.mu.Unlock()
	if !ok {
		since = now.Add(-time.Duration(t.monitorCfg.FillLookbackHours) * time.Hour)
	}

	fills, err := t.exchange.UserFills(ctx, wallet, since)
	if err != nil {
		t.logger.WarnContext(ctx, "fill fetch failed",
			slog.String("account", wallet),
			slog.String("error", err.Error()))
		return nil
	}

	// Overlap the next fetch by a minute so a fill landing between the
	// response and now is not missed.
	t.mu.Lock()
	t.lastFillFetch[wallet] = now.Add(-time.Minute)
	t.mu.Unlock()
	return fills
}

// emitAlerts routes alerts through the cooldown limiter, the signal bus, and
// the external sender. It returns the alerts that survived the cooldown.
func (t *Tracker) emitAlerts(ctx context.Context, alerts []domain.Alert) []domain.Alert {
	if len(alerts) == 0 {
		return nil
	}

	var emitted []domain.Alert
	for _, a := range alerts {
		if t.limiter != nil && t.cooldown > 0 {
			key := a.Account + ":" + string(a.Kind) + ":" + a.Asset
			allowed, err := t.limiter.Allow(ctx, key, t.cooldown)
			if err != nil {
				t.logger.WarnContext(ctx, "alert cooldown check failed",
					slog.String("error", err.Error()))
			} else if !allowed {
				continue
			}
		}
		emitted = append(emitted, a)

		t.logger.InfoContext(ctx, "alert",
			slog.String("account", a.Account),
			slog.String("kind", string(a.Kind)),
			slog.String("asset", a.Asset),
			slog.String("message", a.Message),
		)

		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		if t.bus != nil {
			if err := t.bus.Publish(ctx, "alerts:"+a.Account, payload); err != nil {
				t.logger.WarnContext(ctx, "alert publish failed", slog.String("error", err.Error()))
			}
			if err := t.bus.StreamAppend(ctx, "alerts", payload); err != nil {
				t.logger.WarnContext(ctx, "alert stream append failed", slog.String("error", err.Error()))
			}
		}
		if t.sender != nil {
			if err := t.sender.Send(ctx, a); err != nil {
				t.logger.WarnContext(ctx, "alert delivery failed", slog.String("error", err.Error()))
			}
		}
	}
	return emitted
}

// IngestFills persists a fill batch delivered by the real-time feed.
func (t *Tracker) IngestFills(ctx context.Context, wallet string, fills []domain.Fill) {
	inserted, _, err := t.histLog.RecordFills(ctx, wallet, fills)
	if err != nil {
		t.logger.ErrorContext(ctx, "stream fill write failed",
			slog.String("account", wallet),
			slog.String("error", err.Error()))
		return
	}
	if inserted > 0 {
		t.logger.DebugContext(ctx, "stream fills persisted",
			slog.String("account", wallet),
			slog.Int("inserted", inserted))
	}
}

// RunLoop polls the wallet on the configured interval until the context ends.
// The first cycle runs immediately. Cycle errors are logged, not fatal.
func (t *Tracker) RunLoop(ctx context.Context, wallet string) error {
	t.runOnce(ctx, wallet)

	ticker := time.NewTicker(t.monitorCfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.InfoContext(ctx, "monitor loop stopped", slog.String("account", wallet))
			return ctx.Err()
		case <-ticker.C:
			t.runOnce(ctx, wallet)
		}
	}
}

func (t *Tracker) runOnce(ctx context.Context, wallet string) {
	report, err := t.Cycle(ctx, wallet)
	if err != nil {
		t.logger.ErrorContext(ctx, "poll cycle failed",
			slog.String("account", wallet),
			slog.String("error", err.Error()))
		return
	}
	t.logger.InfoContext(ctx, "poll cycle complete",
		slog.String("account", wallet),
		slog.Int("positions", len(report.Snapshot.Positions)),
		slog.Float64("heat", report.Metrics.PortfolioHeat),
		slog.Int("alerts", len(report.Alerts)),
	)
}
