package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
	"github.com/alanyoungcy/hyperwatch/internal/importer"
	"github.com/alanyoungcy/hyperwatch/internal/monitor"
	"github.com/alanyoungcy/hyperwatch/internal/platform/hyperliquid"
	"github.com/alanyoungcy/hyperwatch/internal/server"
	"github.com/alanyoungcy/hyperwatch/internal/server/handler"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// newTracker builds the shared monitoring tracker from wired dependencies.
func (a *App) newTracker(deps *Dependencies) *monitor.Tracker {
	opts := monitor.Options{
		Prices:  deps.PriceCache,
		Limiter: deps.AlertLimiter,
	}
	if deps.SignalBus != nil {
		opts.Bus = deps.SignalBus
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		opts.Sender = deps.Notifier
	}
	return monitor.New(deps.Exchange, deps.HistLogger, deps.Reader, *a.cfg, opts, a.logger)
}

// MonitorMode runs one poll loop per tracked wallet until the context ends.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	tracker := a.newTracker(deps)

	g, ctx := errgroup.WithContext(ctx)
	for _, wallet := range a.cfg.Hyperliquid.Wallets {
		wallet := wallet
		g.Go(func() error {
			return tracker.RunLoop(ctx, wallet)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ServeMode runs only the read API server.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// FullMode runs the poll loops, the real-time fill feed, and the read API
// server together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	tracker := a.newTracker(deps)

	g, ctx := errgroup.WithContext(ctx)

	for _, wallet := range a.cfg.Hyperliquid.Wallets {
		wallet := wallet
		g.Go(func() error {
			return tracker.RunLoop(ctx, wallet)
		})
	}

	// Real-time fill feed. A connect failure is logged, not fatal; the poll
	// loop backfills fills on its own.
	ws := hyperliquid.NewWSClient(a.cfg.Hyperliquid.WSURL)
	ws.OnFills(func(wallet string, fills []domain.Fill) {
		tracker.IngestFills(ctx, wallet, fills)
	})
	if err := ws.Connect(ctx); err != nil {
		a.logger.ErrorContext(ctx, "fill feed connect failed",
			slog.String("error", err.Error()))
	} else {
		for _, wallet := range a.cfg.Hyperliquid.Wallets {
			if err := ws.SubscribeFills(ctx, wallet); err != nil {
				a.logger.ErrorContext(ctx, "fill feed subscribe failed",
					slog.String("account", wallet),
					slog.String("error", err.Error()))
			}
		}
	}
	a.closers = append(a.closers, func() { _ = ws.Close() })

	a.startServer(ctx, g, deps)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ImportMode runs the legacy CSV backfill and exits.
func (a *App) ImportMode(ctx context.Context, deps *Dependencies) error {
	imp := a.cfg.Import
	if imp.Account == "" {
		return fmt.Errorf("app: import mode requires import.account")
	}
	if imp.PositionsCSV == "" && imp.MetricsCSV == "" {
		return fmt.Errorf("app: import mode requires at least one of positions_csv, metrics_csv")
	}

	im := importer.New(deps.PositionStore, deps.MetricsStore, imp.BatchSize, a.logger)

	if imp.PositionsCSV != "" {
		sum, err := im.ImportPositions(ctx, imp.Account, imp.PositionsCSV)
		if err != nil {
			return fmt.Errorf("app: import positions: %w", err)
		}
		a.logger.InfoContext(ctx, "position import complete",
			slog.Int("imported", sum.Imported), slog.Int("failed", sum.Failed))
	}

	if imp.MetricsCSV != "" {
		sum, err := im.ImportMetrics(ctx, imp.Account, imp.MetricsCSV)
		if err != nil {
			return fmt.Errorf("app: import metrics: %w", err)
		}
		a.logger.InfoContext(ctx, "metrics import complete",
			slog.Int("imported", sum.Imported), slog.Int("failed", sum.Failed))
	}

	return nil
}

// startServer registers the API routes and runs the HTTP server in the group,
// shutting it down when the context ends.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	checks := map[string]handler.HealthCheckFunc{
		"postgres": deps.PGPing,
	}
	if deps.RedisPing != nil {
		checks["redis"] = deps.RedisPing
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(Version, checks),
		Risk:      handler.NewRiskHandler(deps.MetricsStore, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, a.logger),
		History:   handler.NewHistoryHandler(deps.MetricsStore, deps.PositionStore, deps.Reader, a.logger),
	}
	if deps.PriceCache != nil {
		handlers.Prices = handler.NewPriceHandler(deps.PriceCache, a.logger)
	}
	if deps.SignalBus != nil {
		handlers.Alerts = handler.NewAlertStreamHandler(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, a.logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		return ctx.Err()
	})
}
