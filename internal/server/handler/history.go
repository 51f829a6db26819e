package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// MetricsLister is the slice of the metrics store the history handler needs.
type MetricsLister interface {
	List(ctx context.Context, account string, opts domain.ListOpts) ([]domain.PortfolioMetrics, error)
}

// WindowReader answers trailing-window queries from the history reader.
type WindowReader interface {
	PnLWindow(ctx context.Context, account string, window time.Duration) (domain.PnLWindow, error)
	ClosedTrades(ctx context.Context, account string, limit int) ([]domain.ClosedTrade, error)
}

// HistoryHandler serves the persisted history tables and derived views.
type HistoryHandler struct {
	metrics   MetricsLister
	positions PositionReader
	reader    WindowReader
	logger    *slog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(metrics MetricsLister, positions PositionReader, reader WindowReader, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{
		metrics:   metrics,
		positions: positions,
		reader:    reader,
		logger:    logHandler(logger, "history"),
	}
}

type listMetricsResponse struct {
	Metrics []metricsDTO `json:"metrics"`
}

// Metrics returns metrics rows, newest first.
// GET /api/history/metrics?wallet=0x...&limit=&offset=&since=&until=
func (h *HistoryHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	rows, err := h.metrics.List(r.Context(), acct, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list metrics failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list metrics")
		return
	}

	out := make([]metricsDTO, 0, len(rows))
	for _, m := range rows {
		out = append(out, toMetricsDTO(m))
	}
	writeJSON(w, http.StatusOK, listMetricsResponse{Metrics: out})
}

// Positions returns position rows, newest first, optionally filtered by asset.
// GET /api/history/positions?wallet=0x...&asset=BTC&limit=&since=&until=
func (h *HistoryHandler) Positions(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	rows, err := h.positions.List(r.Context(), acct, r.URL.Query().Get("asset"), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list position history failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list position history")
		return
	}

	out := make([]positionDTO, 0, len(rows))
	for _, rec := range rows {
		out = append(out, toPositionDTO(rec))
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}

type pnlResponse struct {
	WindowHours int     `json:"window_hours"`
	RealizedPnL float64 `json:"realized_pnl"`
	AvgExposure float64 `json:"avg_exposure"`
}

// PnL returns the trailing realized-PnL window.
// GET /api/history/pnl?wallet=0x...&window_hours=168
func (h *HistoryHandler) PnL(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	hours := 168
	if v := r.URL.Query().Get("window_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "window_hours must be a positive integer")
			return
		}
		hours = n
	}

	window, err := h.reader.PnLWindow(r.Context(), acct, time.Duration(hours)*time.Hour)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pnl window failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to compute pnl window")
		return
	}

	writeJSON(w, http.StatusOK, pnlResponse{
		WindowHours: hours,
		RealizedPnL: window.Realized,
		AvgExposure: window.AvgExposure,
	})
}

type closedTradeDTO struct {
	Timestamp  time.Time `json:"timestamp"`
	Asset      string    `json:"asset"`
	Side       string    `json:"side"`
	Size       float64   `json:"size"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Profit     float64   `json:"profit"`
}

type closedTradesResponse struct {
	Trades []closedTradeDTO `json:"trades"`
}

// ClosedTrades returns the most recent closed trades, newest first.
// GET /api/trades/closed?wallet=0x...&limit=50
func (h *HistoryHandler) ClosedTrades(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	trades, err := h.reader.ClosedTrades(r.Context(), acct, parseListOpts(r).Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "closed trades failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list closed trades")
		return
	}

	out := make([]closedTradeDTO, 0, len(trades))
	for _, t := range trades {
		out = append(out, closedTradeDTO{
			Timestamp:  t.Timestamp,
			Asset:      t.Asset,
			Side:       string(t.Side),
			Size:       t.Size,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Profit:     t.Profit,
		})
	}
	writeJSON(w, http.StatusOK, closedTradesResponse{Trades: out})
}
