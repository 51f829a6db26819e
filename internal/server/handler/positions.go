package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// PositionReader is the slice of the position store the handler needs.
type PositionReader interface {
	List(ctx context.Context, account, asset string, opts domain.ListOpts) ([]domain.PositionRecord, error)
}

// PositionHandler serves the latest persisted positions for a wallet.
type PositionHandler struct {
	positions PositionReader
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions PositionReader, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logHandler(logger, "positions"),
	}
}

// positionDTO is the wire form of one position row.
type positionDTO struct {
	Timestamp        time.Time `json:"timestamp"`
	Asset            string    `json:"asset"`
	Side             string    `json:"side"`
	Size             float64   `json:"size"`
	EntryPrice       float64   `json:"entry_price"`
	LiquidationPrice *float64  `json:"liquidation_price"`
	Leverage         float64   `json:"leverage"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	RealizedPnL      float64   `json:"realized_pnl"`
	MarginUsed       float64   `json:"margin_used"`
}

func toPositionDTO(rec domain.PositionRecord) positionDTO {
	p := rec.Position
	return positionDTO{
		Timestamp:        rec.Timestamp,
		Asset:            p.Asset,
		Side:             string(p.Side),
		Size:             p.Size,
		EntryPrice:       p.EntryPrice,
		LiquidationPrice: p.LiquidationPrice,
		Leverage:         p.Leverage,
		UnrealizedPnL:    p.UnrealizedPnL,
		RealizedPnL:      p.RealizedPnL,
		MarginUsed:       p.MarginUsed,
	}
}

type listPositionsResponse struct {
	Positions []positionDTO `json:"positions"`
}

// Latest returns the rows of the most recent snapshot tick for the wallet.
// GET /api/positions?wallet=0x...
func (h *PositionHandler) Latest(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	// Rows come back newest first; the first timestamp marks the latest tick.
	rows, err := h.positions.List(r.Context(), acct, "", domain.ListOpts{Limit: 200})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	out := make([]positionDTO, 0, len(rows))
	for _, rec := range rows {
		if !rec.Timestamp.Equal(rows[0].Timestamp) {
			break
		}
		out = append(out, toPositionDTO(rec))
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: out})
}
