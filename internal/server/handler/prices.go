package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// PriceReader is the read side of the mark-price cache.
type PriceReader interface {
	GetPrice(ctx context.Context, asset string) (float64, time.Time, error)
}

// PriceHandler serves the cached mark price for one asset.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{
		prices: prices,
		logger: logHandler(logger, "prices"),
	}
}

type priceResponse struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// Get returns the latest cached mark price for the asset.
// GET /api/prices?asset=BTC
func (h *PriceHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset := r.URL.Query().Get("asset")
	if asset == "" {
		writeError(w, http.StatusBadRequest, "asset parameter is required")
		return
	}

	price, ts, err := h.prices.GetPrice(r.Context(), asset)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no cached price for asset")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "price lookup failed",
			slog.String("asset", asset),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load price")
		return
	}

	writeJSON(w, http.StatusOK, priceResponse{Asset: asset, Price: price, Timestamp: ts})
}
