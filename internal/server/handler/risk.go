package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// MetricsReader is the slice of the metrics store the risk handler needs.
type MetricsReader interface {
	Latest(ctx context.Context, account string) (domain.PortfolioMetrics, error)
}

// RiskHandler serves the current portfolio risk state.
type RiskHandler struct {
	metrics MetricsReader
	logger  *slog.Logger
}

// NewRiskHandler creates a RiskHandler.
func NewRiskHandler(metrics MetricsReader, logger *slog.Logger) *RiskHandler {
	return &RiskHandler{
		metrics: metrics,
		logger:  logHandler(logger, "risk"),
	}
}

// metricsDTO is the wire form of a metrics row. Pointer fields render as JSON
// null when the underlying ratio was undefined; they are never coerced to 0.
type metricsDTO struct {
	Timestamp           time.Time `json:"timestamp"`
	AccountValue        float64   `json:"account_value"`
	TotalPositionValue  float64   `json:"total_position_value"`
	TotalUnrealizedPnL  float64   `json:"total_unrealized_pnl"`
	TotalExposure       float64   `json:"total_exposure"`
	AccountLeverage     *float64  `json:"account_leverage"`
	ExposureEquityRatio *float64  `json:"exposure_equity_ratio"`
	MarginUtilization   *float64  `json:"margin_utilization"`
	ConcentrationScore  float64   `json:"concentration_score"`
	PortfolioHeat       float64   `json:"portfolio_heat"`
	RiskAdjustedReturn  *float64  `json:"risk_adjusted_return"`
	FreeMargin          float64   `json:"free_margin"`
}

func toMetricsDTO(m domain.PortfolioMetrics) metricsDTO {
	return metricsDTO{
		Timestamp:           m.Timestamp,
		AccountValue:        m.AccountValue,
		TotalPositionValue:  m.TotalPositionValue,
		TotalUnrealizedPnL:  m.TotalUnrealizedPnL,
		TotalExposure:       m.TotalExposure,
		AccountLeverage:     m.AccountLeverage,
		ExposureEquityRatio: m.ExposureEquityRatio,
		MarginUtilization:   m.MarginUtilization,
		ConcentrationScore:  m.ConcentrationScore,
		PortfolioHeat:       m.PortfolioHeat,
		RiskAdjustedReturn:  m.RiskAdjustedReturn,
		FreeMargin:          m.FreeMargin,
	}
}

// Current returns the most recent metrics row for the wallet.
// GET /api/risk/current?wallet=0x...
func (h *RiskHandler) Current(w http.ResponseWriter, r *http.Request) {
	acct, ok := wallet(w, r)
	if !ok {
		return
	}

	m, err := h.metrics.Latest(r.Context(), acct)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no metrics recorded for wallet")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "latest metrics failed",
			slog.String("wallet", acct),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	writeJSON(w, http.StatusOK, toMetricsDTO(m))
}
