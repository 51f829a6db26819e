package domain

import "time"

// PositionRisk holds the per-position risk indicators computed by the risk
// scorer. DistanceToLiquidation is a percentage and +Inf when the position has
// no liquidation price. SizePctOfAccount is nil when account equity is not
// positive, which makes the ratio undefined rather than zero.
type PositionRisk struct {
	Asset                 string
	Side                  Side
	Notional              float64
	Leverage              float64
	DistanceToLiquidation float64
	SizePctOfAccount      *float64
	RiskScore             float64 // 0..100
}

// PortfolioMetrics is the account-level metrics record computed once per poll
// cycle and persisted as one metrics_history row. Nil pointer fields are the
// "undefined" sentinel for ratios whose denominator was zero or negative;
// consumers must render them distinctly and never coerce them to zero.
type PortfolioMetrics struct {
	Timestamp           time.Time
	AccountValue        float64
	TotalPositionValue  float64
	TotalUnrealizedPnL  float64
	TotalExposure       float64
	AccountLeverage     *float64
	ExposureEquityRatio *float64
	MarginUtilization   *float64 // fraction, clamped to [0,1]; nil when equity is not positive
	ConcentrationScore  float64  // HHI scaled to [0,100]
	PortfolioHeat       float64  // 0..100
	RiskAdjustedReturn  *float64
	FreeMargin          float64
}

// PnLWindow bundles the trailing realized-PnL view the portfolio aggregator
// needs from the history reader.
type PnLWindow struct {
	Realized    float64 // sum of closed PnL inside the window; 0 for an empty window
	AvgExposure float64 // average total_exposure over the window; 0 when no history
}

// AlertKind identifies which threshold an alert crossed.
type AlertKind string

const (
	AlertLiquidationProximity AlertKind = "liquidation_proximity"
	AlertPositionSize         AlertKind = "position_size"
	AlertLeverage             AlertKind = "leverage"
	AlertMarginUtilization    AlertKind = "margin_utilization"
	AlertPortfolioHeat        AlertKind = "portfolio_heat"
	AlertStaleSnapshot        AlertKind = "stale_snapshot"
)

// Alert is a threshold-crossing signal. The engine only emits alerts; delivery
// is the concern of whatever consumes the signal bus or notify senders.
type Alert struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Kind      AlertKind `json:"kind"`
	Asset     string    `json:"asset,omitempty"` // empty for portfolio-level alerts
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	CreatedAt time.Time `json:"created_at"`
}
