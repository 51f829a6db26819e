package risk

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

func kinds(alerts []domain.Alert) []domain.AlertKind {
	out := make([]domain.AlertKind, len(alerts))
	for i, a := range alerts {
		out[i] = a.Kind
	}
	return out
}

func TestEvaluateQuietPortfolio(t *testing.T) {
	risks := []domain.PositionRisk{{
		Asset:                 "BTC",
		Side:                  domain.SideLong,
		Leverage:              2,
		DistanceToLiquidation: 45,
		SizePctOfAccount:      ptr(5),
		RiskScore:             20,
	}}
	m := domain.PortfolioMetrics{MarginUtilization: ptr(0.3), PortfolioHeat: 25}

	assert.Empty(t, Evaluate("0xabc", risks, m, riskCfg()))
}

func TestEvaluateThresholdCrossings(t *testing.T) {
	risks := []domain.PositionRisk{
		{
			Asset:                 "BTC",
			Side:                  domain.SideLong,
			Leverage:              25, // above max 10
			DistanceToLiquidation: 3,  // below min 10
			SizePctOfAccount:      ptr(35),
		},
	}
	m := domain.PortfolioMetrics{MarginUtilization: ptr(0.92), PortfolioHeat: 85}

	alerts := Evaluate("0xabc", risks, m, riskCfg())
	require.Len(t, alerts, 5)
	assert.ElementsMatch(t, []domain.AlertKind{
		domain.AlertLiquidationProximity,
		domain.AlertPositionSize,
		domain.AlertLeverage,
		domain.AlertMarginUtilization,
		domain.AlertPortfolioHeat,
	}, kinds(alerts))

	for _, a := range alerts {
		assert.Equal(t, "0xabc", a.Account)
		assert.NotEmpty(t, a.ID)
		assert.NotEmpty(t, a.Message)
	}
}

func TestEvaluateNoLiquidationAlertWithoutLiqPrice(t *testing.T) {
	// +Inf distance means no liquidation risk and must never trip the
	// proximity alert.
	risks := []domain.PositionRisk{{
		Asset:                 "ETH",
		Side:                  domain.SideShort,
		Leverage:              1,
		DistanceToLiquidation: math.Inf(1),
		SizePctOfAccount:      ptr(2),
	}}

	alerts := Evaluate("0xabc", risks, domain.PortfolioMetrics{}, riskCfg())
	assert.Empty(t, alerts)
}

func TestEvaluateUndefinedMarginUtilization(t *testing.T) {
	// Undefined utilization (negative equity) must not trip the threshold;
	// the liquidation-proximity and leverage alerts still cover the account.
	m := domain.PortfolioMetrics{MarginUtilization: nil, PortfolioHeat: 10}

	alerts := Evaluate("0xabc", nil, m, riskCfg())
	for _, a := range alerts {
		assert.NotEqual(t, domain.AlertMarginUtilization, a.Kind)
	}
}

func TestStaleAlert(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := StaleAlert("0xabc", 5*time.Minute, 2*time.Minute, now)

	assert.Equal(t, domain.AlertStaleSnapshot, a.Kind)
	assert.Equal(t, 300.0, a.Value)
	assert.Equal(t, 120.0, a.Threshold)
	assert.Equal(t, now, a.CreatedAt)
}
