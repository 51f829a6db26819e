package risk

import (
	"math"

	"github.com/alanyoungcy/hyperwatch/internal/config"
	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// AggregatePortfolio computes the account-level metrics record from a full
// snapshot, the current mark prices, and the trailing realized-PnL window
// supplied by the history reader. It is deterministic and performs no I/O.
//
// Ratios whose denominator is zero or negative come back as nil pointers (the
// "undefined" sentinel), never as zero or infinity.
func AggregatePortfolio(snap domain.AccountSnapshot, marks map[string]float64, window domain.PnLWindow, cfg config.RiskConfig) domain.PortfolioMetrics {
	m := domain.PortfolioMetrics{
		Timestamp:          snap.Timestamp,
		AccountValue:       snap.AccountValue,
		TotalUnrealizedPnL: snap.TotalUnrealizedPnL(),
		FreeMargin:         snap.FreeMargin,
	}

	exposures := make([]float64, 0, len(snap.Positions))
	worstDist := math.Inf(1)
	for _, pos := range snap.Positions {
		mark := markOrEntry(marks, pos)
		signed := pos.Notional(mark)
		if pos.Side == domain.SideShort {
			signed = -signed
		}
		m.TotalPositionValue += signed

		exp := math.Abs(pos.Notional(mark))
		m.TotalExposure += exp
		exposures = append(exposures, exp)

		if d := distanceToLiquidation(pos, mark); d < worstDist {
			worstDist = d
		}
	}

	if snap.AccountValue > 0 {
		lev := m.TotalExposure / snap.AccountValue
		m.AccountLeverage = &lev
		ratio := lev
		m.ExposureEquityRatio = &ratio

		util := math.Min(1, math.Max(0, snap.TotalMarginUsed()/snap.AccountValue))
		m.MarginUtilization = &util
	}

	m.ConcentrationScore = concentration(exposures, m.TotalExposure)
	m.PortfolioHeat = portfolioHeat(m, worstDist, cfg)

	if window.AvgExposure > 0 {
		rar := window.Realized / window.AvgExposure
		m.RiskAdjustedReturn = &rar
	}

	return m
}

// concentration is the Herfindahl-Hirschman Index over exposure shares,
// scaled so a single-position portfolio scores 100 and N equal positions
// score 100/N. An empty portfolio scores 0.
func concentration(exposures []float64, total float64) float64 {
	if len(exposures) == 0 || total <= 0 {
		return 0
	}
	var hhi float64
	for _, e := range exposures {
		share := e / total
		hhi += share * share
	}
	return hhi * 100
}

// portfolioHeat blends normalized account leverage, the worst liquidation
// proximity across positions, and concentration under the configured weights.
// With no positions every component is 0, so the heat floors at 0.
func portfolioHeat(m domain.PortfolioMetrics, worstDist float64, cfg config.RiskConfig) float64 {
	w := cfg.HeatWeights

	var levComponent float64
	if m.AccountLeverage != nil {
		levComponent = clamp100(*m.AccountLeverage / cfg.MaxLeverage * 100)
	}

	heat := w.Leverage*levComponent +
		w.Liquidation*liquidationComponent(worstDist, cfg.MinDistanceToLiqPct) +
		w.Concentration*m.ConcentrationScore

	return clamp100(heat)
}

// markOrEntry resolves the mark price for a position, falling back to the
// entry price when the price feed has no quote for the asset.
func markOrEntry(marks map[string]float64, pos domain.Position) float64 {
	if mark, ok := marks[pos.Asset]; ok && mark > 0 {
		return mark
	}
	return pos.EntryPrice
}
