// Package risk computes position-level and portfolio-level risk indicators
// from account snapshots. All functions are pure: they take a snapshot plus
// current mark prices and return metrics without touching the network or the
// store.
package risk

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/hyperwatch/internal/config"
	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// ScorePosition computes the risk indicators for a single position given the
// owning snapshot and the current mark price. The only failure mode is
// domain.ErrInvalidInput when the position's entry price is not positive;
// everything else degrades to defined sentinel values (+Inf distance, nil
// size percentage) instead of erroring.
func ScorePosition(pos domain.Position, snap domain.AccountSnapshot, mark float64, cfg config.RiskConfig) (domain.PositionRisk, error) {
	if pos.EntryPrice <= 0 {
		return domain.PositionRisk{}, fmt.Errorf("risk: %s entry price %g: %w", pos.Asset, pos.EntryPrice, domain.ErrInvalidInput)
	}
	if mark <= 0 {
		// No usable mark; fall back to the entry price so a missing feed
		// never zeroes out exposure.
		mark = pos.EntryPrice
	}

	r := domain.PositionRisk{
		Asset:    pos.Asset,
		Side:     pos.Side,
		Leverage: pos.Leverage,
		Notional: math.Abs(pos.Notional(mark)),
	}

	r.DistanceToLiquidation = distanceToLiquidation(pos, mark)

	if snap.AccountValue > 0 {
		pct := r.Notional / snap.AccountValue * 100
		if pct < 0 {
			pct = 0
		}
		r.SizePctOfAccount = &pct
	}

	r.RiskScore = scoreComponents(r, cfg)
	return r, nil
}

// distanceToLiquidation returns the percentage gap between the mark price and
// the liquidation price, or +Inf when the position has no liquidation price.
func distanceToLiquidation(pos domain.Position, mark float64) float64 {
	if pos.LiquidationPrice == nil {
		return math.Inf(1)
	}
	return math.Abs(*pos.LiquidationPrice-mark) / mark * 100
}

// scoreComponents maps each risk factor to [0,100] and combines them under the
// configured weights. The result is clamped to [0,100].
func scoreComponents(r domain.PositionRisk, cfg config.RiskConfig) float64 {
	w := cfg.ScoreWeights

	score := w.DistanceToLiq*liquidationComponent(r.DistanceToLiquidation, cfg.MinDistanceToLiqPct) +
		w.Leverage*clamp100(r.Leverage/cfg.MaxLeverage*100)

	if r.SizePctOfAccount != nil {
		score += w.PositionSize * clamp100(*r.SizePctOfAccount/cfg.MaxPositionPct*100)
	}

	return clamp100(score)
}

// liquidationComponent maps distance-to-liquidation to [0,100]. It saturates
// at 100 once the distance falls to the configured minimum and decays
// hyperbolically beyond it, so a position twice the minimum distance away
// scores 50. An infinite distance (no liquidation price) contributes 0.
func liquidationComponent(distPct, minDistPct float64) float64 {
	if math.IsInf(distPct, 1) {
		return 0
	}
	if distPct <= 0 {
		return 100
	}
	return clamp100(minDistPct / distPct * 100)
}

func clamp100(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}
