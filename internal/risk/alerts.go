package risk

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hyperwatch/internal/config"
	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// Evaluate checks the scored positions and portfolio metrics against the
// configured thresholds and returns one alert per crossing. The engine only
// emits these signals; routing them to humans is the signal-bus consumer's
// job.
func Evaluate(account string, risks []domain.PositionRisk, m domain.PortfolioMetrics, cfg config.RiskConfig) []domain.Alert {
	var alerts []domain.Alert
	now := m.Timestamp

	for _, r := range risks {
		if !math.IsInf(r.DistanceToLiquidation, 1) && r.DistanceToLiquidation < cfg.MinDistanceToLiqPct {
			alerts = append(alerts, newAlert(account, domain.AlertLiquidationProximity, r.Asset, now,
				r.DistanceToLiquidation, cfg.MinDistanceToLiqPct,
				fmt.Sprintf("%s position close to liquidation (%.1f%%)", r.Asset, r.DistanceToLiquidation)))
		}
		if r.SizePctOfAccount != nil && *r.SizePctOfAccount > cfg.MaxPositionPct {
			alerts = append(alerts, newAlert(account, domain.AlertPositionSize, r.Asset, now,
				*r.SizePctOfAccount, cfg.MaxPositionPct,
				fmt.Sprintf("%s position size exceeds maximum (%.1f%% of account)", r.Asset, *r.SizePctOfAccount)))
		}
		if r.Leverage > cfg.MaxLeverage {
			alerts = append(alerts, newAlert(account, domain.AlertLeverage, r.Asset, now,
				r.Leverage, cfg.MaxLeverage,
				fmt.Sprintf("%s leverage exceeds maximum (%gx)", r.Asset, r.Leverage)))
		}
	}

	if m.MarginUtilization != nil && *m.MarginUtilization > cfg.MaxMarginUtilization {
		alerts = append(alerts, newAlert(account, domain.AlertMarginUtilization, "", now,
			*m.MarginUtilization, cfg.MaxMarginUtilization,
			fmt.Sprintf("high margin utilization (%.1f%%)", *m.MarginUtilization*100)))
	}
	if m.PortfolioHeat > cfg.MaxPortfolioHeat {
		alerts = append(alerts, newAlert(account, domain.AlertPortfolioHeat, "", now,
			m.PortfolioHeat, cfg.MaxPortfolioHeat,
			fmt.Sprintf("high portfolio heat (%.1f)", m.PortfolioHeat)))
	}

	return alerts
}

// StaleAlert builds the signal for a snapshot older than the freshness bound.
func StaleAlert(account string, age, maxAge time.Duration, now time.Time) domain.Alert {
	return newAlert(account, domain.AlertStaleSnapshot, "", now,
		age.Seconds(), maxAge.Seconds(),
		fmt.Sprintf("snapshot is %s old (bound %s)", age.Round(time.Second), maxAge))
}

func newAlert(account string, kind domain.AlertKind, asset string, now time.Time, value, threshold float64, msg string) domain.Alert {
	return domain.Alert{
		ID:        uuid.NewString(),
		Account:   account,
		Kind:      kind,
		Asset:     asset,
		Message:   msg,
		Value:     value,
		Threshold: threshold,
		CreatedAt: now,
	}
}
