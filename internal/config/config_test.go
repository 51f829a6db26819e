package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xC9739116b8759B5a0B5834Ed62E218676EA9776F"}

	require.NoError(t, cfg.Validate())
}

func TestValidateWeightSum(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xabc"}
	cfg.Risk.ScoreWeights = ScoreWeights{DistanceToLiq: 0.5, Leverage: 0.3, PositionSize: 0.3}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score_weights")
}

func TestValidateHeatWeightSum(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xabc"}
	cfg.Risk.HeatWeights = HeatWeights{Leverage: 0.9, Liquidation: 0.2, Concentration: 0.2}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heat_weights")
}

func TestValidateRejectsNegativeWeight(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xabc"}
	cfg.Risk.ScoreWeights = ScoreWeights{DistanceToLiq: 1.2, Leverage: -0.1, PositionSize: -0.1}

	require.Error(t, cfg.Validate())
}

func TestValidateMode(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xabc"}
	cfg.Mode = "trade"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported mode")
}

func TestValidatePnLSource(t *testing.T) {
	cfg := Defaults()
	cfg.Hyperliquid.Wallets = []string{"0xabc"}
	cfg.History.PnLSource = "csv"

	require.Error(t, cfg.Validate())

	cfg.History.PnLSource = "positions"
	require.NoError(t, cfg.Validate())
}

func TestValidateRequiresWallet(t *testing.T) {
	cfg := Defaults()

	require.Error(t, cfg.Validate())

	cfg.Mode = "serve"
	require.NoError(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HYPERWATCH_RISK_MAX_LEVERAGE", "25")
	t.Setenv("HYPERWATCH_WALLETS", "0xaaa, 0xbbb")
	t.Setenv("HYPERWATCH_HISTORY_NATURAL_KEYS", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 25.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Hyperliquid.Wallets)
	assert.True(t, cfg.History.NaturalKeys)
}
