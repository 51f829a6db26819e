package importer

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

type memPositionStore struct {
	ticks [][]domain.Position
	times []time.Time
}

func (s *memPositionStore) InsertSnapshot(_ context.Context, _ string, ts time.Time, positions []domain.Position) error {
	s.ticks = append(s.ticks, positions)
	s.times = append(s.times, ts)
	return nil
}

func (s *memPositionStore) List(context.Context, string, string, domain.ListOpts) ([]domain.PositionRecord, error) {
	return nil, nil
}

type memMetricsStore struct {
	rows []domain.PortfolioMetrics
}

func (s *memMetricsStore) Insert(_ context.Context, _ string, m domain.PortfolioMetrics) error {
	s.rows = append(s.rows, m)
	return nil
}

func (s *memMetricsStore) List(context.Context, string, domain.ListOpts) ([]domain.PortfolioMetrics, error) {
	return s.rows, nil
}

func (s *memMetricsStore) Latest(context.Context, string) (domain.PortfolioMetrics, error) {
	return domain.PortfolioMetrics{}, domain.ErrNotFound
}

func (s *memMetricsStore) AverageExposure(context.Context, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestImporter(pos *memPositionStore, met *memMetricsStore) *Importer {
	return New(pos, met, 100, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestImportPositionsGroupsTicks(t *testing.T) {
	csv := `timestamp,coin,side,size,entry_price,leverage,liquidation_price,unrealized_pnl,realized_pnl,margin_used
2025-06-01 12:00:00,BTC,long,0.5,60000,10,54000,100,0,3000
2025-06-01 12:00:00,ETH,short,2,3000,5,,-20,5,600
2025-06-01 12:01:00,BTC,long,0.5,60000,10,54000,120,0,3000
`
	pos := &memPositionStore{}
	im := newTestImporter(pos, &memMetricsStore{})

	sum, err := im.ImportPositions(context.Background(), "0xabc", writeFile(t, "positions.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Imported)
	assert.Equal(t, 0, sum.Failed)

	// Two ticks: the first carries both positions.
	require.Len(t, pos.ticks, 2)
	require.Len(t, pos.ticks[0], 2)
	require.Len(t, pos.ticks[1], 1)

	eth := pos.ticks[0][1]
	assert.Equal(t, domain.SideShort, eth.Side)
	assert.Nil(t, eth.LiquidationPrice)

	btc := pos.ticks[0][0]
	require.NotNil(t, btc.LiquidationPrice)
	assert.InDelta(t, 54000.0, *btc.LiquidationPrice, 1e-9)
}

func TestImportPositionsSkipsBadRows(t *testing.T) {
	csv := `timestamp,coin,side,size,entry_price,leverage,liquidation_price,unrealized_pnl,realized_pnl,margin_used
2025-06-01 12:00:00,BTC,long,0.5,60000,10,54000,100,0,3000
not-a-time,BTC,long,0.5,60000,10,54000,100,0,3000
2025-06-01 12:01:00,ETH,sideways,2,3000,5,,0,0,600
`
	pos := &memPositionStore{}
	im := newTestImporter(pos, &memMetricsStore{})

	sum, err := im.ImportPositions(context.Background(), "0xabc", writeFile(t, "positions.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Imported)
	assert.Equal(t, 2, sum.Failed)
}

func TestImportMetrics(t *testing.T) {
	csv := `timestamp,account_value,total_position_value,total_margin_used,free_margin,total_unrealized_pnl,account_leverage,total_exposure,exposure_equity_ratio,portfolio_heat,risk_adjusted_return,margin_utilization,concentration_score
2025-06-01T12:00:00Z,10000,30000,3000,6400,150,3.0,30000,3.0,45.5,0.05,0.3,100
2025-06-01T12:01:00Z,-50,0,0,0,0,inf,0,,0,,,0
`
	met := &memMetricsStore{}
	im := newTestImporter(&memPositionStore{}, met)

	sum, err := im.ImportMetrics(context.Background(), "0xabc", writeFile(t, "metrics.csv", csv))
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Imported)
	assert.Equal(t, 0, sum.Failed)

	first := met.rows[0]
	assert.InDelta(t, 10000.0, first.AccountValue, 1e-9)
	require.NotNil(t, first.AccountLeverage)
	assert.InDelta(t, 3.0, *first.AccountLeverage, 1e-9)
	require.NotNil(t, first.MarginUtilization)
	assert.InDelta(t, 0.3, *first.MarginUtilization, 1e-9)
	require.NotNil(t, first.RiskAdjustedReturn)

	// The legacy logger wrote inf / empty cells for undefined ratios; they
	// import as NULL, not zero.
	second := met.rows[1]
	assert.Nil(t, second.AccountLeverage)
	assert.Nil(t, second.ExposureEquityRatio)
	assert.Nil(t, second.MarginUtilization)
	assert.Nil(t, second.RiskAdjustedReturn)
}

func TestImportMissingFile(t *testing.T) {
	im := newTestImporter(&memPositionStore{}, &memMetricsStore{})
	_, err := im.ImportPositions(context.Background(), "0xabc", "/does/not/exist.csv")
	require.Error(t, err)
}
