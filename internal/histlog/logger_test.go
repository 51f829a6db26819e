package histlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakePositionStore struct {
	inserts int
	err     error
}

func (s *fakePositionStore) InsertSnapshot(_ context.Context, _ string, _ time.Time, _ []domain.Position) error {
	if s.err != nil {
		return s.err
	}
	s.inserts++
	return nil
}

func (s *fakePositionStore) List(context.Context, string, string, domain.ListOpts) ([]domain.PositionRecord, error) {
	return nil, nil
}

type fakeMetricsStore struct {
	inserts int
	rows    []domain.PortfolioMetrics
	err     error
}

func (s *fakeMetricsStore) Insert(_ context.Context, _ string, m domain.PortfolioMetrics) error {
	if s.err != nil {
		return s.err
	}
	s.inserts++
	s.rows = append(s.rows, m)
	return nil
}

func (s *fakeMetricsStore) List(context.Context, string, domain.ListOpts) ([]domain.PortfolioMetrics, error) {
	return s.rows, nil
}

func (s *fakeMetricsStore) Latest(context.Context, string) (domain.PortfolioMetrics, error) {
	if len(s.rows) == 0 {
		return domain.PortfolioMetrics{}, domain.ErrNotFound
	}
	return s.rows[len(s.rows)-1], nil
}

func (s *fakeMetricsStore) AverageExposure(context.Context, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}

type fakeFillStore struct {
	seen map[string]bool
	err  error
}

func (s *fakeFillStore) InsertBatch(_ context.Context, _ string, fills []domain.Fill) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	inserted := 0
	for _, f := range fills {
		if !s.seen[f.FillID] {
			s.seen[f.FillID] = true
			inserted++
		}
	}
	return inserted, nil
}

func (s *fakeFillStore) SumClosedPnL(context.Context, string, string, time.Time, time.Time) (float64, error) {
	return 0, nil
}

func (s *fakeFillStore) ListClosing(context.Context, string, int) ([]domain.Fill, error) {
	return nil, nil
}

func (s *fakeFillStore) List(context.Context, string, domain.ListOpts) ([]domain.Fill, error) {
	return nil, nil
}

func newTestLogger(clock *fakeClock, pos *fakePositionStore, met *fakeMetricsStore, fil *fakeFillStore) *Logger {
	policy := NewPolicy(60 * time.Second).WithClock(clock.now)
	return New(pos, met, fil, policy, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testSnapshot(clock *fakeClock) domain.AccountSnapshot {
	return domain.AccountSnapshot{
		Account:      "0xabc",
		Timestamp:    clock.t,
		AccountValue: 10000,
		Positions: []domain.Position{
			{Asset: "BTC", Side: domain.SideLong, Size: 1, EntryPrice: 100, Leverage: 5},
		},
	}
}

func TestRecordRateLimiting(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met, fil := &fakePositionStore{}, &fakeMetricsStore{}, &fakeFillStore{}
	l := newTestLogger(clock, pos, met, fil)
	ctx := context.Background()

	// First call always writes.
	res, err := l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	require.NoError(t, err)
	assert.True(t, res.MetricsWritten)
	assert.Equal(t, 1, res.PositionsWritten)

	// 30s later: inside the 60s interval, nothing written.
	clock.advance(30 * time.Second)
	res, err = l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	require.NoError(t, err)
	assert.False(t, res.MetricsWritten)
	assert.Equal(t, 0, res.PositionsWritten)
	assert.Equal(t, 1, met.inserts)

	// 90s after the first write: due again, even with unchanged values.
	clock.advance(60 * time.Second)
	res, err = l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	require.NoError(t, err)
	assert.True(t, res.MetricsWritten)
	assert.Equal(t, 2, met.inserts)
	assert.Equal(t, 2, pos.inserts)
}

func TestRecordFailureDoesNotAdvanceClock(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met, fil := &fakePositionStore{}, &fakeMetricsStore{err: errors.New("connection refused")}, &fakeFillStore{}
	l := newTestLogger(clock, pos, met, fil)
	ctx := context.Background()

	res, err := l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "metrics", perr.Artifact)
	assert.False(t, res.MetricsWritten)
	// Positions are independent and still went through.
	assert.Equal(t, 1, res.PositionsWritten)

	// The store recovers one second later: the metrics write retries
	// immediately because the failed attempt never advanced the clock.
	met.err = nil
	clock.advance(time.Second)
	res, err = l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	require.NoError(t, err)
	assert.True(t, res.MetricsWritten)
	// Positions did succeed before, so they are still rate limited.
	assert.Equal(t, 0, res.PositionsWritten)
	assert.Equal(t, 1, pos.inserts)
}

func ptr(v float64) *float64 { return &v }

func TestRecordMetricsRoundTrip(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met, fil := &fakePositionStore{}, &fakeMetricsStore{}, &fakeFillStore{}
	l := newTestLogger(clock, pos, met, fil)

	// Every field populated, with a mix of defined and undefined ratios, so a
	// write followed by a read returns the record field for field. Undefined
	// ratios must survive as nil, never come back as zero.
	written := domain.PortfolioMetrics{
		Timestamp:           clock.t,
		AccountValue:        10000,
		TotalPositionValue:  12000,
		TotalUnrealizedPnL:  -150.5,
		TotalExposure:       30000,
		AccountLeverage:     ptr(3),
		ExposureEquityRatio: ptr(3),
		MarginUtilization:   ptr(0.9),
		ConcentrationScore:  100,
		PortfolioHeat:       62.5,
		RiskAdjustedReturn:  nil,
		FreeMargin:          1000,
	}

	res, err := l.Record(context.Background(), testSnapshot(clock), written, nil)
	require.NoError(t, err)
	require.True(t, res.MetricsWritten)

	latest, err := met.Latest(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, written, latest)

	rows, err := met.List(context.Background(), "0xabc", domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, written, rows[0])
	assert.Nil(t, rows[0].RiskAdjustedReturn)
	require.NotNil(t, rows[0].MarginUtilization)
	assert.Equal(t, 0.9, *rows[0].MarginUtilization)
}

func TestRecordFillDedup(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met, fil := &fakePositionStore{}, &fakeMetricsStore{}, &fakeFillStore{}
	l := newTestLogger(clock, pos, met, fil)
	ctx := context.Background()

	fills := []domain.Fill{
		{FillID: "f-1", Asset: "BTC", Side: domain.SideLong, Size: 1, Price: 100},
		{FillID: "f-2", Asset: "BTC", Side: domain.SideLong, Size: 2, Price: 101},
	}
	res, err := l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, fills)
	require.NoError(t, err)
	assert.Equal(t, 2, res.FillsInserted)

	// The feed redelivers f-2 plus one new fill; only the new one lands.
	clock.advance(5 * time.Second)
	redelivered := []domain.Fill{
		{FillID: "f-2", Asset: "BTC", Side: domain.SideLong, Size: 2, Price: 101},
		{FillID: "f-3", Asset: "ETH", Side: domain.SideShort, Size: 1, Price: 2000},
	}
	res, err = l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, redelivered)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FillsInserted)
	assert.Equal(t, 1, res.FillsSkipped)
}

func TestRecordFillsBypassRateLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met, fil := &fakePositionStore{}, &fakeMetricsStore{}, &fakeFillStore{}
	l := newTestLogger(clock, pos, met, fil)
	ctx := context.Background()

	_, err := l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, nil)
	require.NoError(t, err)

	// Ten seconds later metrics are throttled but the fill still lands.
	clock.advance(10 * time.Second)
	res, err := l.Record(ctx, testSnapshot(clock), domain.PortfolioMetrics{}, []domain.Fill{
		{FillID: "f-9", Asset: "SOL", Side: domain.SideLong, Size: 5, Price: 30},
	})
	require.NoError(t, err)
	assert.False(t, res.MetricsWritten)
	assert.Equal(t, 1, res.FillsInserted)
}

func TestRecordFillFailureSurfaced(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	pos, met := &fakePositionStore{}, &fakeMetricsStore{}
	fil := &fakeFillStore{err: errors.New("write rejected")}
	l := newTestLogger(clock, pos, met, fil)

	_, err := l.Record(context.Background(), testSnapshot(clock), domain.PortfolioMetrics{}, []domain.Fill{
		{FillID: "f-1"},
	})
	var perr *domain.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "fills", perr.Artifact)
}

func TestPolicyIndependentAccounts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPolicy(60 * time.Second).WithClock(clock.now)

	assert.True(t, p.ShouldWrite("0xaaa", ArtifactMetrics))
	p.MarkWritten("0xaaa", ArtifactMetrics)

	assert.False(t, p.ShouldWrite("0xaaa", ArtifactMetrics))
	assert.True(t, p.ShouldWrite("0xbbb", ArtifactMetrics))
	assert.True(t, p.ShouldWrite("0xaaa", ArtifactPositions))
}
