package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

var testNow = time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubMetrics struct {
	latest domain.PortfolioMetrics
	err    error
	rows   []domain.PortfolioMetrics
}

func (s *stubMetrics) Latest(context.Context, string) (domain.PortfolioMetrics, error) {
	return s.latest, s.err
}

func (s *stubMetrics) List(context.Context, string, domain.ListOpts) ([]domain.PortfolioMetrics, error) {
	return s.rows, nil
}

type stubPositions struct {
	rows []domain.PositionRecord
}

func (s *stubPositions) List(context.Context, string, string, domain.ListOpts) ([]domain.PositionRecord, error) {
	return s.rows, nil
}

type stubReader struct {
	window domain.PnLWindow
	trades []domain.ClosedTrade
}

func (s *stubReader) PnLWindow(context.Context, string, time.Duration) (domain.PnLWindow, error) {
	return s.window, nil
}

func (s *stubReader) ClosedTrades(context.Context, string, int) ([]domain.ClosedTrade, error) {
	return s.trades, nil
}

func ptr(v float64) *float64 { return &v }

func TestRiskCurrent(t *testing.T) {
	lev := 3.0
	h := NewRiskHandler(&stubMetrics{latest: domain.PortfolioMetrics{
		Timestamp:         testNow,
		AccountValue:      10000,
		AccountLeverage:   &lev,
		MarginUtilization: ptr(0.3),
		PortfolioHeat:     42,
	}}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/risk/current?wallet=0xabc", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 10000.0, body["account_value"])
	assert.Equal(t, 3.0, body["account_leverage"])
	assert.Equal(t, 42.0, body["portfolio_heat"])
}

func TestRiskCurrentUndefinedRatiosRenderNull(t *testing.T) {
	h := NewRiskHandler(&stubMetrics{latest: domain.PortfolioMetrics{
		Timestamp:    testNow,
		AccountValue: -50,
	}}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/risk/current?wallet=0xabc", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	// Undefined ratios must be null, never 0.
	v, present := body["account_leverage"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Nil(t, body["margin_utilization"])
	assert.Nil(t, body["risk_adjusted_return"])
}

func TestRiskCurrentNotFound(t *testing.T) {
	h := NewRiskHandler(&stubMetrics{err: domain.ErrNotFound}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/risk/current?wallet=0xabc", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRiskCurrentMissingWallet(t *testing.T) {
	h := NewRiskHandler(&stubMetrics{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/risk/current", nil)
	rec := httptest.NewRecorder()
	h.Current(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPositionsLatestReturnsOnlyNewestTick(t *testing.T) {
	older := testNow.Add(-time.Minute)
	h := NewPositionHandler(&stubPositions{rows: []domain.PositionRecord{
		{Timestamp: testNow, Account: "0xabc", Position: domain.Position{Asset: "BTC", Side: domain.SideLong, Size: 1}},
		{Timestamp: testNow, Account: "0xabc", Position: domain.Position{Asset: "ETH", Side: domain.SideShort, Size: 2, LiquidationPrice: ptr(3500)}},
		{Timestamp: older, Account: "0xabc", Position: domain.Position{Asset: "BTC", Side: domain.SideLong, Size: 1}},
	}}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions?wallet=0xabc", nil)
	rec := httptest.NewRecorder()
	h.Latest(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body listPositionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Positions, 2)
	assert.Equal(t, "BTC", body.Positions[0].Asset)
	assert.Equal(t, "ETH", body.Positions[1].Asset)
}

func TestHistoryPnL(t *testing.T) {
	h := NewHistoryHandler(&stubMetrics{}, &stubPositions{}, &stubReader{
		window: domain.PnLWindow{Realized: 320.5, AvgExposure: 15000},
	}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/history/pnl?wallet=0xabc&window_hours=24", nil)
	rec := httptest.NewRecorder()
	h.PnL(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body pnlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 24, body.WindowHours)
	assert.InDelta(t, 320.5, body.RealizedPnL, 1e-9)
	assert.InDelta(t, 15000.0, body.AvgExposure, 1e-9)
}

func TestHistoryPnLBadWindow(t *testing.T) {
	h := NewHistoryHandler(&stubMetrics{}, &stubPositions{}, &stubReader{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/history/pnl?wallet=0xabc&window_hours=-5", nil)
	rec := httptest.NewRecorder()
	h.PnL(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryClosedTrades(t *testing.T) {
	h := NewHistoryHandler(&stubMetrics{}, &stubPositions{}, &stubReader{
		trades: []domain.ClosedTrade{
			{Timestamp: testNow, Asset: "BTC", Side: domain.SideShort, Size: 2, EntryPrice: 100, ExitPrice: 110, Profit: 20},
		},
	}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/trades/closed?wallet=0xabc&limit=10", nil)
	rec := httptest.NewRecorder()
	h.ClosedTrades(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body closedTradesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Trades, 1)
	assert.InDelta(t, 100.0, body.Trades[0].EntryPrice, 1e-9)
	assert.InDelta(t, 20.0, body.Trades[0].Profit, 1e-9)
}

type stubPrices struct {
	price float64
	ts    time.Time
	err   error
}

func (s *stubPrices) GetPrice(context.Context, string) (float64, time.Time, error) {
	return s.price, s.ts, s.err
}

func TestPricesGet(t *testing.T) {
	h := NewPriceHandler(&stubPrices{price: 60123.5, ts: testNow}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/prices?asset=BTC", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC", body.Asset)
	assert.InDelta(t, 60123.5, body.Price, 1e-9)
	assert.Equal(t, testNow, body.Timestamp)
}

func TestPricesGetUnknownAsset(t *testing.T) {
	h := NewPriceHandler(&stubPrices{err: domain.ErrNotFound}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/prices?asset=DOGE", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPricesGetMissingAsset(t *testing.T) {
	h := NewPriceHandler(&stubPrices{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/prices", nil)
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler("test", map[string]HealthCheckFunc{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return context.DeadlineExceeded },
	})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Dependencies["postgres"])
}

func TestParseListOptsWindow(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/x?limit=1000&offset=5&since=2025-06-01T00:00:00Z&until=2025-06-08T00:00:00Z", nil)

	opts := parseListOpts(req)
	assert.Equal(t, 500, opts.Limit) // capped
	assert.Equal(t, 5, opts.Offset)
	require.NotNil(t, opts.Since)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *opts.Since)
	require.NotNil(t, opts.Until)
}
