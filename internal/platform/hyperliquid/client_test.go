package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// infoServer routes /info requests by the "type" field of the request body.
func infoServer(t *testing.T, responses map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/info", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		body, ok := responses[req["type"].(string)]
		if !ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
}

func TestAccountSnapshot(t *testing.T) {
	srv := infoServer(t, map[string]string{
		"clearinghouseState": `{
			"assetPositions": [
				{"type": "oneWay", "position": {
					"coin": "BTC",
					"szi": "0.5",
					"entryPx": "60000",
					"positionValue": "30000",
					"unrealizedPnl": "150.5",
					"liquidationPx": "54000",
					"marginUsed": "3000",
					"leverage": {"type": "cross", "value": 10}
				}},
				{"type": "oneWay", "position": {
					"coin": "ETH",
					"szi": "-2",
					"entryPx": "3000",
					"positionValue": "6000",
					"unrealizedPnl": "-20",
					"liquidationPx": null,
					"marginUsed": "600",
					"leverage": {"type": "isolated", "value": 5}
				}},
				{"type": "oneWay", "position": {
					"coin": "DOGE", "szi": "0", "entryPx": "0",
					"positionValue": "0", "unrealizedPnl": "0",
					"marginUsed": "0", "leverage": {"type": "cross", "value": 1}
				}}
			],
			"marginSummary": {"accountValue": "10000", "totalNtlPos": "36000", "totalMarginUsed": "3600"},
			"withdrawable": "6400",
			"time": 1749380400000
		}`,
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	snap, err := c.AccountSnapshot(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", snap.Account)
	assert.Equal(t, time.UnixMilli(1749380400000).UTC(), snap.Timestamp)
	assert.InDelta(t, 10000.0, snap.AccountValue, 1e-9)
	assert.InDelta(t, 6400.0, snap.FreeMargin, 1e-9)

	// The flat DOGE position is dropped.
	require.Len(t, snap.Positions, 2)

	btc := snap.Positions[0]
	assert.Equal(t, domain.SideLong, btc.Side)
	assert.InDelta(t, 0.5, btc.Size, 1e-9)
	assert.InDelta(t, 60000.0, btc.EntryPrice, 1e-9)
	require.NotNil(t, btc.LiquidationPrice)
	assert.InDelta(t, 54000.0, *btc.LiquidationPrice, 1e-9)
	assert.InDelta(t, 10.0, btc.Leverage, 1e-9)

	eth := snap.Positions[1]
	assert.Equal(t, domain.SideShort, eth.Side)
	assert.InDelta(t, 2.0, eth.Size, 1e-9)
	assert.Nil(t, eth.LiquidationPrice)
}

func TestMarkPrices(t *testing.T) {
	srv := infoServer(t, map[string]string{
		"metaAndAssetCtxs": `[
			{"universe": [{"name": "BTC"}, {"name": "ETH"}, {"name": "SOL"}]},
			[{"markPx": "60100.5"}, {"markPx": "3010"}, {"markPx": "0"}]
		]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	marks, err := c.MarkPrices(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 60100.5, marks["BTC"], 1e-9)
	assert.InDelta(t, 3010.0, marks["ETH"], 1e-9)
	// Zero mark prices are treated as unavailable.
	_, ok := marks["SOL"]
	assert.False(t, ok)
}

func TestUserFills(t *testing.T) {
	srv := infoServer(t, map[string]string{
		"userFillsByTime": `[
			{"coin": "BTC", "px": "61000", "sz": "0.25", "side": "A",
			 "time": 1749380400000, "closedPnl": "250", "oid": 77, "tid": 900001, "dir": "Close Long"},
			{"coin": "ETH", "px": "3000", "sz": "1", "side": "B",
			 "time": 1749380460000, "closedPnl": "0", "oid": 78, "tid": 900002, "dir": "Open Long"}
		]`,
	})
	defer srv.Close()

	c := NewClient(srv.URL)
	fills, err := c.UserFills(context.Background(), "0xabc", time.UnixMilli(1749380000000))
	require.NoError(t, err)
	require.Len(t, fills, 2)

	assert.Equal(t, "900001", fills[0].FillID)
	assert.Equal(t, domain.SideShort, fills[0].Side)
	assert.True(t, fills[0].Closing())
	assert.InDelta(t, 250.0, fills[0].ClosedPnL, 1e-9)

	assert.Equal(t, domain.SideLong, fills[1].Side)
	assert.False(t, fills[1].Closing())
}

func TestDoInfoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limit exceeded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.MarkPrices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFloatStrAcceptsNumbersAndStrings(t *testing.T) {
	var raw rawPosition
	require.NoError(t, json.Unmarshal([]byte(
		`{"coin":"BTC","szi":-1.5,"entryPx":"60000","leverage":{"type":"cross","value":"20"}}`,
	), &raw))

	assert.InDelta(t, -1.5, float64(raw.Szi), 1e-9)
	assert.InDelta(t, 60000.0, float64(raw.EntryPx), 1e-9)
	assert.InDelta(t, 20.0, float64(raw.Leverage.Value), 1e-9)
}
