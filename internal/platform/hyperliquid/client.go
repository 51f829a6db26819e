// Package hyperliquid is the read-only client for the Hyperliquid perpetuals
// API: account snapshots, mark prices, and fill history over REST, plus a
// WebSocket fill feed.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Client is the REST client for the Hyperliquid info API. All queries are
// POSTs against the single /info endpoint with a typed JSON body.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new info API client. An empty baseURL selects the
// production endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// AccountSnapshot fetches the clearinghouse state for the given wallet and
// normalizes it into a domain snapshot. Positions with zero size are dropped.
func (c *Client) AccountSnapshot(ctx context.Context, wallet string) (domain.AccountSnapshot, error) {
	body, err := c.doInfo(ctx, map[string]string{
		"type": "clearinghouseState",
		"user": wallet,
	})
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("hyperliquid: clearinghouse state: %w", err)
	}

	var state clearinghouseState
	if err := json.Unmarshal(body, &state); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("hyperliquid: decode clearinghouse state: %w", err)
	}

	snap := domain.AccountSnapshot{
		Account:      wallet,
		Timestamp:    time.UnixMilli(state.Time).UTC(),
		AccountValue: float64(state.MarginSummary.AccountValue),
		FreeMargin:   float64(state.Withdrawable),
	}
	if state.Time == 0 {
		snap.Timestamp = time.Now().UTC()
	}

	for _, ap := range state.AssetPositions {
		p, ok := toPosition(ap.Position)
		if !ok {
			continue
		}
		snap.Positions = append(snap.Positions, p)
	}
	return snap, nil
}

// toPosition converts a raw exchange position. The sign of szi carries the
// direction; the domain type keeps magnitude and side separate.
func toPosition(raw rawPosition) (domain.Position, bool) {
	szi := float64(raw.Szi)
	if szi == 0 {
		return domain.Position{}, false
	}

	side := domain.SideLong
	size := szi
	if szi < 0 {
		side = domain.SideShort
		size = -szi
	}

	p := domain.Position{
		Asset:         raw.Coin,
		Side:          side,
		Size:          size,
		EntryPrice:    float64(raw.EntryPx),
		Leverage:      float64(raw.Leverage.Value),
		UnrealizedPnL: float64(raw.UnrealizedPnl),
		RealizedPnL:   float64(raw.RealizedPnl),
		MarginUsed:    float64(raw.MarginUsed),
	}
	if raw.LiquidationPx != nil {
		liq := float64(*raw.LiquidationPx)
		p.LiquidationPrice = &liq
	}
	return p, true
}

// MarkPrices fetches the current mark price for every listed perpetual. The
// response is a two-element array: the universe metadata and an index-aligned
// list of per-asset contexts.
func (c *Client) MarkPrices(ctx context.Context) (map[string]float64, error) {
	body, err := c.doInfo(ctx, map[string]string{"type": "metaAndAssetCtxs"})
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: meta and asset ctxs: %w", err)
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode meta response: %w", err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("hyperliquid: meta response has %d parts, want 2", len(parts))
	}

	var meta metaUniverse
	if err := json.Unmarshal(parts[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode universe: %w", err)
	}
	var ctxs []assetCtx
	if err := json.Unmarshal(parts[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode asset ctxs: %w", err)
	}

	marks := make(map[string]float64, len(meta.Universe))
	for i, u := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		if px := float64(ctxs[i].MarkPx); px > 0 {
			marks[u.Name] = px
		}
	}
	return marks, nil
}

// UserFills fetches fills for the wallet. With a non-zero since it queries
// the time-bounded endpoint; otherwise the exchange returns its recent-fills
// window. Results are normalized and deduplicable by trade id downstream.
func (c *Client) UserFills(ctx context.Context, wallet string, since time.Time) ([]domain.Fill, error) {
	var payload any
	if since.IsZero() {
		payload = map[string]string{"type": "userFills", "user": wallet}
	} else {
		payload = map[string]any{
			"type":      "userFillsByTime",
			"user":      wallet,
			"startTime": since.UnixMilli(),
		}
	}

	body, err := c.doInfo(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: user fills: %w", err)
	}

	var raws []rawFill
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode user fills: %w", err)
	}

	fills := make([]domain.Fill, 0, len(raws))
	for _, r := range raws {
		fills = append(fills, toFill(r))
	}
	return fills, nil
}

// toFill converts a raw fill. "B" means buy; anything else is a sell. The
// exchange trade id is globally unique and becomes the dedup key.
func toFill(r rawFill) domain.Fill {
	side := domain.SideShort
	if r.Side == "B" {
		side = domain.SideLong
	}
	return domain.Fill{
		FillID:    fmt.Sprintf("%d", r.Tid),
		OrderID:   fmt.Sprintf("%d", r.Oid),
		Asset:     r.Coin,
		Side:      side,
		Size:      float64(r.Sz),
		Price:     float64(r.Px),
		ClosedPnL: float64(r.ClosedPnl),
		Timestamp: time.UnixMilli(r.Time).UTC(),
	}
}

// doInfo builds, sends, and reads one POST against the /info endpoint.
func (c *Client) doInfo(ctx context.Context, payload any) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, checkStatus(resp.StatusCode, respBody)
	}
	return respBody, nil
}

// checkStatus maps non-2xx HTTP status codes to errors.
func checkStatus(statusCode int, body []byte) error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200]
	}
	switch statusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited: %s", msg)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return fmt.Errorf("bad request: %s", msg)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, msg)
	}
}
