package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each asset's
// mark price is stored at "mark:{asset}" with fields "price" and "ts" (Unix
// nanosecond timestamp), so a dashboard can tell a fresh price from a stale
// one.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func markKey(asset string) string {
	return "mark:" + asset
}

// SetPrices stores the latest mark prices for all assets in one pipeline
// round trip. All entries share the snapshot timestamp.
func (pc *PriceCache) SetPrices(ctx context.Context, prices map[string]float64, ts time.Time) error {
	if len(prices) == 0 {
		return nil
	}

	tsStr := strconv.FormatInt(ts.UnixNano(), 10)
	pipe := pc.rdb.Pipeline()
	for asset, price := range prices {
		pipe.HSet(ctx, markKey(asset), map[string]interface{}{
			"price": strconv.FormatFloat(price, 'f', -1, 64),
			"ts":    tsStr,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set mark prices: %w", err)
	}
	return nil
}

// GetPrice retrieves the latest mark price and its timestamp for an asset.
// It returns domain.ErrNotFound when no price has been cached.
func (pc *PriceCache) GetPrice(ctx context.Context, asset string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, markKey(asset)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get mark price %s: %w", asset, err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark price %s: %w", asset, err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse mark ts %s: %w", asset, err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
