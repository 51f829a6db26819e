package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

// AlertLimiter implements domain.AlertLimiter using SETNX with a TTL. The
// first Allow for a key wins and starts the cooldown; repeats inside the TTL
// are suppressed. Because the state lives in Redis, the cooldown survives
// process restarts and is shared across instances watching the same wallet.
type AlertLimiter struct {
	rdb *redis.Client
}

// NewAlertLimiter creates an AlertLimiter backed by the given Client.
func NewAlertLimiter(c *Client) *AlertLimiter {
	return &AlertLimiter{rdb: c.Underlying()}
}

func cooldownKey(key string) string {
	return "alertcd:" + key
}

// Allow reports whether an alert for the given key may fire now. A true
// result claims the cooldown window atomically.
func (al *AlertLimiter) Allow(ctx context.Context, key string, cooldown time.Duration) (bool, error) {
	ok, err := al.rdb.SetNX(ctx, cooldownKey(key), "1", cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("redis: alert cooldown %s: %w", key, err)
	}
	return ok, nil
}

// Compile-time interface check.
var _ domain.AlertLimiter = (*AlertLimiter)(nil)
