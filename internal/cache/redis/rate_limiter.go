package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// waitPollInterval is the upper bound on how long Wait sleeps between
// attempts; shorter windows poll faster.
const waitPollInterval = 50 * time.Millisecond

// RateLimiter implements domain.RateLimiter as a sliding window over a Redis
// sorted set, updated atomically by a Lua script. Several processes sharing
// one Redis therefore share one budget per key.
type RateLimiter struct {
	c      *Client
	script *redis.Script
	token  func() string
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		c:      c,
		script: redis.NewScript(slidingWindowLua),
		token:  uuid.NewString,
	}
}

// Allow records one request for key and reports whether it fits within limit
// requests per window. Rejected requests are not counted.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	if window <= 0 {
		return false, fmt.Errorf("redis: rate limit %s: %w: window must be positive", key, domain.ErrInvalidArgument)
	}

	res, err := rl.script.Run(ctx, rl.c.rdb,
		[]string{rl.c.Key("ratelimit", key)},
		time.Now().UnixMicro(),
		window.Microseconds(),
		limit,
		rl.token(),
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected reply length %d", key, len(res))
	}
	return res[0] == 1, nil
}

// Wait blocks until Allow admits a request for key or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	interval := min(waitPollInterval, max(window/limitOrOne(limit), time.Millisecond))
	for {
		ok, err := rl.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit wait %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

func limitOrOne(limit int) time.Duration {
	if limit < 1 {
		return 1
	}
	return time.Duration(limit)
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
