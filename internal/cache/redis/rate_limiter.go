package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/exchangegate/internal/domain"
)

// slidingWindowLua keeps one sorted-set member per admitted request, scored by
// its time in microseconds. It returns {1, 0} when the request is admitted and
// {0, wait_us} otherwise, wait_us being the time until the oldest member
// leaves the window.
//
// KEYS[1] set key; ARGV[1] now_us; ARGV[2] window_us; ARGV[3] limit; ARGV[4] member
const slidingWindowLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, math.ceil(window / 1000))
  return {1, 0}
end
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {0, tonumber(oldest[2]) + window - now}
`

// minWait bounds how often a blocked caller polls Redis.
const minWait = 10 * time.Millisecond

// RateLimiter implements domain.RateLimiter across processes with a Redis
// sorted-set sliding window. The check-and-add runs atomically in Lua.
type RateLimiter struct {
	client        *Client
	limit         int
	window        time.Duration
	slidingWindow *redis.Script
}

// NewRateLimiter creates a RateLimiter admitting limit requests per window
// for each key.
func NewRateLimiter(c *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:        c,
		limit:         limit,
		window:        window,
		slidingWindow: redis.NewScript(slidingWindowLua),
	}
}

// Allow tries to consume a slot for key. When the window is full it returns
// false and the time until a slot is expected to free up.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now().UnixMicro()

	result, err := rl.slidingWindow.Run(
		ctx,
		rl.client.rdb,
		[]string{rl.client.key("ratelimit", key)},
		now,
		rl.window.Microseconds(),
		rl.limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: %w", key, err)
	}
	if len(result) < 2 {
		return false, 0, fmt.Errorf("redis: rate limit allow %s: unexpected result length %d", key, len(result))
	}

	return result[0] == 1, time.Duration(result[1]) * time.Microsecond, nil
}

// Acquire blocks until a slot for key is admitted or ctx is done.
func (rl *RateLimiter) Acquire(ctx context.Context, key string) error {
	for {
		allowed, wait, err := rl.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if wait < minWait {
			wait = minWait
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("redis: rate limit acquire %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}

var _ domain.RateLimiter = (*RateLimiter)(nil)
