// Package ratelimit gates per-user send rates with a sliding window: at most
// K accepted actions in the trailing window W. The Redis-backed limiter keeps
// one window per user across the whole fleet; the in-process limiter is only
// suitable for single-instance deployments, since a user spread over several
// gateways would get K actions per instance instead of K total.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow drops window entries older than now-W, then records now and
	// allows if fewer than K remain, otherwise denies without recording.
	Allow(ctx context.Context, userId string) (bool, error)
}

// slidingWindowScript removes expired entries, counts the remainder and
// conditionally records the new action, all in one atomic script.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current < limit then
		local counter = redis.call('INCR', key .. ':counter')
		redis.call('ZADD', key, now, now .. ':' .. counter)
		local expire_seconds = math.ceil(window_ms / 1000)
		redis.call('EXPIRE', key, expire_seconds)
		redis.call('EXPIRE', key .. ':counter', expire_seconds)
		return 1
	end

	return 0
`)

type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "ratelimit:",
		limit:  limit,
		window: window,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, userId string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-l.window)

	allowed, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + userId},
		now.UnixMilli(), windowStart.UnixMilli(), l.limit, l.window.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}

	return allowed == 1, nil
}

// Reset clears the window for a user.
func (l *RedisLimiter) Reset(ctx context.Context, userId string) error {
	return l.client.Del(ctx, l.prefix+userId, l.prefix+userId+":counter").Err()
}
