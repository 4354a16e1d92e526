// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package tvbox

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/reelgate/internal/redisclient"
)

// fixedWindowScript increments the counter and starts its window on the
// first hit in one atomic step.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter is a fixed-window limiter shared by every instance using the
// same Redis. Calls run through the client's circuit breaker; any failure
// is returned and callers reject the request.
type RedisLimiter struct {
	c      *redisclient.Client
	window time.Duration
}

// NewRedisLimiter creates a limiter with the given window, one minute if unset.
func NewRedisLimiter(c *redisclient.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{c: c, window: window}
}

func (l *RedisLimiter) key(key string) string {
	return l.c.Key("tvbox", "rl", key)
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Result, error) {
	vals, err := redisclient.Do(l.c, func(rdb redis.UniversalClient) ([]int64, error) {
		return fixedWindowScript.Run(ctx, rdb, []string{l.key(key)}, l.window.Milliseconds()).Int64Slice()
	})
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("rate limit %s: unexpected script reply %v", key, vals)
	}
	count := int(vals[0])
	resetIn := time.Duration(vals[1]) * time.Millisecond
	if resetIn < 0 {
		resetIn = l.window
	}
	return Result{Allowed: count <= limit, Count: count, Limit: limit, ResetIn: resetIn}, nil
}

// Reset implements Limiter.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	err := l.c.Exec(func(rdb redis.UniversalClient) error {
		return rdb.Del(ctx, l.key(key)).Err()
	})
	if err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}
