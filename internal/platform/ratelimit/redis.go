package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// RedisLimiter enforces a fixed-window quota shared across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int64
	window time.Duration
	prefix string
}

// NewRedisLimiter allows limit requests per window for each key.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window, prefix: "rl:"}, nil
}

// Allow implements Limiter using INCR with an expiry set on the first hit of each window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}

	values, err := fixedWindowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis: %w", err)
	}
	if len(values) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", values)
	}
	count, _ := values[0].(int64)
	pttl, _ := values[1].(int64)

	if count <= l.limit {
		return Decision{Allowed: true}, nil
	}
	retry := time.Duration(pttl) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}
