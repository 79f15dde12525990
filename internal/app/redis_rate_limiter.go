/**
 * @description
 * Redis-backed fixed-window rate limiter for write endpoints. Limits are
 * tracked per scope and subject (for example scope "create_account",
 * subject the caller's account id) so one noisy panel cannot exhaust the
 * provisioning pipeline for everyone else.
 *
 * A nil limiter or nil client disables limiting, which keeps single-node
 * deployments without Redis working.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client and server-side scripting.
 */
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "reseller:rate_limit"

// rateLimitScript atomically increments the window counter, arms the window
// TTL on first hit and returns the current count plus the remaining TTL.
var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements fixed-window rate limiting on top of Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
}

// NewRedisRateLimiter creates a limiter using the provided Redis client.
// A nil client yields a limiter that allows everything.
func NewRedisRateLimiter(client redis.UniversalClient) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// ConsumeRateLimit counts one hit for the subject inside the scope's current
// window and reports the running count together with the seconds remaining
// until the window resets. Callers compare the count against their limit and
// use the retry-after value for the 429 response header.
func (l *RedisRateLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, window time.Duration) (int64, int64, error) {
	if l == nil || l.client == nil {
		return 0, 0, nil
	}

	key := fmt.Sprintf("%s:%s:%s", rateLimitKeyPrefix, scope, subject)
	res, err := rateLimitScript.Run(ctx, l.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	count, ok := res[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit script returned non-integer count")
	}
	ttlMillis, ok := res[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("rate limit script returned non-integer ttl")
	}

	retryAfter := (ttlMillis + 999) / 1000
	if retryAfter < 1 {
		retryAfter = 1
	}
	return count, retryAfter, nil
}
