package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript refills and takes one token atomically.
// KEYS[1] bucket key; ARGV now_ms, capacity, refill_interval_ms, ttl_ms.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local interval_ms = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
	tokens = capacity
	last_refill = now_ms
end

if interval_ms > 0 then
	local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
	if intervals > 0 then
		tokens = math.min(capacity, tokens + intervals)
		last_refill = last_refill + intervals * interval_ms
	end
end

local allowed = 0
local retry_after = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_after = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('PEXPIRE', key, ttl_ms)
return {allowed, tokens, retry_after}
`)

// RedisLimiter keeps token buckets in Redis so every instance behind a load
// balancer draws from the same budget.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a RedisLimiter storing buckets under prefix.
func NewRedisLimiter(client redis.Scripter, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, policy Policy, key string) (Decision, error) {
	interval := policy.Window / time.Duration(max(policy.Limit, 1))

	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{l.prefix + ":" + key},
		l.now().UnixMilli(),
		policy.Limit,
		interval.Milliseconds(),
		policy.Window.Milliseconds(),
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("run token bucket: %w", err)
	}
	return parseBucketResult(res)
}

func parseBucketResult(res any) (Decision, error) {
	arr, ok := res.([]any)
	if !ok || len(arr) != 3 {
		return Decision{}, fmt.Errorf("unexpected token bucket result %#v", res)
	}

	allowed, err := asInt64(arr[0])
	if err != nil {
		return Decision{}, err
	}
	remaining, err := asInt64(arr[1])
	if err != nil {
		return Decision{}, err
	}
	retryMs, err := asInt64(arr[2])
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

func asInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case string:
		return strconv.ParseInt(t, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected token bucket value %#v", v)
	}
}
