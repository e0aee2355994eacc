package ratelimit

import (
	"fmt"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
)

// slidingWindowScript runs the prune, count and append steps atomically so
// that several processes can share one window per identifier.
//
// KEYS[1] window key; ARGV: now ms, window ms, limit, unique member.
// Returns {allowed, remaining, retry after ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)

if count >= limit then
	local retry = window
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	if oldest[2] then
		retry = tonumber(oldest[2]) + window - now
	end
	return {0, 0, retry}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, limit - count - 1, 0}
`)

// redisRateLimiter implements Redis-based rate limiting
type redisRateLimiter struct {
	maxRequests int
	window      time.Duration
	keyPrefix   string
	now         Clock
	redisClient *redis.Client
}

func newRedisRateLimiter(config *engine.RateLimitConfig, redisClient *redis.Client, clock Clock) *redisRateLimiter {
	maxRequests, window := limitsFrom(config)
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "ratelimit:"
	}
	return &redisRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		keyPrefix:   prefix,
		now:         clock,
		redisClient: redisClient,
	}
}

func (r *redisRateLimiter) key(identifier string) string {
	return r.keyPrefix + identifier
}

func (r *redisRateLimiter) CheckLimit(identifier string) Result {
	now := r.now().UnixMilli()

	raw, err := slidingWindowScript.Run(r.redisClient, []string{r.key(identifier)},
		now, r.window.Milliseconds(), r.maxRequests, uuid.NewString()).Result()
	if err != nil {
		logger.Error("Redis rate limit error", map[string]any{"identifier": identifier}, err)
		return Result{Allowed: true, RemainingRequests: -1} // Fail open
	}

	values, err := parseScriptResult(raw)
	if err != nil {
		logger.Error("Redis rate limit error", map[string]any{"identifier": identifier}, err)
		return Result{Allowed: true, RemainingRequests: -1}
	}

	if values[0] == 0 {
		return Result{Allowed: false, RemainingRequests: 0, RetryAfter: time.Duration(values[2]) * time.Millisecond}
	}
	return Result{Allowed: true, RemainingRequests: int(values[1])}
}

func parseScriptResult(raw interface{}) ([3]int64, error) {
	var out [3]int64
	items, ok := raw.([]interface{})
	if !ok || len(items) != 3 {
		return out, fmt.Errorf("unexpected script result %T", raw)
	}
	for i, item := range items {
		n, ok := item.(int64)
		if !ok {
			return out, fmt.Errorf("unexpected script value %T at %d", item, i)
		}
		out[i] = n
	}
	return out, nil
}

func (r *redisRateLimiter) ClearLimit(identifier string) {
	if err := r.redisClient.Del(r.key(identifier)).Err(); err != nil {
		logger.Error("Redis rate limit reset failed", nil, err)
	}
}

// ClearAll deletes every key under the limiter prefix
func (r *redisRateLimiter) ClearAll() {
	var cursor uint64
	for {
		keys, next, err := r.redisClient.Scan(cursor, r.keyPrefix+"*", 100).Result()
		if err != nil {
			logger.Error("Redis rate limit scan failed", nil, err)
			return
		}
		if len(keys) > 0 {
			if err := r.redisClient.Del(keys...).Err(); err != nil {
				logger.Error("Redis rate limit reset failed", nil, err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (r *redisRateLimiter) Limit() int {
	return r.maxRequests
}

func (r *redisRateLimiter) Close() {
	// Redis client is managed by the config repository
}
