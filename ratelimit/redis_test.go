package ratelimit

import (
	"os"
	"testing"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/go-redis/redis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to REDIS_ADDR or skips the test
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping().Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisRateLimiter(t *testing.T) {
	client := newTestRedis(t)
	clock := newFakeClock()

	config := &engine.RateLimitConfig{
		Enabled:     true,
		Backend:     "redis",
		MaxRequests: 3,
		WindowMs:    1000,
		KeyPrefix:   "test:" + uuid.NewString() + ":",
	}
	rl := NewRateLimiter(config, client, Options{Clock: clock.Now})
	defer rl.Close()
	defer rl.ClearAll()
	require.IsType(t, &redisRateLimiter{}, rl)

	for i := 2; i >= 0; i-- {
		result := rl.CheckLimit("x")
		require.True(t, result.Allowed)
		assert.Equal(t, i, result.RemainingRequests)
		clock.Advance(10 * time.Millisecond)
	}

	denied := rl.CheckLimit("x")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 970*time.Millisecond, denied.RetryAfter)

	clock.Advance(time.Second)
	assert.True(t, rl.CheckLimit("x").Allowed)

	rl.CheckLimit("y")
	rl.ClearLimit("x")
	assert.Equal(t, 2, rl.CheckLimit("x").RemainingRequests)

	rl.ClearAll()
	keys, err := client.Keys(config.KeyPrefix + "*").Result()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  0,
	})
	defer client.Close()

	config := &engine.RateLimitConfig{Enabled: true, Backend: "redis", MaxRequests: 1}
	rl := NewRateLimiter(config, client)

	for i := 0; i < 3; i++ {
		result := rl.CheckLimit("x")
		assert.True(t, result.Allowed)
		assert.Equal(t, -1, result.RemainingRequests)
	}
	assert.NotPanics(t, func() {
		rl.ClearLimit("x")
		rl.ClearAll()
	})
}
