package ratelimit

import (
	"testing"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_WindowNeverExceedsCeiling(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("in-window count stays within the ceiling", prop.ForAll(
		func(maxRequests int, steps []int64) bool {
			clock := newFakeClock()
			config := &engine.RateLimitConfig{Enabled: true, MaxRequests: maxRequests, WindowMs: 1000}
			rl := newMemoryRateLimiter(config, clock.Now)
			defer rl.Close()

			for _, step := range steps {
				clock.Advance(time.Duration(step) * time.Millisecond)
				result := rl.CheckLimit("p")

				rl.mu.Lock()
				count := len(rl.windows["p"])
				rl.mu.Unlock()

				if count > maxRequests {
					return false
				}
				if result.Allowed && result.RemainingRequests != maxRequests-count {
					return false
				}
				if !result.Allowed && (count != maxRequests || result.RetryAfter <= 0) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 15),
		gen.SliceOf(gen.Int64Range(0, 400)),
	))

	properties.Property("a full window later the first call is allowed", prop.ForAll(
		func(calls int) bool {
			clock := newFakeClock()
			config := &engine.RateLimitConfig{Enabled: true, MaxRequests: 10, WindowMs: 60000}
			rl := newMemoryRateLimiter(config, clock.Now)
			defer rl.Close()

			for i := 0; i < calls; i++ {
				rl.CheckLimit("q")
			}
			clock.Advance(60 * time.Second)
			result := rl.CheckLimit("q")
			return result.Allowed && result.RemainingRequests == 9
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
