// Package ratelimit bounds how often a named operation may run. Identifiers
// are free-form ("contacts:create:<owner>", "POST:/api/v1/alerts:10.0.0.1")
// and each one gets its own sliding window.
package ratelimit

import (
	"net"
	"strings"
	"sync"
	"time"

	"github.com/arturoeanton/witness-runtime/engine"
	"github.com/arturoeanton/witness-runtime/logger"
	"github.com/go-redis/redis"
)

// Defaults used when the config leaves a field at zero
const (
	DefaultMaxRequests = 10
	DefaultWindow      = 60 * time.Second
)

// Result is the outcome of one CheckLimit call. RemainingRequests is -1 when
// the limiter cannot tell (disabled, or its backend is unreachable).
type Result struct {
	Allowed           bool          `json:"allowed"`
	RemainingRequests int           `json:"remaining_requests"`
	RetryAfter        time.Duration `json:"retry_after"` // zero when allowed
}

// RateLimiter interface defines the rate limiting operations
type RateLimiter interface {
	// CheckLimit records an attempt for identifier and reports whether it is allowed
	CheckLimit(identifier string) Result

	// ClearLimit forgets the history of one identifier
	ClearLimit(identifier string)

	// ClearAll forgets every identifier
	ClearAll()

	// Limit returns the ceiling per window
	Limit() int

	// Close cleans up resources
	Close()
}

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

// Options overrides parts of the limiter built by NewRateLimiter
type Options struct {
	Clock Clock
}

// NewRateLimiter creates a new rate limiter based on configuration
func NewRateLimiter(config *engine.RateLimitConfig, redisClient *redis.Client, opts ...Options) RateLimiter {
	if !config.Enabled {
		return &noopRateLimiter{}
	}

	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}

	switch config.Backend {
	case "redis":
		if redisClient == nil {
			logger.Warn("Redis client not available, falling back to memory backend", nil)
			return newMemoryRateLimiter(config, o.Clock)
		}
		return newRedisRateLimiter(config, redisClient, o.Clock)
	default:
		return newMemoryRateLimiter(config, o.Clock)
	}
}

func limitsFrom(config *engine.RateLimitConfig) (int, time.Duration) {
	maxRequests := config.MaxRequests
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	window := time.Duration(config.WindowMs) * time.Millisecond
	if window <= 0 {
		window = DefaultWindow
	}
	return maxRequests, window
}

// noopRateLimiter is used when rate limiting is disabled
type noopRateLimiter struct{}

func (n *noopRateLimiter) CheckLimit(identifier string) Result {
	return Result{Allowed: true, RemainingRequests: -1}
}

func (n *noopRateLimiter) ClearLimit(identifier string) {}

func (n *noopRateLimiter) ClearAll() {}

func (n *noopRateLimiter) Limit() int { return 0 }

func (n *noopRateLimiter) Close() {}

// memoryRateLimiter keeps admitted timestamps per identifier in process memory.
// It offers no cross-process guarantee and resets on restart.
type memoryRateLimiter struct {
	maxRequests int
	window      time.Duration
	now         Clock

	mu      sync.Mutex
	windows map[string][]int64 // identifier -> admitted timestamps in ms, oldest first

	cleanupTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

func newMemoryRateLimiter(config *engine.RateLimitConfig, clock Clock) *memoryRateLimiter {
	maxRequests, window := limitsFrom(config)
	rl := &memoryRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         clock,
		windows:     make(map[string][]int64),
		done:        make(chan struct{}),
	}

	// Start cleanup routine
	cleanupInterval := time.Duration(config.CleanupInterval) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)
	go rl.cleanup()

	return rl
}

func (m *memoryRateLimiter) CheckLimit(identifier string) Result {
	now := m.now().UnixMilli()
	windowMs := m.window.Milliseconds()
	windowStart := now - windowMs

	m.mu.Lock()
	defer m.mu.Unlock()

	timestamps := prune(m.windows[identifier], windowStart)

	if len(timestamps) >= m.maxRequests {
		m.store(identifier, timestamps)
		retryAfter := time.Duration(timestamps[0]+windowMs-now) * time.Millisecond
		return Result{Allowed: false, RemainingRequests: 0, RetryAfter: retryAfter}
	}

	timestamps = append(timestamps, now)
	m.windows[identifier] = timestamps

	return Result{Allowed: true, RemainingRequests: m.maxRequests - len(timestamps)}
}

// prune drops every timestamp <= windowStart. The sequence is ordered, so
// the kept part is a suffix.
func prune(timestamps []int64, windowStart int64) []int64 {
	i := 0
	for i < len(timestamps) && timestamps[i] <= windowStart {
		i++
	}
	if i == 0 {
		return timestamps
	}
	kept := make([]int64, len(timestamps)-i, len(timestamps)-i+1)
	copy(kept, timestamps[i:])
	return kept
}

func (m *memoryRateLimiter) store(identifier string, timestamps []int64) {
	if len(timestamps) == 0 {
		delete(m.windows, identifier)
		return
	}
	m.windows[identifier] = timestamps
}

func (m *memoryRateLimiter) ClearLimit(identifier string) {
	m.mu.Lock()
	delete(m.windows, identifier)
	m.mu.Unlock()
}

func (m *memoryRateLimiter) ClearAll() {
	m.mu.Lock()
	m.windows = make(map[string][]int64)
	m.mu.Unlock()
}

func (m *memoryRateLimiter) Limit() int {
	return m.maxRequests
}

func (m *memoryRateLimiter) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.cleanupTicker.Stop()
	})
}

// size returns the number of tracked identifiers
func (m *memoryRateLimiter) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

func (m *memoryRateLimiter) cleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.cleanupWindows()
		case <-m.done:
			return
		}
	}
}

// cleanupWindows drops identifiers whose whole history left the window
func (m *memoryRateLimiter) cleanupWindows() {
	windowStart := m.now().UnixMilli() - m.window.Milliseconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, timestamps := range m.windows {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1] <= windowStart {
			delete(m.windows, id)
		}
	}

	logger.Debugf("Rate limiter cleanup: %d identifiers", len(m.windows))
}

// Helper functions

// IsIPExcluded checks if an IP is in the exclusion list
func IsIPExcluded(ip string, excludedIPs string) bool {
	if excludedIPs == "" {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, excluded := range strings.Split(excludedIPs, ",") {
		excluded = strings.TrimSpace(excluded)
		if excluded == "" {
			continue
		}

		// Check for CIDR notation
		if strings.Contains(excluded, "/") {
			_, ipNet, err := net.ParseCIDR(excluded)
			if err == nil && ipNet.Contains(clientIP) {
				return true
			}
		} else if excludedIP := net.ParseIP(excluded); excludedIP != nil && excludedIP.Equal(clientIP) {
			return true
		}
	}

	return false
}

// IsPathExcluded checks if a path is in the exclusion list
func IsPathExcluded(path string, excludedPaths string) bool {
	if excludedPaths == "" {
		return false
	}

	for _, excluded := range strings.Split(excludedPaths, ",") {
		excluded = strings.TrimSpace(excluded)
		if excluded != "" && strings.HasPrefix(path, excluded) {
			return true
		}
	}

	return false
}
