// Package cache provides a thread-safe in-memory cache with per-entry TTL.
package cache

import (
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired entries are swept
const DefaultCleanupInterval = time.Minute

// Item is a cached value with its expiration time
type Item[V any] struct {
	Value      V
	Expiration time.Time
}

func (i *Item[V]) expired(now time.Time) bool {
	return !now.Before(i.Expiration)
}

// Cache is a thread-safe in-memory cache. Expired entries are invisible to
// readers immediately and removed by a background sweep until Close.
type Cache[V any] struct {
	items map[string]*Item[V]
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Option customizes a cache
type Option func(*options)

type options struct {
	cleanupInterval time.Duration
	now             func() time.Time
}

// WithCleanupInterval changes the sweep interval
func WithCleanupInterval(d time.Duration) Option {
	return func(o *options) { o.cleanupInterval = d }
}

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a cache with the given default TTL
func New[V any](ttl time.Duration, opts ...Option) *Cache[V] {
	o := options{cleanupInterval: DefaultCleanupInterval, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Cache[V]{
		items: make(map[string]*Item[V]),
		ttl:   ttl,
		now:   o.now,
		done:  make(chan struct{}),
	}

	go c.cleanupExpired(o.cleanupInterval)

	return c
}

// Get returns the value for key if present and not expired
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.expired(c.now()) {
		var zero V
		return zero, false
	}

	return item.Value, true
}

// Set stores a value with the default TTL
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL stores a value with a specific TTL
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &Item[V]{
		Value:      value,
		Expiration: c.now().Add(ttl),
	}
}

// SetIfAbsent stores value only when key is missing or expired. It reports
// whether the value was stored; check and store happen under one lock.
func (c *Cache[V]) SetIfAbsent(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if item, exists := c.items[key]; exists && !item.expired(now) {
		return false
	}
	c.items[key] = &Item[V]{
		Value:      value,
		Expiration: now.Add(c.ttl),
	}
	return true
}

// Delete removes a key
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Clear removes every key
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*Item[V])
}

// Size returns the number of stored entries, including expired ones not yet swept
func (c *Cache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the background sweep. The cache stays usable.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// cleanupExpired removes expired entries periodically
func (c *Cache[V]) cleanupExpired(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache[V]) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if item.expired(now) {
			delete(c.items, key)
		}
	}
}
