package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache[V any](t *testing.T, ttl time.Duration) (*Cache[V], *testClock) {
	clock := &testClock{now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := New[V](ttl, WithClock(clock.Now))
	t.Cleanup(c.Close)
	return c, clock
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache[string](t, 5*time.Minute)

	c.Set("key1", "value1")

	val, ok := c.Get("key1")
	if !ok {
		t.Error("Expected to find key1")
	}
	if val != "value1" {
		t.Errorf("Expected value1, got %v", val)
	}

	if _, ok = c.Get("nonexistent"); ok {
		t.Error("Should not find nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c, clock := newTestCache[string](t, time.Minute)

	c.Set("expire", "value")
	if _, ok := c.Get("expire"); !ok {
		t.Error("Key should exist immediately after setting")
	}

	clock.Advance(time.Minute)
	if _, ok := c.Get("expire"); ok {
		t.Error("Key should have expired")
	}
}

func TestCache_SetWithTTL(t *testing.T) {
	c, clock := newTestCache[int](t, time.Hour)

	c.SetWithTTL("shortlived", 1, 100*time.Millisecond)
	if _, ok := c.Get("shortlived"); !ok {
		t.Error("Key should exist")
	}

	clock.Advance(150 * time.Millisecond)
	if _, ok := c.Get("shortlived"); ok {
		t.Error("Key should have expired with custom TTL")
	}
}

func TestCache_SetIfAbsent(t *testing.T) {
	c, clock := newTestCache[string](t, time.Minute)

	if !c.SetIfAbsent("alert", "first") {
		t.Error("First SetIfAbsent should store")
	}
	if c.SetIfAbsent("alert", "second") {
		t.Error("Second SetIfAbsent should not store")
	}
	if val, _ := c.Get("alert"); val != "first" {
		t.Errorf("Expected first, got %v", val)
	}

	clock.Advance(time.Minute)
	if !c.SetIfAbsent("alert", "third") {
		t.Error("SetIfAbsent should store over an expired entry")
	}
}

func TestCache_SetIfAbsentConcurrent(t *testing.T) {
	c, _ := newTestCache[int](t, time.Minute)

	var stored atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if c.SetIfAbsent("once", n) {
				stored.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if stored.Load() != 1 {
		t.Errorf("Expected exactly one store, got %d", stored.Load())
	}
}

func TestCache_Delete(t *testing.T) {
	c, _ := newTestCache[string](t, 5*time.Minute)

	c.Set("delete_me", "value")
	c.Delete("delete_me")

	if _, ok := c.Get("delete_me"); ok {
		t.Error("Key should not exist after deletion")
	}
}

func TestCache_Clear(t *testing.T) {
	c, _ := newTestCache[string](t, 5*time.Minute)

	c.Set("key1", "value1")
	c.Set("key2", "value2")
	c.Set("key3", "value3")

	if c.Size() != 3 {
		t.Errorf("Expected size 3, got %d", c.Size())
	}

	c.Clear()

	if c.Size() != 0 {
		t.Errorf("Expected size 0 after clear, got %d", c.Size())
	}
}

func TestCache_Sweep(t *testing.T) {
	c, clock := newTestCache[string](t, time.Minute)

	c.Set("old", "v")
	clock.Advance(30 * time.Second)
	c.Set("new", "v")
	clock.Advance(40 * time.Second)

	c.sweep()

	if c.Size() != 1 {
		t.Errorf("Expected size 1 after sweep, got %d", c.Size())
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("Unexpired key should survive the sweep")
	}
}

func TestCache_BackgroundSweep(t *testing.T) {
	c := New[string](time.Millisecond, WithCleanupInterval(5*time.Millisecond))
	defer c.Close()

	c.Set("gone", "v")

	deadline := time.Now().Add(2 * time.Second)
	for c.Size() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Size() != 0 {
		t.Error("Background sweep should remove expired entries")
	}

	c.Close() // idempotent
}

func TestCache_Concurrency(t *testing.T) {
	c, _ := newTestCache[int](t, 5*time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key_%d_%d", id, j%10)
				c.Set(key, j)
				c.Get(key)
				if j%25 == 0 {
					c.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()
}
