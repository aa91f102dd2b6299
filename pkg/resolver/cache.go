package resolver

import (
	"sync"
	"time"
)

// Clock is injected so cache expiry can be tested without real sleeps.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	address string
	expiry  time.Time
}

// Cache is the process-local, TTL-bounded hostname-to-address cache.
// It is unsynchronized against the network — a concurrent
// refresh may race and perform redundant resolution work, which is
// acceptable — but its own map access is guarded by a mutex.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	clock   Clock
}

// NewCache builds a Cache with the given TTL and clock. Pass SystemClock{}
// in production; tests inject a fake clock to exercise expiry.
func NewCache(ttl time.Duration, clock Clock) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

// Get returns the cached address for hostname, or false if absent or
// expired. Expiry is checked on read; an expired entry is never returned.
func (c *Cache) Get(hostname string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[hostname]
	if !ok {
		return "", false
	}
	if c.clock.Now().After(entry.expiry) {
		return "", false
	}
	return entry.address, true
}

// Set records a successful resolution, valid for the cache's TTL from now.
func (c *Cache) Set(hostname, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[hostname] = cacheEntry{
		address: address,
		expiry:  c.clock.Now().Add(c.ttl),
	}
}

// Clear empties the cache. Mostly useful in tests.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
