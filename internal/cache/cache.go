package cache

import (
	"sync"
	"time"
)

type entry struct {
	value    interface{}
	expiry   time.Time
	noExpiry bool
}

// Cache is a process-local key/value cache with TTL eviction. It is
// injected into the components that need it and invalidated explicitly
// at mutation points; it is never shared as an ambient singleton.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// New creates a cache whose entries expire after ttl. A non-positive ttl
// means entries never expire.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key, or false on a miss or an expired
// entry. Expired entries are removed on access.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.noExpiry && c.now().After(e.expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the cache's TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{
		value:    value,
		expiry:   c.now().Add(c.ttl),
		noExpiry: c.ttl <= 0,
	}
}

// Delete invalidates a single key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Purge invalidates all entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
