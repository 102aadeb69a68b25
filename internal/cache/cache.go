// Package cache memoizes per-device property lookups for the lifetime of the
// inventory that owns it.
//
// Entries are never invalidated or expired. A cache reflects the system as it
// was when each property was first read; callers that need fresh data build a
// new cache (and a new inventory) per snapshot.
package cache

import "sync"

// Key identifies one property of one device
type Key struct {
	Device   string
	Property string
}

// PropertyCache is a (device, property) -> value memo
type PropertyCache struct {
	mu      sync.RWMutex
	entries map[Key]string
}

// New creates an empty cache
func New() *PropertyCache {
	return &PropertyCache{
		entries: make(map[Key]string),
	}
}

// Get returns the cached value and whether it was present
func (c *PropertyCache) Get(device, property string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.entries[Key{Device: device, Property: property}]
	return v, ok
}

// Set stores a value. An existing value is overwritten.
func (c *PropertyCache) Set(device, property, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key{Device: device, Property: property}] = value
}

// GetOrFetch returns the cached value, calling fetch and storing its result on
// a miss. Empty results are cached too.
func (c *PropertyCache) GetOrFetch(device, property string, fetch func() string) string {
	if v, ok := c.Get(device, property); ok {
		return v
	}
	v := fetch()
	c.Set(device, property, v)
	return v
}

// Len returns the number of cached properties
func (c *PropertyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
