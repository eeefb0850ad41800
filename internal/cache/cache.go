// Package cache provides a small in-memory TTL cache for expensive
// dashboard lookups, with prefix-scoped invalidation and usage stats.
package cache

import (
	"strings"
	"sync"
	"time"
)

// DefaultTTL is how long an entry stays fresh unless configured otherwise.
const DefaultTTL = time.Hour

const statsTimeFormat = "2006-01-02 15:04:05"

type entry struct {
	value   any
	written time.Time
}

// Cache is a TTL-bounded key/value cache safe for concurrent use. Expired
// entries are evicted lazily on read.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]entry
}

// New creates a cache whose entries expire after ttl. Non-positive ttl means
// DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]entry)}
}

// Get returns the value under key when present and still fresh.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Since(e.written) >= c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value under key, resetting its TTL.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, written: time.Now()}
}

// GetOrFill returns the cached value for key, filling it from fn on a miss.
// Errors are returned to the caller and never cached.
func (c *Cache) GetOrFill(key string, fn func() (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := fn()
	if err != nil {
		return nil, err
	}
	c.Set(key, v)
	return v, nil
}

// Clear removes entries whose keys start with prefix and returns how many
// went away. An empty prefix clears everything.
func (c *Cache) Clear(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key := range c.entries {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Stats describes current cache usage.
type Stats struct {
	Entries int    `json:"cache_entries"`
	Oldest  string `json:"oldest_entry"`
	Newest  string `json:"newest_entry"`
}

// Stats reports entry count and the write times of the oldest and newest
// entries, "N/A" when empty.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Entries: len(c.entries), Oldest: "N/A", Newest: "N/A"}
	if len(c.entries) == 0 {
		return stats
	}

	var oldest, newest time.Time
	for _, e := range c.entries {
		if oldest.IsZero() || e.written.Before(oldest) {
			oldest = e.written
		}
		if e.written.After(newest) {
			newest = e.written
		}
	}
	stats.Oldest = oldest.Format(statsTimeFormat)
	stats.Newest = newest.Format(statsTimeFormat)
	return stats
}
