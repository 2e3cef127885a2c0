// Package ingest implements the event ingestion pipeline: envelope
// validation, idempotent delivery, dispatch to handlers, and dead-lettering
// of events that cannot be processed.
package ingest

import (
	"sync"
	"time"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultCacheEntries = 10_000
)

// SeenCache is the fast local layer of duplicate detection. Entries expire
// after a TTL and the cache is bounded, so it can miss; the durable registry
// behind it is the authority.
type SeenCache struct {
	mu         sync.Mutex
	entries    map[string]time.Time
	ttl        time.Duration
	maxEntries int
	clock      func() time.Time
}

// NewSeenCache creates a bounded TTL cache of recently processed keys.
func NewSeenCache(ttl time.Duration, maxEntries int) *SeenCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &SeenCache{
		entries:    make(map[string]time.Time),
		ttl:        ttl,
		maxEntries: maxEntries,
		clock:      time.Now,
	}
}

// Seen reports whether the key was added within the TTL window.
func (c *SeenCache) Seen(key string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	addedAt, ok := c.entries[key]
	if !ok {
		return false
	}
	if c.clock().Sub(addedAt) > c.ttl {
		delete(c.entries, key)
		return false
	}
	return true
}

// Add records a processed key, evicting expired entries first and then the
// oldest entries if the cache is still over capacity.
func (c *SeenCache) Add(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	for existing, addedAt := range c.entries {
		if now.Sub(addedAt) > c.ttl {
			delete(c.entries, existing)
		}
	}
	for len(c.entries) >= c.maxEntries {
		oldestKey := ""
		var oldestAt time.Time
		for existing, addedAt := range c.entries {
			if oldestKey == "" || addedAt.Before(oldestAt) {
				oldestKey = existing
				oldestAt = addedAt
			}
		}
		delete(c.entries, oldestKey)
	}
	c.entries[key] = now
}

// Reset clears all entries. Used by tests to simulate a cache wipe.
func (c *SeenCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]time.Time)
}
