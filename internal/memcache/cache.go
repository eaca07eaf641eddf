package memcache

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entry is a single cached value with its expiry and access bookkeeping.
type entry struct {
	value        any
	createdAt    time.Time
	expiresAt    time.Time
	accessCount  int64
	lastAccessed time.Time
}

// Stats tracks cache effectiveness counters.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Entries     int
	MaxEntries  int
}

// HitRate returns the hit percentage over all lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Cache is a bounded in-process store with per-entry TTL. Expired entries are
// removed on access; when the entry bound is reached, the entry with the
// oldest last-access time is evicted to make room.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	maxEntries int
	defaultTTL time.Duration
	stats      Stats
	log        zerolog.Logger
	now        func() time.Time
}

// New creates a cache holding at most maxEntries values, each expiring
// defaultTTL after insertion unless overridden per entry.
func New(log zerolog.Logger, maxEntries int, defaultTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		maxEntries: maxEntries,
		defaultTTL: defaultTTL,
		stats:      Stats{MaxEntries: maxEntries},
		log:        log.With().Str("module", "memcache").Logger(),
		now:        time.Now,
	}
}

// Get returns the cached value for key, or (nil, false) when absent or
// expired. An expired entry is removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}

	now := c.now()
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}

	e.accessCount++
	e.lastAccessed = now
	c.stats.Hits++
	return e.value, true
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores value under key, expiring ttl from now.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.entries[key] = &entry{
		value:        value,
		createdAt:    now,
		expiresAt:    now.Add(ttl),
		lastAccessed: now,
	}
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Clear removes every entry and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*entry)
	return n
}

// CleanupExpired removes all expired entries and returns the removed count.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			c.stats.Expirations++
			removed++
		}
	}
	if removed > 0 {
		c.log.Debug().Int("removed", removed).Msg("cleaned up expired entries")
	}
	return removed
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}

// evictOldest drops the entry with the oldest last-access time. Caller holds
// the lock.
func (c *Cache) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldest) {
			oldestKey = key
			oldest = e.lastAccessed
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
		c.log.Debug().Str("key", oldestKey).Msg("evicted least recently used entry")
	}
}
