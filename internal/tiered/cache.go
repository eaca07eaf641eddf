package tiered

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/memcache"
)

// Value is what callers put into and get back from the cache: the raw
// upstream payload plus its parsed JSON form.
type Value struct {
	RawPayload string
	ParsedJSON string
}

// Counters tracks where lookups were satisfied.
type Counters struct {
	MemoryHits     int64
	PersistentHits int64
	Misses         int64
	Sets           int64
	Promotions     int64
	StoreErrors    int64
}

// Stats is a combined snapshot of both tiers.
type Stats struct {
	Counters    Counters
	Memory      memcache.Stats
	Persistent  domain.CacheStoreStats
	DBAvailable bool
}

// Cache layers a bounded in-process tier over an optional durable tier.
// Lookups try memory first, then the durable store; durable hits are promoted
// back into memory. The first durable-store failure flips the cache into
// memory-only mode for the rest of its lifetime, so one bad disk never turns
// into a failure per request.
type Cache struct {
	log zerolog.Logger

	mu          sync.Mutex
	memory      *memcache.Cache
	store       domain.CacheStore
	dbAvailable bool
	counters    Counters

	memoryTTL     time.Duration
	persistentTTL time.Duration
	now           func() time.Time
}

// New creates a tiered cache. A nil store configures a memory-only cache.
func New(log zerolog.Logger, memory *memcache.Cache, store domain.CacheStore, memoryTTL, persistentTTL time.Duration) *Cache {
	return &Cache{
		log:           log.With().Str("module", "tiered").Logger(),
		memory:        memory,
		store:         store,
		dbAvailable:   store != nil,
		memoryTTL:     memoryTTL,
		persistentTTL: persistentTTL,
		now:           time.Now,
	}
}

// degrade flips the cache into memory-only mode. Caller holds the lock.
func (c *Cache) degrade(op string, err error) {
	c.counters.StoreErrors++
	if !c.dbAvailable {
		return
	}
	c.dbAvailable = false
	c.log.Warn().Err(err).Str("op", op).Msg("durable cache failed, continuing memory-only")
}

// Get returns the cached value for a method call, trying memory first and the
// durable store second.
func (c *Cache) Get(ctx context.Context, method string, params map[string]any) (*Value, bool) {
	key, err := GenerateKey(method, params)
	if err != nil {
		c.log.Error().Err(err).Str("method", method).Msg("unable to build cache key")
		return nil, false
	}

	if v, ok := c.memory.Get(key); ok {
		c.mu.Lock()
		c.counters.MemoryHits++
		c.mu.Unlock()
		value := v.(Value)
		return &value, true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || !c.dbAvailable {
		c.counters.Misses++
		return nil, false
	}

	entry, err := c.store.GetEntry(ctx, key)
	if err != nil {
		c.degrade("get", err)
		c.counters.Misses++
		return nil, false
	}
	if entry == nil {
		c.counters.Misses++
		return nil, false
	}
	if entry.Expired(c.now()) {
		if _, err := c.store.DeleteEntry(ctx, key); err != nil {
			c.degrade("delete expired", err)
		}
		c.counters.Misses++
		return nil, false
	}

	c.counters.PersistentHits++
	value := Value{RawPayload: entry.RawPayload, ParsedJSON: entry.ParsedJSON}

	// Promote into memory for the remaining lifetime, capped at the memory
	// TTL so the fast tier never outlives the durable row.
	remaining := entry.ExpiresAt.Sub(c.now())
	if remaining > c.memoryTTL {
		remaining = c.memoryTTL
	}
	if remaining > 0 {
		c.memory.SetWithTTL(key, value, remaining)
		c.counters.Promotions++
	}

	if err := c.store.UpdateAccess(ctx, key); err != nil {
		c.degrade("update access", err)
	}

	return &value, true
}

// Set stores a value in both tiers. A durable-store failure degrades to
// memory-only and is not surfaced to the caller.
func (c *Cache) Set(ctx context.Context, method string, params map[string]any, value Value) error {
	key, err := GenerateKey(method, params)
	if err != nil {
		return err
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	c.memory.SetWithTTL(key, value, c.memoryTTL)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters.Sets++

	if c.store == nil || !c.dbAvailable {
		return nil
	}

	now := c.now()
	entry := &domain.CacheEntry{
		Key:            key,
		MethodName:     method,
		ParametersJSON: string(paramsJSON),
		RawPayload:     value.RawPayload,
		ParsedJSON:     value.ParsedJSON,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.persistentTTL),
		LastAccessed:   now,
		DataSize:       int64(len(value.RawPayload) + len(value.ParsedJSON)),
	}
	if err := c.store.SetEntry(ctx, entry); err != nil {
		c.degrade("set", err)
	}
	return nil
}

// Delete removes a method call's value from both tiers, reporting whether
// either tier held it.
func (c *Cache) Delete(ctx context.Context, method string, params map[string]any) (bool, error) {
	key, err := GenerateKey(method, params)
	if err != nil {
		return false, err
	}

	removed := c.memory.Delete(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || !c.dbAvailable {
		return removed, nil
	}

	stored, err := c.store.DeleteEntry(ctx, key)
	if err != nil {
		c.degrade("delete", err)
		return removed, nil
	}
	return removed || stored, nil
}

// Clear empties both tiers and returns how many entries were dropped.
func (c *Cache) Clear(ctx context.Context) int64 {
	total := int64(c.memory.Clear())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || !c.dbAvailable {
		return total
	}

	n, err := c.store.Clear(ctx)
	if err != nil {
		c.degrade("clear", err)
		return total
	}
	return total + n
}

// CleanupExpired removes expired entries from both tiers.
func (c *Cache) CleanupExpired(ctx context.Context) int64 {
	total := int64(c.memory.CleanupExpired())

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || !c.dbAvailable {
		return total
	}

	n, err := c.store.CleanupExpired(ctx)
	if err != nil {
		c.degrade("cleanup", err)
		return total
	}
	return total + n
}

// Available reports whether the durable tier is still in use.
func (c *Cache) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dbAvailable
}

// Stats snapshots both tiers. Durable stats are zero when the store is
// absent or degraded.
func (c *Cache) Stats(ctx context.Context) Stats {
	c.mu.Lock()
	counters := c.counters
	available := c.dbAvailable
	c.mu.Unlock()

	stats := Stats{
		Counters:    counters,
		Memory:      c.memory.Stats(),
		DBAvailable: available,
	}

	if c.store != nil && available {
		persistent, err := c.store.Stats(ctx)
		if err != nil {
			c.mu.Lock()
			c.degrade("stats", err)
			c.mu.Unlock()
			stats.DBAvailable = false
		} else {
			stats.Persistent = persistent
		}
	}
	return stats
}
