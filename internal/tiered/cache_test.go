package tiered

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/logger"
	"github.com/varoOP/anicachedb/internal/memcache"
)

// stubStore is an in-memory domain.CacheStore with a switchable failure mode.
type stubStore struct {
	entries map[string]*domain.CacheEntry
	fail    bool
	gets    int
	sets    int
}

func newStubStore() *stubStore {
	return &stubStore{entries: make(map[string]*domain.CacheEntry)}
}

func (s *stubStore) err(op string) error {
	return &domain.StorageError{Op: op, Err: assert.AnError}
}

func (s *stubStore) GetEntry(_ context.Context, key string) (*domain.CacheEntry, error) {
	s.gets++
	if s.fail {
		return nil, s.err("get")
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (s *stubStore) SetEntry(_ context.Context, entry *domain.CacheEntry) error {
	s.sets++
	if s.fail {
		return s.err("set")
	}
	copied := *entry
	s.entries[entry.Key] = &copied
	return nil
}

func (s *stubStore) UpdateAccess(_ context.Context, key string) error {
	if s.fail {
		return s.err("update access")
	}
	if e, ok := s.entries[key]; ok {
		e.AccessCount++
	}
	return nil
}

func (s *stubStore) DeleteEntry(_ context.Context, key string) (bool, error) {
	if s.fail {
		return false, s.err("delete")
	}
	_, ok := s.entries[key]
	delete(s.entries, key)
	return ok, nil
}

func (s *stubStore) Clear(_ context.Context) (int64, error) {
	if s.fail {
		return 0, s.err("clear")
	}
	n := int64(len(s.entries))
	s.entries = make(map[string]*domain.CacheEntry)
	return n, nil
}

func (s *stubStore) CleanupExpired(_ context.Context) (int64, error) {
	if s.fail {
		return 0, s.err("cleanup")
	}
	return 0, nil
}

func (s *stubStore) Stats(_ context.Context) (domain.CacheStoreStats, error) {
	if s.fail {
		return domain.CacheStoreStats{}, s.err("stats")
	}
	return domain.CacheStoreStats{Total: int64(len(s.entries))}, nil
}

func newTestCache(store domain.CacheStore) *Cache {
	log := logger.NewWithLevel("disabled")
	return New(log, memcache.New(log, 100, time.Hour), store, time.Hour, 48*time.Hour)
}

var testParams = map[string]any{"id": 1}

func TestGenerateKeyIsDeterministic(t *testing.T) {
	a, err := GenerateKey("search_anime", map[string]any{"query": "bebop", "limit": 10})
	require.NoError(t, err)
	b, err := GenerateKey("search_anime", map[string]any{"limit": 10, "query": "bebop"})
	require.NoError(t, err)
	assert.Equal(t, a, b, "parameter order must not change the key")

	c, err := GenerateKey("search_anime", map[string]any{"query": "trigun", "limit": 10})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	assert.Regexp(t, `^search_anime:[0-9a-f]{16}$`, a)
}

func TestGenerateKeyRequiresMethod(t *testing.T) {
	_, err := GenerateKey("", nil)
	assert.Error(t, err)
}

func TestMemoryOnlyRoundTrip(t *testing.T) {
	c := newTestCache(nil)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "get_anime_details", testParams, Value{ParsedJSON: `{"id":1}`}))

	got, ok := c.Get(ctx, "get_anime_details", testParams)
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, got.ParsedJSON)
	assert.False(t, c.Available())
}

func TestSetWritesBothTiers(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "get_anime_details", testParams, Value{RawPayload: "<xml/>", ParsedJSON: `{}`}))
	assert.Equal(t, 1, store.sets)

	key, _ := GenerateKey("get_anime_details", testParams)
	entry := store.entries[key]
	require.NotNil(t, entry)
	assert.Equal(t, "get_anime_details", entry.MethodName)
	assert.Equal(t, int64(len("<xml/>")+len("{}")), entry.DataSize)
	assert.Equal(t, 48*time.Hour, entry.ExpiresAt.Sub(entry.CreatedAt))
}

func TestDurableHitIsPromotedToMemory(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	now := time.Now()
	key, _ := GenerateKey("get_anime_details", testParams)
	store.entries[key] = &domain.CacheEntry{
		Key:        key,
		MethodName: "get_anime_details",
		ParsedJSON: `{"id":1}`,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}

	got, ok := c.Get(ctx, "get_anime_details", testParams)
	require.True(t, ok)
	assert.Equal(t, `{"id":1}`, got.ParsedJSON)
	assert.Equal(t, 1, store.gets)

	// Second lookup is served from memory.
	_, ok = c.Get(ctx, "get_anime_details", testParams)
	require.True(t, ok)
	assert.Equal(t, 1, store.gets)

	stats := c.Stats(ctx)
	assert.Equal(t, int64(1), stats.Counters.PersistentHits)
	assert.Equal(t, int64(1), stats.Counters.MemoryHits)
	assert.Equal(t, int64(1), stats.Counters.Promotions)
}

func TestExpiredDurableEntryIsMiss(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	now := time.Now()
	key, _ := GenerateKey("get_anime_details", testParams)
	store.entries[key] = &domain.CacheEntry{
		Key:       key,
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}

	_, ok := c.Get(ctx, "get_anime_details", testParams)
	assert.False(t, ok)
	assert.Empty(t, store.entries, "expired durable entry is deleted on access")
}

func TestDecodeParsedByMethodName(t *testing.T) {
	details, err := DecodeParsed(MethodAnimeDetails, `{"id":1,"title":"Cowboy Bebop"}`)
	require.NoError(t, err)
	assert.Equal(t, "Cowboy Bebop", details.(*domain.AnimeDetails).Title)

	results, err := DecodeParsed(MethodSearchAnime, `[{"id":2,"title":"Bebop"}]`)
	require.NoError(t, err)
	assert.Len(t, results.([]domain.SearchResult), 1)

	_, err = DecodeParsed("unknown_method", `{}`)
	assert.Error(t, err)

	_, err = DecodeParsed(MethodAnimeDetails, `not json`)
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	encoded, err := EncodeParsed(&domain.AnimeDetails{ID: 1, Title: "Trigun"})
	require.NoError(t, err)

	decoded, err := DecodeParsed(MethodAnimeDetails, encoded)
	require.NoError(t, err)
	assert.Equal(t, 1, decoded.(*domain.AnimeDetails).ID)
}

func TestStoreFailureDegradesStickily(t *testing.T) {
	store := newStubStore()
	store.fail = true
	c := newTestCache(store)
	ctx := context.Background()

	require.True(t, c.Available())

	_, ok := c.Get(ctx, "get_anime_details", testParams)
	assert.False(t, ok)
	assert.False(t, c.Available(), "first failure flips to memory-only")

	// The store recovers, but the cache stays memory-only.
	store.fail = false
	gets := store.gets
	_, _ = c.Get(ctx, "get_anime_details", testParams)
	assert.Equal(t, gets, store.gets, "degraded cache never touches the store again")

	// Sets still work against memory.
	require.NoError(t, c.Set(ctx, "get_anime_details", testParams, Value{ParsedJSON: `{}`}))
	got, ok := c.Get(ctx, "get_anime_details", testParams)
	require.True(t, ok)
	assert.Equal(t, `{}`, got.ParsedJSON)
}

func TestDeleteRemovesBothTiers(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "get_anime_details", testParams, Value{ParsedJSON: `{}`}))

	removed, err := c.Delete(ctx, "get_anime_details", testParams)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok := c.Get(ctx, "get_anime_details", testParams)
	assert.False(t, ok)
	assert.Empty(t, store.entries)
}

func TestClearCountsBothTiers(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", map[string]any{"id": 1}, Value{ParsedJSON: `{}`}))
	require.NoError(t, c.Set(ctx, "b", map[string]any{"id": 2}, Value{ParsedJSON: `{}`}))

	assert.Equal(t, int64(4), c.Clear(ctx), "two memory entries plus two durable rows")
}

func TestPromotionTTLIsCappedAtRemainingLifetime(t *testing.T) {
	store := newStubStore()
	c := newTestCache(store)
	ctx := context.Background()

	now := time.Now()
	key, _ := GenerateKey("get_anime_details", testParams)
	store.entries[key] = &domain.CacheEntry{
		Key:        key,
		ParsedJSON: `{}`,
		CreatedAt:  now.Add(-time.Hour),
		ExpiresAt:  now.Add(150 * time.Millisecond),
	}

	_, ok := c.Get(ctx, "get_anime_details", testParams)
	require.True(t, ok)

	// After the durable row's expiry the promoted memory entry is gone too.
	time.Sleep(200 * time.Millisecond)
	store.entries = map[string]*domain.CacheEntry{}

	_, ok = c.Get(ctx, "get_anime_details", testParams)
	assert.False(t, ok)
}
