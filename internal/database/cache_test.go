package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/logger"
)

func newTestCacheRepo(t *testing.T) *CacheRepo {
	t.Helper()
	return NewCacheRepo(logger.NewWithLevel("disabled"), newTestDB(t))
}

func testEntry(key string, created time.Time, ttl time.Duration) *domain.CacheEntry {
	return &domain.CacheEntry{
		Key:            key,
		MethodName:     "get_anime_details",
		ParametersJSON: `{"id":1}`,
		ParsedJSON:     `{"title":"x"}`,
		CreatedAt:      created,
		ExpiresAt:      created.Add(ttl),
		LastAccessed:   created,
		DataSize:       11,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	r := newTestCacheRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.SetEntry(ctx, testEntry("k1", now, time.Hour)))

	got, err := r.GetEntry(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "k1", got.Key)
	assert.Equal(t, "get_anime_details", got.MethodName)
	assert.Equal(t, `{"title":"x"}`, got.ParsedJSON)
	assert.WithinDuration(t, now, got.CreatedAt, time.Millisecond)
	assert.WithinDuration(t, now.Add(time.Hour), got.ExpiresAt, time.Millisecond)
}

func TestCacheMissReturnsNil(t *testing.T) {
	r := newTestCacheRepo(t)

	got, err := r.GetEntry(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheRejectsInvertedExpiry(t *testing.T) {
	r := newTestCacheRepo(t)
	now := time.Now()

	entry := testEntry("bad", now, -time.Minute)
	err := r.SetEntry(context.Background(), entry)
	require.Error(t, err)

	var serr *domain.StorageError
	assert.ErrorAs(t, err, &serr)
}

func TestCacheUpdateAccess(t *testing.T) {
	r := newTestCacheRepo(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, r.SetEntry(ctx, testEntry("k1", now, time.Hour)))
	require.NoError(t, r.UpdateAccess(ctx, "k1"))
	require.NoError(t, r.UpdateAccess(ctx, "k1"))

	got, err := r.GetEntry(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.AccessCount)
	assert.True(t, got.LastAccessed.After(now.Add(-time.Second)))
}

func TestCacheDeleteReportsPresence(t *testing.T) {
	r := newTestCacheRepo(t)
	ctx := context.Background()

	require.NoError(t, r.SetEntry(ctx, testEntry("k1", time.Now(), time.Hour)))

	deleted, err := r.DeleteEntry(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.DeleteEntry(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCacheCleanupExpiredWithSubSecondTTL(t *testing.T) {
	r := newTestCacheRepo(t)
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, r.SetEntry(ctx, testEntry("short", base, 100*time.Millisecond)))
	require.NoError(t, r.SetEntry(ctx, testEntry("long", base, time.Hour)))

	r.now = func() time.Time { return base.Add(200 * time.Millisecond) }

	removed, err := r.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	got, err := r.GetEntry(ctx, "long")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestCacheClearAndStats(t *testing.T) {
	r := newTestCacheRepo(t)
	ctx := context.Background()
	base := time.Now()
	r.now = func() time.Time { return base }

	require.NoError(t, r.SetEntry(ctx, testEntry("a", base.Add(-2*time.Hour), time.Hour)))
	require.NoError(t, r.SetEntry(ctx, testEntry("b", base, time.Hour)))

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(22), stats.TotalBytes)

	cleared, err := r.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cleared)
}
