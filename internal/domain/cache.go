package domain

import (
	"context"
	"time"
)

// CacheEntry is one row of the durable cache.
type CacheEntry struct {
	Key            string
	MethodName     string
	ParametersJSON string
	RawPayload     string
	ParsedJSON     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	AccessCount    int64
	LastAccessed   time.Time
	DataSize       int64
}

// Expired reports whether the entry is past its expiry at the given instant.
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// CacheStoreStats summarizes the durable cache contents.
type CacheStoreStats struct {
	Total      int64
	Expired    int64
	Active     int64
	TotalBytes int64
}

// CacheStore defines the durable (L2) cache operations. A miss is reported as
// a nil entry with a nil error; every failure is a *StorageError.
type CacheStore interface {
	GetEntry(ctx context.Context, key string) (*CacheEntry, error)
	SetEntry(ctx context.Context, entry *CacheEntry) error
	UpdateAccess(ctx context.Context, key string) error
	DeleteEntry(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (CacheStoreStats, error)
}
