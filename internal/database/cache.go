package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// CacheRepo implements domain.CacheStore on the persistent_cache table.
// Every failure is surfaced as a *domain.StorageError so the tiered cache
// can degrade without inspecting driver errors.
type CacheRepo struct {
	log zerolog.Logger
	db  *DB
	now func() time.Time
}

// NewCacheRepo creates the durable cache repository.
func NewCacheRepo(log zerolog.Logger, db *DB) *CacheRepo {
	return &CacheRepo{
		log: log.With().Str("repo", "cache").Logger(),
		db:  db,
		now: time.Now,
	}
}

var _ domain.CacheStore = (*CacheRepo)(nil)

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

// GetEntry returns the entry for key, or nil when absent.
func (r *CacheRepo) GetEntry(ctx context.Context, key string) (*domain.CacheEntry, error) {
	queryBuilder := r.db.squirrel.
		Select("cache_key", "method_name", "parameters_json", "raw_payload", "parsed_data_json",
			"created_at", "expires_at", "access_count", "last_accessed", "data_size").
		From(tableCache).
		Where(sq.Eq{"cache_key": key})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, storageErr("get", err)
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("GetEntry")

	row := r.db.handler.QueryRowContext(ctx, query, args...)

	var entry domain.CacheEntry
	var rawPayload sql.NullString
	var createdAt, expiresAt, lastAccessed string
	err = row.Scan(&entry.Key, &entry.MethodName, &entry.ParametersJSON, &rawPayload,
		&entry.ParsedJSON, &createdAt, &expiresAt, &entry.AccessCount, &lastAccessed, &entry.DataSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get", err)
	}

	entry.RawPayload = rawPayload.String
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, storageErr("get", err)
	}
	if entry.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, storageErr("get", err)
	}
	if entry.LastAccessed, err = parseTime(lastAccessed); err != nil {
		return nil, storageErr("get", err)
	}

	return &entry, nil
}

// SetEntry inserts or replaces an entry. The expiry must be after creation.
func (r *CacheRepo) SetEntry(ctx context.Context, entry *domain.CacheEntry) error {
	if !entry.ExpiresAt.After(entry.CreatedAt) {
		return storageErr("set", errors.Errorf("entry %q expires before it is created", entry.Key))
	}

	queryBuilder := r.db.squirrel.
		Replace(tableCache).
		Columns("cache_key", "method_name", "parameters_json", "raw_payload", "parsed_data_json",
			"created_at", "expires_at", "access_count", "last_accessed", "data_size").
		Values(entry.Key, entry.MethodName, entry.ParametersJSON, entry.RawPayload, entry.ParsedJSON,
			formatTime(entry.CreatedAt), formatTime(entry.ExpiresAt), entry.AccessCount,
			formatTime(entry.LastAccessed), entry.DataSize)

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return storageErr("set", err)
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("SetEntry")

	if _, err = r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return storageErr("set", err)
	}
	return nil
}

// UpdateAccess bumps the access counter and last-accessed time for key.
func (r *CacheRepo) UpdateAccess(ctx context.Context, key string) error {
	queryBuilder := r.db.squirrel.
		Update(tableCache).
		Set("access_count", sq.Expr("access_count + 1")).
		Set("last_accessed", formatTime(r.now())).
		Where(sq.Eq{"cache_key": key})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return storageErr("update access", err)
	}

	if _, err = r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return storageErr("update access", err)
	}
	return nil
}

// DeleteEntry removes key, reporting whether a row was deleted.
func (r *CacheRepo) DeleteEntry(ctx context.Context, key string) (bool, error) {
	queryBuilder := r.db.squirrel.
		Delete(tableCache).
		Where(sq.Eq{"cache_key": key})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return false, storageErr("delete", err)
	}

	res, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return false, storageErr("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr("delete", err)
	}
	return n > 0, nil
}

// Clear removes every entry and returns the removed count.
func (r *CacheRepo) Clear(ctx context.Context) (int64, error) {
	query, args, err := r.db.squirrel.Delete(tableCache).ToSql()
	if err != nil {
		return 0, storageErr("clear", err)
	}

	res, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("clear", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("clear", err)
	}
	return n, nil
}

// CleanupExpired removes entries past their expiry and returns the count.
func (r *CacheRepo) CleanupExpired(ctx context.Context) (int64, error) {
	queryBuilder := r.db.squirrel.
		Delete(tableCache).
		Where(sq.LtOrEq{"expires_at": formatTime(r.now())})

	query, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, storageErr("cleanup", err)
	}

	res, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("cleanup", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("cleanup", err)
	}
	if n > 0 {
		r.log.Debug().Int64("removed", n).Msg("cleaned up expired cache entries")
	}
	return n, nil
}

// Stats returns entry counts and the total stored payload size.
func (r *CacheRepo) Stats(ctx context.Context) (domain.CacheStoreStats, error) {
	var stats domain.CacheStoreStats
	now := formatTime(r.now())

	row := r.db.handler.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= $1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(data_size), 0)
		FROM persistent_cache`, now)
	if err := row.Scan(&stats.Total, &stats.Expired, &stats.TotalBytes); err != nil {
		return stats, storageErr("stats", err)
	}
	stats.Active = stats.Total - stats.Expired
	return stats, nil
}
