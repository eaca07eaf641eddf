package database

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// MetadataRepo implements domain.MetadataRepo on the per-source metadata
// tables.
type MetadataRepo struct {
	log zerolog.Logger
	db  *DB
	now func() time.Time
}

func NewMetadataRepo(log zerolog.Logger, db *DB) *MetadataRepo {
	return &MetadataRepo{
		log: log.With().Str("repo", "metadata").Logger(),
		db:  db,
		now: time.Now,
	}
}

var _ domain.MetadataRepo = (*MetadataRepo)(nil)

// Get returns the value for key, or an empty string when absent.
func (r *MetadataRepo) Get(ctx context.Context, source, key string) (string, error) {
	table, err := r.db.tableFor(source, TableMetadata)
	if err != nil {
		return "", err
	}

	query, args, err := r.db.squirrel.
		Select("value").
		From(table).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return "", storageErr("metadata get", err)
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Get")

	var value string
	err = r.db.handler.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", storageErr("metadata get", err)
	}
	return value, nil
}

// Set stores key/value, replacing any existing value.
func (r *MetadataRepo) Set(ctx context.Context, source, key, value string) error {
	table, err := r.db.tableFor(source, TableMetadata)
	if err != nil {
		return err
	}

	query, args, err := r.db.squirrel.
		Replace(table).
		Columns("key", "value", "updated_at").
		Values(key, value, formatTime(r.now())).
		ToSql()
	if err != nil {
		return storageErr("metadata set", err)
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Set")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return storageErr("metadata set", err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (r *MetadataRepo) Delete(ctx context.Context, source, key string) error {
	table, err := r.db.tableFor(source, TableMetadata)
	if err != nil {
		return err
	}

	query, args, err := r.db.squirrel.
		Delete(table).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return storageErr("metadata delete", err)
	}

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return storageErr("metadata delete", err)
	}
	return nil
}
