package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// insertChunkSize bounds rows per INSERT so bulk loads stay well under the
// SQLite bound-parameter limit.
const insertChunkSize = 500

// TitleRepo implements domain.TitleRepo on the per-source title tables.
type TitleRepo struct {
	log zerolog.Logger
	db  *DB
	now func() time.Time
}

func NewTitleRepo(log zerolog.Logger, db *DB) *TitleRepo {
	return &TitleRepo{
		log: log.With().Str("repo", "titles").Logger(),
		db:  db,
		now: time.Now,
	}
}

var _ domain.TitleRepo = (*TitleRepo)(nil)

// Search runs tiered matching against a source's title index: exact matches
// first, then prefix matches, then substring matches. Later tiers exclude the
// earlier tiers' patterns, results are deduplicated by external ID with the
// first occurrence winning, and each tier is ordered by title type then
// language so primary titles surface first.
func (r *TitleRepo) Search(ctx context.Context, source, query string, limit int) ([]domain.TitleRecord, error) {
	table, err := r.db.tableFor(source, TableTitles)
	if err != nil {
		return nil, err
	}

	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" || limit <= 0 {
		return []domain.TitleRecord{}, nil
	}

	tiers := []sq.Sqlizer{
		sq.Eq{"title_normalized": normalized},
		sq.And{
			sq.Like{"title_normalized": normalized + "%"},
			sq.NotEq{"title_normalized": normalized},
		},
		sq.And{
			sq.Like{"title_normalized": "%" + normalized + "%"},
			sq.Expr("title_normalized NOT LIKE ?", normalized+"%"),
		},
	}

	r.db.lock.RLock()
	defer r.db.lock.RUnlock()

	results := make([]domain.TitleRecord, 0, limit)
	seen := make(map[int]bool)

	for _, cond := range tiers {
		if len(results) >= limit {
			break
		}

		queryBuilder := r.db.squirrel.
			Select("external_id", "title_type", "language", "title", "title_normalized").
			From(table).
			Where(cond).
			OrderBy("title_type ASC", "language ASC", "title ASC").
			Limit(uint64(limit))

		q, args, err := queryBuilder.ToSql()
		if err != nil {
			return nil, storageErr("search", err)
		}

		r.log.Trace().Str("query", q).Interface("args", args).Msg("Search")

		rows, err := r.db.handler.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, storageErr("search", err)
		}

		for rows.Next() {
			var rec domain.TitleRecord
			if err := rows.Scan(&rec.ExternalID, &rec.TitleType, &rec.Language, &rec.Title, &rec.NormalizedTitle); err != nil {
				rows.Close()
				return nil, storageErr("search", err)
			}
			if seen[rec.ExternalID] {
				continue
			}
			seen[rec.ExternalID] = true
			results = append(results, rec)
			if len(results) >= limit {
				break
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, storageErr("search", err)
		}
		rows.Close()
	}

	return results, nil
}

// TitlesForID returns every title row for one external ID.
func (r *TitleRepo) TitlesForID(ctx context.Context, source string, externalID int) ([]domain.TitleRecord, error) {
	table, err := r.db.tableFor(source, TableTitles)
	if err != nil {
		return nil, err
	}

	queryBuilder := r.db.squirrel.
		Select("external_id", "title_type", "language", "title", "title_normalized").
		From(table).
		Where(sq.Eq{"external_id": externalID}).
		OrderBy("title_type ASC", "language ASC")

	q, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, storageErr("titles for id", err)
	}

	r.db.lock.RLock()
	defer r.db.lock.RUnlock()

	rows, err := r.db.handler.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr("titles for id", err)
	}
	defer rows.Close()

	var records []domain.TitleRecord
	for rows.Next() {
		var rec domain.TitleRecord
		if err := rows.Scan(&rec.ExternalID, &rec.TitleType, &rec.Language, &rec.Title, &rec.NormalizedTitle); err != nil {
			return nil, storageErr("titles for id", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("titles for id", err)
	}

	return records, nil
}

// BulkReplace swaps a source's entire title index for records inside one
// transaction, then records the refresh time and row count in the source's
// metadata table. Either everything lands or nothing does.
func (r *TitleRepo) BulkReplace(ctx context.Context, source string, records []domain.TitleRecord) (int, error) {
	table, err := r.db.tableFor(source, TableTitles)
	if err != nil {
		return 0, err
	}
	metaTable, err := r.db.tableFor(source, TableMetadata)
	if err != nil {
		return 0, err
	}

	r.db.lock.Lock()
	defer r.db.lock.Unlock()

	tx, err := r.db.handler.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("bulk replace", err)
	}
	defer tx.Rollback()

	deleteQuery, deleteArgs, err := r.db.squirrel.Delete(table).ToSql()
	if err != nil {
		return 0, storageErr("bulk replace", err)
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...); err != nil {
		return 0, storageErr("bulk replace", err)
	}

	inserted := 0
	for start := 0; start < len(records); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(records) {
			end = len(records)
		}

		queryBuilder := r.db.squirrel.
			Insert(table).
			Columns("external_id", "title_type", "language", "title", "title_normalized")
		for _, rec := range records[start:end] {
			queryBuilder = queryBuilder.Values(rec.ExternalID, rec.TitleType, rec.Language, rec.Title, rec.NormalizedTitle)
		}
		// Duplicate rows in the input collapse onto the primary key.
		queryBuilder = queryBuilder.Suffix("ON CONFLICT DO NOTHING")

		q, args, err := queryBuilder.ToSql()
		if err != nil {
			return 0, storageErr("bulk replace", err)
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, storageErr("bulk replace", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr("bulk replace", err)
		}
		inserted += int(n)
	}

	now := formatTime(r.now())
	metaRows := [][]interface{}{
		{domain.MetaLastTitlesUpdate, now},
		{domain.MetaTitleCount, strconv.Itoa(inserted)},
	}
	for _, kv := range metaRows {
		q, args, err := r.db.squirrel.
			Replace(metaTable).
			Columns("key", "value", "updated_at").
			Values(kv[0], kv[1], now).
			ToSql()
		if err != nil {
			return 0, storageErr("bulk replace", err)
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, storageErr("bulk replace", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("bulk replace", err)
	}

	r.log.Info().Str("source", source).Int("titles", inserted).Msg("title index replaced")
	return inserted, nil
}

// Stats summarizes a source's title index.
func (r *TitleRepo) Stats(ctx context.Context, source string) (domain.TitleStats, error) {
	var stats domain.TitleStats

	table, err := r.db.tableFor(source, TableTitles)
	if err != nil {
		return stats, err
	}
	metaTable, err := r.db.tableFor(source, TableMetadata)
	if err != nil {
		return stats, err
	}

	r.db.lock.RLock()
	defer r.db.lock.RUnlock()

	countQuery, _, err := r.db.squirrel.
		Select("COUNT(*)", "COUNT(DISTINCT external_id)").
		From(table).
		ToSql()
	if err != nil {
		return stats, storageErr("stats", err)
	}
	if err := r.db.handler.QueryRowContext(ctx, countQuery).Scan(&stats.TotalTitles, &stats.UniqueIDs); err != nil {
		return stats, storageErr("stats", err)
	}

	updateQuery, args, err := r.db.squirrel.
		Select("value").
		From(metaTable).
		Where(sq.Eq{"key": domain.MetaLastTitlesUpdate}).
		ToSql()
	if err != nil {
		return stats, storageErr("stats", err)
	}

	var raw string
	err = r.db.handler.QueryRowContext(ctx, updateQuery, args...).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return stats, storageErr("stats", err)
	}
	if raw != "" {
		if stats.LastUpdate, err = parseTime(raw); err != nil {
			return stats, storageErr("stats", errors.Wrap(err, "last update timestamp"))
		}
	}

	return stats, nil
}
