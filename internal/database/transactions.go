package database

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// TransactionRepo implements domain.TransactionRepo on the append-only
// search_transactions table.
type TransactionRepo struct {
	log zerolog.Logger
	db  *DB
}

func NewTransactionRepo(log zerolog.Logger, db *DB) *TransactionRepo {
	return &TransactionRepo{
		log: log.With().Str("repo", "transactions").Logger(),
		db:  db,
	}
}

var _ domain.TransactionRepo = (*TransactionRepo)(nil)

// Insert appends one transaction row.
func (r *TransactionRepo) Insert(ctx context.Context, t domain.SearchTransaction) error {
	query, args, err := r.db.squirrel.
		Insert(tableTransactions).
		Columns("timestamp", "source", "query", "result_count", "response_time_ms", "client_identifier").
		Values(formatTime(t.Timestamp), t.Source, t.Query, t.ResultCount, t.ResponseTimeMS, t.ClientID).
		ToSql()
	if err != nil {
		return storageErr("insert transaction", err)
	}

	r.log.Trace().Str("query", query).Interface("args", args).Msg("Insert")

	if _, err := r.db.handler.ExecContext(ctx, query, args...); err != nil {
		return storageErr("insert transaction", err)
	}
	return nil
}

func (r *TransactionRepo) window(source string, since time.Time) sq.Sqlizer {
	cond := sq.And{sq.GtOrEq{"timestamp": formatTime(since)}}
	if source != "" {
		cond = append(cond, sq.Eq{"source": source})
	}
	return cond
}

// CountAndAverages returns the total search count plus average response time
// and average result count over the window.
func (r *TransactionRepo) CountAndAverages(ctx context.Context, source string, since time.Time) (int64, float64, float64, error) {
	query, args, err := r.db.squirrel.
		Select("COUNT(*)", "COALESCE(AVG(response_time_ms), 0)", "COALESCE(AVG(result_count), 0)").
		From(tableTransactions).
		Where(r.window(source, since)).
		ToSql()
	if err != nil {
		return 0, 0, 0, storageErr("count and averages", err)
	}

	var total int64
	var avgTime, avgResults float64
	if err := r.db.handler.QueryRowContext(ctx, query, args...).Scan(&total, &avgTime, &avgResults); err != nil {
		return 0, 0, 0, storageErr("count and averages", err)
	}
	return total, avgTime, avgResults, nil
}

func (r *TransactionRepo) queryCounts(ctx context.Context, builder sq.SelectBuilder, op string) ([]domain.QueryCount, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr(op, err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer rows.Close()

	var out []domain.QueryCount
	for rows.Next() {
		var qc domain.QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count, &qc.Avg); err != nil {
			return nil, storageErr(op, err)
		}
		out = append(out, qc)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return out, nil
}

// PopularQueries returns the most frequent queries in the window.
func (r *TransactionRepo) PopularQueries(ctx context.Context, source string, since time.Time, limit int) ([]domain.QueryCount, error) {
	builder := r.db.squirrel.
		Select("query", "COUNT(*) AS cnt", "COALESCE(AVG(result_count), 0)").
		From(tableTransactions).
		Where(r.window(source, since)).
		GroupBy("query").
		OrderBy("cnt DESC", "query ASC").
		Limit(uint64(limit))
	return r.queryCounts(ctx, builder, "popular queries")
}

// ZeroResultQueries returns the most frequent queries that matched nothing.
func (r *TransactionRepo) ZeroResultQueries(ctx context.Context, source string, since time.Time, limit int) ([]domain.QueryCount, error) {
	builder := r.db.squirrel.
		Select("query", "COUNT(*) AS cnt", "0").
		From(tableTransactions).
		Where(sq.And{r.window(source, since), sq.Eq{"result_count": 0}}).
		GroupBy("query").
		OrderBy("cnt DESC", "query ASC").
		Limit(uint64(limit))
	return r.queryCounts(ctx, builder, "zero result queries")
}

// HighResultQueries returns queries whose average result count is highest,
// pointing at overly broad searches.
func (r *TransactionRepo) HighResultQueries(ctx context.Context, source string, since time.Time, limit int) ([]domain.QueryCount, error) {
	builder := r.db.squirrel.
		Select("query", "COUNT(*)", "COALESCE(AVG(result_count), 0) AS avg_results").
		From(tableTransactions).
		Where(sq.And{r.window(source, since), sq.Gt{"result_count": 0}}).
		GroupBy("query").
		OrderBy("avg_results DESC", "query ASC").
		Limit(uint64(limit))
	return r.queryCounts(ctx, builder, "high result queries")
}

// HourlyDistribution buckets searches by hour of day (UTC).
func (r *TransactionRepo) HourlyDistribution(ctx context.Context, source string, since time.Time) ([]domain.HourBucket, error) {
	builder := r.db.squirrel.
		Select("CAST(strftime('%H', timestamp) AS INTEGER) AS hour", "COUNT(*)", "COALESCE(AVG(response_time_ms), 0)").
		From(tableTransactions).
		Where(r.window(source, since)).
		GroupBy("hour").
		OrderBy("hour ASC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("hourly distribution", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("hourly distribution", err)
	}
	defer rows.Close()

	var out []domain.HourBucket
	for rows.Next() {
		var b domain.HourBucket
		if err := rows.Scan(&b.Hour, &b.Searches, &b.AvgTimeMS); err != nil {
			return nil, storageErr("hourly distribution", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("hourly distribution", err)
	}
	return out, nil
}

// PerformanceBuckets classifies searches as fast (<100ms), medium (<500ms)
// or slow.
func (r *TransactionRepo) PerformanceBuckets(ctx context.Context, source string, since time.Time) (map[string]int64, error) {
	builder := r.db.squirrel.
		Select(`CASE
			WHEN response_time_ms < 100 THEN 'fast'
			WHEN response_time_ms < 500 THEN 'medium'
			ELSE 'slow'
		END AS bucket`, "COUNT(*)").
		From(tableTransactions).
		Where(r.window(source, since)).
		GroupBy("bucket")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("performance buckets", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("performance buckets", err)
	}
	defer rows.Close()

	buckets := map[string]int64{"fast": 0, "medium": 0, "slow": 0}
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, storageErr("performance buckets", err)
		}
		buckets[bucket] = count
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("performance buckets", err)
	}
	return buckets, nil
}

// ResponseTimes returns every response time in the window, ascending, for
// percentile computation.
func (r *TransactionRepo) ResponseTimes(ctx context.Context, source string, since time.Time) ([]float64, error) {
	builder := r.db.squirrel.
		Select("response_time_ms").
		From(tableTransactions).
		Where(r.window(source, since)).
		OrderBy("response_time_ms ASC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("response times", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("response times", err)
	}
	defer rows.Close()

	var times []float64
	for rows.Next() {
		var t float64
		if err := rows.Scan(&t); err != nil {
			return nil, storageErr("response times", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("response times", err)
	}
	return times, nil
}

// QueryLengthDistribution groups searches into short (<=5 chars), medium
// (<=15) and long query categories.
func (r *TransactionRepo) QueryLengthDistribution(ctx context.Context, source string, since time.Time) ([]domain.LengthBucket, error) {
	builder := r.db.squirrel.
		Select(`CASE
			WHEN LENGTH(query) <= 5 THEN 'short'
			WHEN LENGTH(query) <= 15 THEN 'medium'
			ELSE 'long'
		END AS category`, "COUNT(*)", "COALESCE(AVG(result_count), 0)").
		From(tableTransactions).
		Where(r.window(source, since)).
		GroupBy("category").
		OrderBy(`CASE category WHEN 'short' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("query length distribution", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query length distribution", err)
	}
	defer rows.Close()

	var out []domain.LengthBucket
	for rows.Next() {
		var b domain.LengthBucket
		if err := rows.Scan(&b.Category, &b.Count, &b.AvgResults); err != nil {
			return nil, storageErr("query length distribution", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("query length distribution", err)
	}
	return out, nil
}

// SourceSummaries aggregates activity per source over the window.
func (r *TransactionRepo) SourceSummaries(ctx context.Context, since time.Time) ([]domain.SourceSummary, error) {
	builder := r.db.squirrel.
		Select("source", "COUNT(*) AS cnt", "COALESCE(AVG(response_time_ms), 0)", "COALESCE(AVG(result_count), 0)").
		From(tableTransactions).
		Where(sq.GtOrEq{"timestamp": formatTime(since)}).
		GroupBy("source").
		OrderBy("cnt DESC")

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("source summaries", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("source summaries", err)
	}
	defer rows.Close()

	var out []domain.SourceSummary
	for rows.Next() {
		var s domain.SourceSummary
		if err := rows.Scan(&s.Source, &s.Searches, &s.AvgTimeMS, &s.AvgResults); err != nil {
			return nil, storageErr("source summaries", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("source summaries", err)
	}
	return out, nil
}

// RecentActivity returns the newest transactions in the window.
func (r *TransactionRepo) RecentActivity(ctx context.Context, since time.Time, limit int) ([]domain.SearchTransaction, error) {
	builder := r.db.squirrel.
		Select("id", "timestamp", "source", "query", "result_count", "response_time_ms", "COALESCE(client_identifier, '')").
		From(tableTransactions).
		Where(sq.GtOrEq{"timestamp": formatTime(since)}).
		OrderBy("timestamp DESC", "id DESC").
		Limit(uint64(limit))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, storageErr("recent activity", err)
	}

	rows, err := r.db.handler.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("recent activity", err)
	}
	defer rows.Close()

	var out []domain.SearchTransaction
	for rows.Next() {
		var t domain.SearchTransaction
		var ts string
		if err := rows.Scan(&t.ID, &ts, &t.Source, &t.Query, &t.ResultCount, &t.ResponseTimeMS, &t.ClientID); err != nil {
			return nil, storageErr("recent activity", err)
		}
		if t.Timestamp, err = parseTime(ts); err != nil {
			return nil, storageErr("recent activity", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("recent activity", err)
	}
	return out, nil
}

// DeleteOlderThan removes transactions before cutoff and returns the count.
func (r *TransactionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := r.db.squirrel.
		Delete(tableTransactions).
		Where(sq.Lt{"timestamp": formatTime(cutoff)}).
		ToSql()
	if err != nil {
		return 0, storageErr("delete transactions", err)
	}

	res, err := r.db.handler.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storageErr("delete transactions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete transactions", err)
	}
	if n > 0 {
		r.log.Debug().Int64("removed", n).Str("cutoff", formatTime(cutoff)).Msg("pruned old transactions")
	}
	return n, nil
}
