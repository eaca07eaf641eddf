package domain

import (
	"context"
	"time"
)

// SearchTransaction is one append-only row of the transaction log.
type SearchTransaction struct {
	ID             int64
	Timestamp      time.Time
	Source         string
	Query          string
	ResultCount    int
	ResponseTimeMS float64
	ClientID       string
}

// QueryCount pairs a query with how often it was seen.
type QueryCount struct {
	Query string  `yaml:"query"`
	Count int64   `yaml:"count"`
	Avg   float64 `yaml:"avg_results,omitempty"`
}

// HourBucket is one hour of search activity.
type HourBucket struct {
	Hour      int     `yaml:"hour"`
	Searches  int64   `yaml:"searches"`
	AvgTimeMS float64 `yaml:"avg_response_time_ms"`
}

// LengthBucket groups queries by length category (short/medium/long).
type LengthBucket struct {
	Category   string  `yaml:"category"`
	Count      int64   `yaml:"count"`
	AvgResults float64 `yaml:"avg_results"`
}

// SourceSummary is one source's share of overall activity.
type SourceSummary struct {
	Source     string  `yaml:"source"`
	Searches   int64   `yaml:"searches"`
	AvgTimeMS  float64 `yaml:"avg_response_time_ms"`
	AvgResults float64 `yaml:"avg_results"`
}

// TransactionRepo persists and aggregates search transactions. Insert
// failures are surfaced so the logging layer can decide to swallow them;
// they must never fail a caller's search.
type TransactionRepo interface {
	Insert(ctx context.Context, tx SearchTransaction) error
	CountAndAverages(ctx context.Context, source string, since time.Time) (total int64, avgTimeMS, avgResults float64, err error)
	PopularQueries(ctx context.Context, source string, since time.Time, limit int) ([]QueryCount, error)
	HourlyDistribution(ctx context.Context, source string, since time.Time) ([]HourBucket, error)
	PerformanceBuckets(ctx context.Context, source string, since time.Time) (map[string]int64, error)
	ResponseTimes(ctx context.Context, source string, since time.Time) ([]float64, error)
	QueryLengthDistribution(ctx context.Context, source string, since time.Time) ([]LengthBucket, error)
	ZeroResultQueries(ctx context.Context, source string, since time.Time, limit int) ([]QueryCount, error)
	HighResultQueries(ctx context.Context, source string, since time.Time, limit int) ([]QueryCount, error)
	SourceSummaries(ctx context.Context, since time.Time) ([]SourceSummary, error)
	RecentActivity(ctx context.Context, since time.Time, limit int) ([]SearchTransaction, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
