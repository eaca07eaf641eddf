package translog

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/varoOP/anicachedb/internal/domain"
)

// Percentiles summarizes the response-time distribution.
type Percentiles struct {
	P50 float64 `yaml:"p50_ms"`
	P90 float64 `yaml:"p90_ms"`
	P95 float64 `yaml:"p95_ms"`
	P99 float64 `yaml:"p99_ms"`
}

// Summary is the aggregate view over one window.
type Summary struct {
	Source        string           `yaml:"source,omitempty"`
	WindowStart   time.Time        `yaml:"window_start"`
	TotalSearches int64            `yaml:"total_searches"`
	AvgTimeMS     float64          `yaml:"avg_response_time_ms"`
	AvgResults    float64          `yaml:"avg_results"`
	Percentiles   Percentiles      `yaml:"percentiles"`
	Performance   map[string]int64 `yaml:"performance_buckets"`
}

// Report is the full analytics report, exportable as YAML.
type Report struct {
	GeneratedAt    time.Time              `yaml:"generated_at"`
	Summary        Summary                `yaml:"summary"`
	PopularQueries []domain.QueryCount    `yaml:"popular_queries,omitempty"`
	ZeroResults    []domain.QueryCount    `yaml:"zero_result_queries,omitempty"`
	HighResults    []domain.QueryCount    `yaml:"high_result_queries,omitempty"`
	Hourly         []domain.HourBucket    `yaml:"hourly_distribution,omitempty"`
	QueryLengths   []domain.LengthBucket  `yaml:"query_lengths,omitempty"`
	Sources        []domain.SourceSummary `yaml:"sources,omitempty"`
}

// Service wraps the transaction repository with the swallow-on-failure write
// path and the read-side analytics.
type Service struct {
	log  zerolog.Logger
	repo domain.TransactionRepo
	now  func() time.Time
}

func NewService(log zerolog.Logger, repo domain.TransactionRepo) *Service {
	return &Service{
		log:  log.With().Str("module", "translog").Logger(),
		repo: repo,
		now:  time.Now,
	}
}

// LogSearch appends one transaction. Failures are logged and swallowed so a
// broken log can never fail a search.
func (s *Service) LogSearch(ctx context.Context, tx domain.SearchTransaction) {
	if tx.Timestamp.IsZero() {
		tx.Timestamp = s.now()
	}
	if err := s.repo.Insert(ctx, tx); err != nil {
		s.log.Warn().Err(err).Str("query", tx.Query).Msg("unable to log search transaction")
	}
}

// LogDetails records a details lookup in the same log, keyed by a synthetic
// query so lookup traffic shows up in the analytics alongside searches.
// Failures are swallowed like LogSearch.
func (s *Service) LogDetails(ctx context.Context, source string, externalID int, responseMS float64, clientID string) {
	s.LogSearch(ctx, domain.SearchTransaction{
		Timestamp:      s.now(),
		Source:         source,
		Query:          fmt.Sprintf("details:%d", externalID),
		ResultCount:    1,
		ResponseTimeMS: responseMS,
		ClientID:       clientID,
	})
}

// percentile returns the p-th percentile of sorted (ascending) values using
// the floor(n*p) index rule.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(float64(len(sorted)) * p))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Summarize computes the aggregate stats for one source over the window.
// An empty source covers all sources.
func (s *Service) Summarize(ctx context.Context, source string, since time.Time) (Summary, error) {
	summary := Summary{Source: source, WindowStart: since}

	total, avgTime, avgResults, err := s.repo.CountAndAverages(ctx, source, since)
	if err != nil {
		return summary, err
	}
	summary.TotalSearches = total
	summary.AvgTimeMS = avgTime
	summary.AvgResults = avgResults

	times, err := s.repo.ResponseTimes(ctx, source, since)
	if err != nil {
		return summary, err
	}
	summary.Percentiles = Percentiles{
		P50: percentile(times, 0.50),
		P90: percentile(times, 0.90),
		P95: percentile(times, 0.95),
		P99: percentile(times, 0.99),
	}

	summary.Performance, err = s.repo.PerformanceBuckets(ctx, source, since)
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// BuildReport assembles the full analytics report for the window.
func (s *Service) BuildReport(ctx context.Context, source string, since time.Time, limit int) (*Report, error) {
	report := &Report{GeneratedAt: s.now()}

	var err error
	if report.Summary, err = s.Summarize(ctx, source, since); err != nil {
		return nil, err
	}
	if report.PopularQueries, err = s.repo.PopularQueries(ctx, source, since, limit); err != nil {
		return nil, err
	}
	if report.ZeroResults, err = s.repo.ZeroResultQueries(ctx, source, since, limit); err != nil {
		return nil, err
	}
	if report.HighResults, err = s.repo.HighResultQueries(ctx, source, since, limit); err != nil {
		return nil, err
	}
	if report.Hourly, err = s.repo.HourlyDistribution(ctx, source, since); err != nil {
		return nil, err
	}
	if report.QueryLengths, err = s.repo.QueryLengthDistribution(ctx, source, since); err != nil {
		return nil, err
	}
	if report.Sources, err = s.repo.SourceSummaries(ctx, since); err != nil {
		return nil, err
	}
	return report, nil
}

// ExportReport writes the report as YAML to path, creating parent
// directories as needed.
func (s *Service) ExportReport(report *Report, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "unable to create report directory")
	}

	data, err := yaml.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "unable to marshal report")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "unable to write report")
	}

	s.log.Info().Str("path", path).Msg("analytics report written")
	return nil
}

// RecentActivity returns the newest transactions in the window.
func (s *Service) RecentActivity(ctx context.Context, since time.Time, limit int) ([]domain.SearchTransaction, error) {
	return s.repo.RecentActivity(ctx, since, limit)
}

// Cleanup removes transactions older than the retention window.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info().Int64("removed", n).Int("retention_days", retentionDays).Msg("transaction log pruned")
	}
	return n, nil
}
