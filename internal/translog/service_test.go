package translog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/logger"
)

// stubRepo is an in-memory domain.TransactionRepo with canned analytics.
type stubRepo struct {
	inserted  []domain.SearchTransaction
	insertErr error
	times     []float64
	deleted   time.Time
}

func (s *stubRepo) Insert(_ context.Context, tx domain.SearchTransaction) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, tx)
	return nil
}

func (s *stubRepo) CountAndAverages(_ context.Context, _ string, _ time.Time) (int64, float64, float64, error) {
	return int64(len(s.times)), 25, 3, nil
}

func (s *stubRepo) PopularQueries(_ context.Context, _ string, _ time.Time, _ int) ([]domain.QueryCount, error) {
	return []domain.QueryCount{{Query: "bebop", Count: 3}}, nil
}

func (s *stubRepo) HourlyDistribution(_ context.Context, _ string, _ time.Time) ([]domain.HourBucket, error) {
	return []domain.HourBucket{{Hour: 9, Searches: 2, AvgTimeMS: 20}}, nil
}

func (s *stubRepo) PerformanceBuckets(_ context.Context, _ string, _ time.Time) (map[string]int64, error) {
	return map[string]int64{"fast": 2, "medium": 1, "slow": 0}, nil
}

func (s *stubRepo) ResponseTimes(_ context.Context, _ string, _ time.Time) ([]float64, error) {
	return s.times, nil
}

func (s *stubRepo) QueryLengthDistribution(_ context.Context, _ string, _ time.Time) ([]domain.LengthBucket, error) {
	return []domain.LengthBucket{{Category: "short", Count: 1}}, nil
}

func (s *stubRepo) ZeroResultQueries(_ context.Context, _ string, _ time.Time, _ int) ([]domain.QueryCount, error) {
	return nil, nil
}

func (s *stubRepo) HighResultQueries(_ context.Context, _ string, _ time.Time, _ int) ([]domain.QueryCount, error) {
	return nil, nil
}

func (s *stubRepo) SourceSummaries(_ context.Context, _ time.Time) ([]domain.SourceSummary, error) {
	return []domain.SourceSummary{{Source: "anidb", Searches: 3}}, nil
}

func (s *stubRepo) RecentActivity(_ context.Context, _ time.Time, _ int) ([]domain.SearchTransaction, error) {
	return s.inserted, nil
}

func (s *stubRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleted = cutoff
	return 7, nil
}

func newTestService(repo domain.TransactionRepo) *Service {
	return NewService(logger.NewWithLevel("disabled"), repo)
}

func TestLogSearchSwallowsFailures(t *testing.T) {
	repo := &stubRepo{insertErr: fmt.Errorf("disk full")}
	s := newTestService(repo)

	// Must not panic or surface the error.
	s.LogSearch(context.Background(), domain.SearchTransaction{Query: "bebop"})
}

func TestLogSearchFillsTimestamp(t *testing.T) {
	repo := &stubRepo{}
	s := newTestService(repo)

	s.LogSearch(context.Background(), domain.SearchTransaction{Query: "bebop"})
	require.Len(t, repo.inserted, 1)
	assert.False(t, repo.inserted[0].Timestamp.IsZero())
}

func TestLogDetailsUsesSyntheticQuery(t *testing.T) {
	repo := &stubRepo{}
	s := newTestService(repo)

	s.LogDetails(context.Background(), "anidb", 17, 12.5, "client-1")
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "details:17", repo.inserted[0].Query)
	assert.Equal(t, 1, repo.inserted[0].ResultCount)
	assert.Equal(t, 12.5, repo.inserted[0].ResponseTimeMS)
}

func TestPercentileFloorRule(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	assert.Equal(t, 60.0, percentile(sorted, 0.50), "index floor(10*0.5)=5")
	assert.Equal(t, 100.0, percentile(sorted, 0.90))
	assert.Equal(t, 100.0, percentile(sorted, 0.99), "index clamped to last element")
	assert.Equal(t, 0.0, percentile(nil, 0.5))
	assert.Equal(t, 42.0, percentile([]float64{42}, 0.99))
}

func TestSummarizeComputesPercentiles(t *testing.T) {
	repo := &stubRepo{times: []float64{10, 20, 30, 40}}
	s := newTestService(repo)

	summary, err := s.Summarize(context.Background(), "anidb", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.TotalSearches)
	assert.Equal(t, 30.0, summary.Percentiles.P50)
	assert.Equal(t, 40.0, summary.Percentiles.P99)
	assert.Equal(t, int64(2), summary.Performance["fast"])
}

func TestBuildAndExportReport(t *testing.T) {
	repo := &stubRepo{times: []float64{10, 20}}
	s := newTestService(repo)

	report, err := s.BuildReport(context.Background(), "anidb", time.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, report.PopularQueries, 1)
	assert.Equal(t, "bebop", report.PopularQueries[0].Query)

	path := filepath.Join(t.TempDir(), "reports", "daily.yaml")
	require.NoError(t, s.ExportReport(report, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, int64(2), decoded.Summary.TotalSearches)
	assert.Equal(t, "bebop", decoded.PopularQueries[0].Query)
}

func TestCleanupUsesRetentionWindow(t *testing.T) {
	repo := &stubRepo{}
	s := newTestService(repo)
	base := time.Now()
	s.now = func() time.Time { return base }

	n, err := s.Cleanup(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.WithinDuration(t, base.AddDate(0, 0, -30), repo.deleted, time.Second)
}
