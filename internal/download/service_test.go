package download

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/logger"
)

type memMetadata struct {
	values map[string]string
}

func newMemMetadata() *memMetadata {
	return &memMetadata{values: make(map[string]string)}
}

func (m *memMetadata) key(source, key string) string { return source + "/" + key }

func (m *memMetadata) Get(_ context.Context, source, key string) (string, error) {
	return m.values[m.key(source, key)], nil
}

func (m *memMetadata) Set(_ context.Context, source, key, value string) error {
	m.values[m.key(source, key)] = value
	return nil
}

func (m *memMetadata) Delete(_ context.Context, source, key string) error {
	delete(m.values, m.key(source, key))
	return nil
}

type stubFetcher struct {
	body []byte
	err  error
	hits int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.hits++
	return f.body, f.err
}

type stubLoader struct {
	count int
	err   error
	path  string
}

func (l *stubLoader) LoadFromFile(_ context.Context, _, path string) (int, error) {
	l.path = path
	return l.count, l.err
}

func gzipBody(t *testing.T, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

type fixture struct {
	svc      *Service
	meta     *memMetadata
	fetcher  *stubFetcher
	loader   *stubLoader
	cacheDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		meta:     newMemMetadata(),
		fetcher:  &stubFetcher{},
		loader:   &stubLoader{count: 42},
		cacheDir: t.TempDir(),
	}
	cfg := &domain.Config{
		Source:            "anidb",
		TitlesURL:         "http://example.test/anime-titles.dat.gz",
		CacheDir:          f.cacheDir,
		ProtectionHours:   36,
		MinTitlesFileSize: 10,
	}
	f.svc = NewService(logger.NewWithLevel("disabled"), f.fetcher, f.meta, f.loader, nil, cfg)
	return f
}

func (f *fixture) setLastDownload(t *testing.T, at time.Time) {
	t.Helper()
	require.NoError(t, f.meta.Set(context.Background(), "anidb",
		domain.MetaLastDownloadTimestamp, at.UTC().Format(time.RFC3339Nano)))
}

func TestGateAllowsFirstDownload(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Gate(context.Background()))
}

func TestGateBlocksInsideWindow(t *testing.T) {
	f := newFixture(t)
	base := time.Now()
	f.setLastDownload(t, base.Add(-35*time.Hour-59*time.Minute))
	f.svc.now = func() time.Time { return base }

	err := f.svc.Gate(context.Background())
	require.Error(t, err)

	var rle *domain.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.InDelta(t, 1.0/60.0, rle.HoursRemaining, 0.001)
}

func TestGateAllowsAtWindowBoundary(t *testing.T) {
	f := newFixture(t)
	base := time.Now()
	f.setLastDownload(t, base.Add(-36*time.Hour))
	f.svc.now = func() time.Time { return base }

	assert.NoError(t, f.svc.Gate(context.Background()))
}

func TestDownloadBlockedRecordsAudit(t *testing.T) {
	f := newFixture(t)
	f.setLastDownload(t, time.Now().Add(-time.Hour))

	_, err := f.svc.Download(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, 0, f.fetcher.hits, "blocked download never fetches")

	status, err := f.meta.Get(context.Background(), "anidb", domain.MetaLastAttemptStatus)
	require.NoError(t, err)
	assert.Equal(t, string(domain.DownloadBlocked), status)
}

func TestDownloadSuccessInstallsAndCommits(t *testing.T) {
	f := newFixture(t)
	f.fetcher.body = gzipBody(t, "1|1|en|Cowboy Bebop\n")
	ctx := context.Background()

	count, err := f.svc.Download(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
	assert.Equal(t, filepath.Join(f.cacheDir, titlesFileName), f.loader.path)

	_, statErr := os.Stat(filepath.Join(f.cacheDir, titlesFileName))
	assert.NoError(t, statErr)

	ts, err := f.meta.Get(ctx, "anidb", domain.MetaLastDownloadTimestamp)
	require.NoError(t, err)
	assert.NotEmpty(t, ts, "timestamp committed after success")

	status, _ := f.meta.Get(ctx, "anidb", domain.MetaLastDownloadStatus)
	assert.Equal(t, string(domain.DownloadSuccess), status)

	// The second attempt is now rate limited.
	_, err = f.svc.Download(ctx, false)
	var rle *domain.RateLimitError
	assert.ErrorAs(t, err, &rle)
}

func TestFailedValidationNeverAdvancesTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string][]byte{
		"too small": gzipMagic,
		"not gzip":  bytes.Repeat([]byte("plain text data"), 10),
		"corrupt":   append(gzipBody(t, "1|1|en|X\n")[:12], bytes.Repeat([]byte{0}, 50)...),
	}
	for name, body := range cases {
		f.fetcher.body = body
		_, err := f.svc.Download(ctx, false)
		require.Error(t, err, name)

		ts, _ := f.meta.Get(ctx, "anidb", domain.MetaLastDownloadTimestamp)
		assert.Empty(t, ts, "%s: timestamp must not advance", name)

		status, _ := f.meta.Get(ctx, "anidb", domain.MetaLastAttemptStatus)
		assert.Equal(t, string(domain.DownloadFailed), status, name)
	}
}

func TestFailedLoadNeverAdvancesTimestamp(t *testing.T) {
	f := newFixture(t)
	f.fetcher.body = gzipBody(t, "1|1|en|X\n")
	f.loader.err = fmt.Errorf("index broken")

	_, err := f.svc.Download(context.Background(), false)
	require.Error(t, err)

	ts, _ := f.meta.Get(context.Background(), "anidb", domain.MetaLastDownloadTimestamp)
	assert.Empty(t, ts)
}

func TestForceBypassesGateButNotValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLastDownload(t, time.Now().Add(-time.Hour))

	f.fetcher.body = []byte("definitely not gzip data")
	_, err := f.svc.Download(ctx, true)
	require.Error(t, err)
	assert.Equal(t, 1, f.fetcher.hits, "force bypasses the gate")

	f.fetcher.body = gzipBody(t, "1|1|en|X\n")
	_, err = f.svc.Download(ctx, true)
	require.NoError(t, err)
}

func TestResetProtectionClearsTimestamp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.setLastDownload(t, time.Now().Add(-time.Hour))

	require.Error(t, f.svc.Gate(ctx))
	require.NoError(t, f.svc.ResetProtection(ctx))
	assert.NoError(t, f.svc.Gate(ctx))

	status, _ := f.meta.Get(ctx, "anidb", domain.MetaLastAttemptStatus)
	assert.Equal(t, string(domain.DownloadProtectionReset), status)
}

func TestGateFallsBackToLogFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate a database rebuild: metadata empty, log file present.
	recent := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
	logLine := fmt.Sprintf("%s %s 12345\n", recent, domain.DownloadSuccess)
	require.NoError(t, os.WriteFile(filepath.Join(f.cacheDir, logFileName), []byte(logLine), 0o644))

	err := f.svc.Gate(ctx)
	var rle *domain.RateLimitError
	assert.ErrorAs(t, err, &rle, "log fallback still enforces the window")
}

func TestLogFallbackIgnoresFailedAttempts(t *testing.T) {
	f := newFixture(t)

	recent := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339Nano)
	logLine := fmt.Sprintf("%s %s 0\n", recent, domain.DownloadFailed)
	require.NoError(t, os.WriteFile(filepath.Join(f.cacheDir, logFileName), []byte(logLine), 0o644))

	assert.NoError(t, f.svc.Gate(context.Background()))
}

func titlesContent(records int) string {
	var b strings.Builder
	b.WriteString("# anime titles\n")
	for i := 1; i <= records; i++ {
		fmt.Fprintf(&b, "%d|1|en|Title Number %d\n", i, i)
	}
	return b.String()
}

func TestVerifyIntegrity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.VerifyIntegrity(ctx)
	require.Error(t, err, "missing file fails integrity")

	require.NoError(t, os.WriteFile(f.svc.titlesPath(), gzipBody(t, titlesContent(150)), 0o644))
	assert.NoError(t, f.svc.VerifyIntegrity(ctx))

	require.NoError(t, os.WriteFile(f.svc.titlesPath(), []byte("garbage"), 0o644))
	err = f.svc.VerifyIntegrity(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorruption)
}

func TestVerifyIntegrityRejectsTooFewRecords(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, os.WriteFile(f.svc.titlesPath(), gzipBody(t, titlesContent(10)), 0o644))
	err := f.svc.VerifyIntegrity(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorruption)
}

func TestNeedsDownload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	needed, err := f.svc.NeedsDownload(ctx)
	require.NoError(t, err)
	assert.True(t, needed, "missing file needs a download")

	require.NoError(t, os.WriteFile(f.svc.titlesPath(), []byte("tiny"), 0o644))
	needed, err = f.svc.NeedsDownload(ctx)
	require.NoError(t, err)
	assert.True(t, needed, "implausibly small file needs a download")

	require.NoError(t, os.WriteFile(f.svc.titlesPath(), bytes.Repeat([]byte("x"), 2048), 0o644))
	needed, err = f.svc.NeedsDownload(ctx)
	require.NoError(t, err)
	assert.False(t, needed, "fresh plausible file does not")

	f.svc.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	needed, err = f.svc.NeedsDownload(ctx)
	require.NoError(t, err)
	assert.True(t, needed, "stale file needs a download")
}

func TestReportReflectsState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fetcher.body = gzipBody(t, "1|1|en|X\n")

	before, err := f.svc.Report(ctx)
	require.NoError(t, err)
	assert.False(t, before.Protected)
	assert.False(t, before.FileInstalled)

	_, err = f.svc.Download(ctx, false)
	require.NoError(t, err)

	after, err := f.svc.Report(ctx)
	require.NoError(t, err)
	assert.True(t, after.Protected)
	assert.True(t, after.FileInstalled)
	assert.Equal(t, string(domain.DownloadSuccess), after.LastStatus)
	assert.Greater(t, after.HoursRemaining, 35.0)
}
