package download

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

const (
	titlesFileName = "anime-titles.dat.gz"
	logFileName    = "download_log.txt"
)

var gzipMagic = []byte{0x1f, 0x8b}

// TitlesLoader installs a validated titles file into the search index.
type TitlesLoader interface {
	LoadFromFile(ctx context.Context, source, path string) (int, error)
}

// Status describes the download gate for reporting.
type Status struct {
	Source         string
	LastDownload   time.Time
	LastSize       int64
	LastStatus     string
	AttemptStatus  string
	AttemptMessage string
	Protected      bool
	NextAllowed    time.Time
	HoursRemaining float64
	FileInstalled  bool
}

// Service downloads the bulk titles file under a strict rate-limit window.
// The upstream provider bans clients that fetch the file too often, so the
// window timestamp only ever advances after a fully validated install.
type Service struct {
	log        zerolog.Logger
	fetcher    domain.TitlesFetcher
	metadata   domain.MetadataRepo
	loader     TitlesLoader
	notifier   domain.NotificationService
	source     string
	url        string
	cacheDir   string
	protection time.Duration
	minSize    int64
	now        func() time.Time
}

func NewService(
	log zerolog.Logger,
	fetcher domain.TitlesFetcher,
	metadata domain.MetadataRepo,
	loader TitlesLoader,
	notifier domain.NotificationService,
	cfg *domain.Config,
) *Service {
	return &Service{
		log:        log.With().Str("module", "download").Logger(),
		fetcher:    fetcher,
		metadata:   metadata,
		loader:     loader,
		notifier:   notifier,
		source:     cfg.Source,
		url:        cfg.TitlesURL,
		cacheDir:   cfg.CacheDir,
		protection: time.Duration(cfg.ProtectionHours) * time.Hour,
		minSize:    cfg.MinTitlesFileSize,
		now:        time.Now,
	}
}

func (s *Service) titlesPath() string {
	return filepath.Join(s.cacheDir, titlesFileName)
}

func (s *Service) logPath() string {
	return filepath.Join(s.cacheDir, logFileName)
}

// lastDownload returns the last successful download time: from metadata when
// present, otherwise recovered from the plain-text download log. The file
// fallback keeps the gate honest after a database rebuild.
func (s *Service) lastDownload(ctx context.Context) (time.Time, error) {
	raw, err := s.metadata.Get(ctx, s.source, domain.MetaLastDownloadTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	if raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, errors.Wrap(err, "invalid stored download timestamp")
		}
		return t, nil
	}
	return s.lastDownloadFromLog(), nil
}

func (s *Service) lastDownloadFromLog() time.Time {
	f, err := os.Open(s.logPath())
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	var last time.Time
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || fields[1] != string(domain.DownloadSuccess) {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, fields[0]); err == nil && t.After(last) {
			last = t
		}
	}
	return last
}

func (s *Service) appendLog(status domain.DownloadStatus, size int64) {
	f, err := os.OpenFile(s.logPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		s.log.Warn().Err(err).Msg("unable to append download log")
		return
	}
	defer f.Close()

	fmt.Fprintf(f, "%s %s %d\n", s.now().UTC().Format(time.RFC3339Nano), status, size)
}

func (s *Service) recordAttempt(ctx context.Context, status domain.DownloadStatus, message string) {
	if err := s.metadata.Set(ctx, s.source, domain.MetaLastAttemptStatus, string(status)); err != nil {
		s.log.Warn().Err(err).Msg("unable to record attempt status")
	}
	if err := s.metadata.Set(ctx, s.source, domain.MetaLastAttemptMessage, message); err != nil {
		s.log.Warn().Err(err).Msg("unable to record attempt message")
	}

	// Per-attempt audit row, keyed by the attempt instant.
	auditKey := fmt.Sprintf("download_attempt_%d", s.now().UnixNano())
	if err := s.metadata.Set(ctx, s.source, auditKey, string(status)); err != nil {
		s.log.Warn().Err(err).Msg("unable to record attempt audit entry")
	}
}

func (s *Service) notify(ctx context.Context, status domain.DownloadStatus, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SendDownloadEvent(ctx, status, message); err != nil {
		s.log.Warn().Err(err).Msg("download notification failed")
	}
}

// Gate checks the protection window. It returns a *domain.RateLimitError
// when a download is still blocked.
func (s *Service) Gate(ctx context.Context) error {
	last, err := s.lastDownload(ctx)
	if err != nil {
		return err
	}
	if last.IsZero() {
		return nil
	}

	next := last.Add(s.protection)
	now := s.now()
	if now.Before(next) {
		return &domain.RateLimitError{
			LastDownload:   last,
			NextAllowed:    next,
			HoursRemaining: next.Sub(now).Hours(),
		}
	}
	return nil
}

// validate checks that body looks like a plausible titles file: gzip magic,
// a clean full decompression, and a minimum compressed size.
func (s *Service) validate(body []byte) error {
	if int64(len(body)) < s.minSize {
		return errors.Errorf("file too small: %d bytes (minimum %d)", len(body), s.minSize)
	}
	if !bytes.HasPrefix(body, gzipMagic) {
		return errors.New("file is not gzip compressed")
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "gzip header invalid")
	}
	defer gz.Close()
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return errors.Wrap(err, "gzip stream corrupt")
	}
	return nil
}

// install writes body to a temp file and atomically renames it over the
// installed titles file.
func (s *Service) install(body []byte) error {
	if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
		return errors.Wrap(err, "unable to create cache directory")
	}

	tmp := s.titlesPath() + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return errors.Wrap(err, "unable to write temp file")
	}
	if err := os.Rename(tmp, s.titlesPath()); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "unable to install titles file")
	}
	return nil
}

// Download fetches, validates and installs the titles file, then loads it
// into the search index. The protection timestamp advances only after a
// fully successful install; force bypasses the gate but never the
// validations.
func (s *Service) Download(ctx context.Context, force bool) (int, error) {
	if !force {
		if err := s.Gate(ctx); err != nil {
			var rle *domain.RateLimitError
			if errors.As(err, &rle) {
				s.recordAttempt(ctx, domain.DownloadBlocked, err.Error())
				s.appendLog(domain.DownloadBlocked, 0)
				s.notify(ctx, domain.DownloadBlocked, err.Error())
				s.log.Warn().Float64("hours_remaining", rle.HoursRemaining).Msg("download blocked by protection window")
			}
			return 0, err
		}
	}

	s.recordAttempt(ctx, domain.DownloadStarted, "")
	s.log.Info().Str("url", s.url).Bool("force", force).Msg("downloading titles file")

	body, err := s.fetcher.Fetch(ctx, s.url)
	if err != nil {
		return 0, s.fail(ctx, errors.Wrap(err, "fetch failed"))
	}

	if err := s.validate(body); err != nil {
		return 0, s.fail(ctx, errors.Wrap(err, "validation failed"))
	}

	if err := s.install(body); err != nil {
		return 0, s.fail(ctx, err)
	}

	count := 0
	if s.loader != nil {
		count, err = s.loader.LoadFromFile(ctx, s.source, s.titlesPath())
		if err != nil {
			return 0, s.fail(ctx, errors.Wrap(err, "index load failed"))
		}
	}

	now := s.now().UTC()
	size := int64(len(body))
	commits := map[string]string{
		domain.MetaLastDownloadTimestamp: now.Format(time.RFC3339Nano),
		domain.MetaLastDownloadSize:      fmt.Sprintf("%d", size),
		domain.MetaLastDownloadStatus:    string(domain.DownloadSuccess),
	}
	for key, value := range commits {
		if err := s.metadata.Set(ctx, s.source, key, value); err != nil {
			return 0, s.fail(ctx, errors.Wrap(err, "unable to commit download metadata"))
		}
	}
	s.recordAttempt(ctx, domain.DownloadSuccess, fmt.Sprintf("%d titles loaded", count))
	s.appendLog(domain.DownloadSuccess, size)
	s.notify(ctx, domain.DownloadSuccess, fmt.Sprintf("%d titles loaded (%d bytes)", count, size))

	s.log.Info().Int64("bytes", size).Int("titles", count).Msg("titles file installed")
	return count, nil
}

// fail records a failed attempt without advancing the protection timestamp.
func (s *Service) fail(ctx context.Context, err error) error {
	s.recordAttempt(ctx, domain.DownloadFailed, err.Error())
	s.appendLog(domain.DownloadFailed, 0)
	s.notify(ctx, domain.DownloadFailed, err.Error())
	s.log.Error().Err(err).Msg("download failed")
	return err
}

// ResetProtection clears the protection timestamp so the next download is
// allowed immediately. The reset itself is audited.
func (s *Service) ResetProtection(ctx context.Context) error {
	if err := s.metadata.Delete(ctx, s.source, domain.MetaLastDownloadTimestamp); err != nil {
		return err
	}
	s.recordAttempt(ctx, domain.DownloadProtectionReset, "protection window cleared")
	s.appendLog(domain.DownloadProtectionReset, 0)
	s.log.Warn().Msg("download protection window reset")
	return nil
}

// VerifyIntegrity checks that the installed titles file is still a valid
// gzip stream of plausible size and that its leading records look like the
// expected pipe-delimited format.
func (s *Service) VerifyIntegrity(ctx context.Context) error {
	body, err := os.ReadFile(s.titlesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return errors.New("no titles file installed")
		}
		return errors.Wrap(err, "unable to read titles file")
	}
	if err := s.validate(body); err != nil {
		return errors.Wrap(domain.ErrCorruption, err.Error())
	}
	if err := s.checkFormat(body); err != nil {
		return errors.Wrap(domain.ErrCorruption, err.Error())
	}
	return nil
}

// checkFormat samples the first thousand lines of the decompressed file and
// requires a healthy share of well-formed records.
func (s *Service) checkFormat(body []byte) error {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "gzip header invalid")
	}
	defer gz.Close()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := 0
	valid := 0
	for scanner.Scan() && lines < 1000 {
		lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(strings.SplitN(line, "|", 4)) == 4 {
			valid++
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "reading decompressed titles")
	}

	if valid < 100 {
		return errors.Errorf("only %d well-formed records in the first %d lines", valid, lines)
	}
	return nil
}

// Report summarizes the download gate state.
func (s *Service) Report(ctx context.Context) (Status, error) {
	st := Status{Source: s.source}

	last, err := s.lastDownload(ctx)
	if err != nil {
		return st, err
	}
	st.LastDownload = last

	if raw, err := s.metadata.Get(ctx, s.source, domain.MetaLastDownloadSize); err == nil && raw != "" {
		fmt.Sscanf(raw, "%d", &st.LastSize)
	}
	if raw, err := s.metadata.Get(ctx, s.source, domain.MetaLastDownloadStatus); err == nil {
		st.LastStatus = raw
	}
	if raw, err := s.metadata.Get(ctx, s.source, domain.MetaLastAttemptStatus); err == nil {
		st.AttemptStatus = raw
	}
	if raw, err := s.metadata.Get(ctx, s.source, domain.MetaLastAttemptMessage); err == nil {
		st.AttemptMessage = raw
	}

	if !last.IsZero() {
		st.NextAllowed = last.Add(s.protection)
		if remaining := st.NextAllowed.Sub(s.now()); remaining > 0 {
			st.Protected = true
			st.HoursRemaining = remaining.Hours()
		}
	}

	if _, err := os.Stat(s.titlesPath()); err == nil {
		st.FileInstalled = true
	}
	return st, nil
}

// NeedsDownload reports whether the installed titles file is missing, stale
// (older than a day) or implausibly small. It says nothing about the gate;
// Download still enforces the protection window.
func (s *Service) NeedsDownload(ctx context.Context) (bool, error) {
	info, err := os.Stat(s.titlesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.Wrap(err, "unable to stat titles file")
	}
	if info.Size() < 1024 {
		return true, nil
	}
	return s.now().Sub(info.ModTime()) > 24*time.Hour, nil
}
