package titles

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/domain"
)

// minQueryLength is the shortest query worth hitting the index for.
const minQueryLength = 2

// SearchLogger records completed searches. Implementations must never fail
// the search on a logging problem.
type SearchLogger interface {
	LogSearch(ctx context.Context, tx domain.SearchTransaction)
}

// Service runs title searches over the per-source index and records each
// search in the transaction log.
type Service struct {
	log          zerolog.Logger
	repo         domain.TitleRepo
	searchLog    SearchLogger
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

func NewService(log zerolog.Logger, repo domain.TitleRepo, searchLog SearchLogger, defaultLimit, maxLimit int) *Service {
	return &Service{
		log:          log.With().Str("module", "titles").Logger(),
		repo:         repo,
		searchLog:    searchLog,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		now:          time.Now,
	}
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// Search runs a tiered title search. Queries shorter than two characters
// return no results without touching the index.
func (s *Service) Search(ctx context.Context, source, query string, limit int, clientID string) ([]domain.SearchResult, error) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < minQueryLength {
		return []domain.SearchResult{}, nil
	}
	limit = s.clampLimit(limit)

	start := s.now()
	records, err := s.repo.Search(ctx, source, trimmed, limit)
	elapsed := s.now().Sub(start)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(records))
	for _, rec := range records {
		results = append(results, domain.SearchResult{
			ID:        rec.ExternalID,
			Title:     rec.Title,
			Language:  rec.Language,
			TitleType: rec.TitleType,
		})
	}

	if s.searchLog != nil {
		s.searchLog.LogSearch(ctx, domain.SearchTransaction{
			Timestamp:      start,
			Source:         source,
			Query:          trimmed,
			ResultCount:    len(results),
			ResponseTimeMS: float64(elapsed.Microseconds()) / 1000.0,
			ClientID:       clientID,
		})
	}

	s.log.Debug().
		Str("source", source).
		Str("query", trimmed).
		Int("results", len(results)).
		Dur("elapsed", elapsed).
		Msg("title search")

	return results, nil
}

// TitlesForID returns every known title for one external ID.
func (s *Service) TitlesForID(ctx context.Context, source string, externalID int) ([]domain.TitleRecord, error) {
	return s.repo.TitlesForID(ctx, source, externalID)
}

// LoadFromFile parses a gzip titles file and atomically replaces the
// source's title index with its contents.
func (s *Service) LoadFromFile(ctx context.Context, source, path string) (int, error) {
	records, err := parseTitlesFile(path, s.log)
	if err != nil {
		return 0, err
	}
	return s.repo.BulkReplace(ctx, source, records)
}

// Stats summarizes the source's title index.
func (s *Service) Stats(ctx context.Context, source string) (domain.TitleStats, error) {
	return s.repo.Stats(ctx, source)
}
