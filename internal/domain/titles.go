package domain

import (
	"context"
	"strings"
	"time"
)

// TitleRecord is one title row for a source. NormalizedTitle is the lowercase
// form of Title and is the sole matching key.
type TitleRecord struct {
	ExternalID      int    `json:"external_id"`
	TitleType       int    `json:"title_type"`
	Language        string `json:"language"`
	Title           string `json:"title"`
	NormalizedTitle string `json:"-"`
}

// NewTitleRecord builds a record with its normalized form filled in.
func NewTitleRecord(externalID, titleType int, language, title string) TitleRecord {
	return TitleRecord{
		ExternalID:      externalID,
		TitleType:       titleType,
		Language:        language,
		Title:           title,
		NormalizedTitle: strings.ToLower(title),
	}
}

// TitleStats summarizes a source's title index.
type TitleStats struct {
	TotalTitles int64
	UniqueIDs   int64
	LastUpdate  time.Time
}

// TitleRepo is the per-source title index. Search runs tiered matching
// (exact, then prefix, then substring) and returns at most limit rows,
// deduplicated by external ID across tiers.
type TitleRepo interface {
	Search(ctx context.Context, source, query string, limit int) ([]TitleRecord, error)
	TitlesForID(ctx context.Context, source string, externalID int) ([]TitleRecord, error)
	BulkReplace(ctx context.Context, source string, records []TitleRecord) (int, error)
	Stats(ctx context.Context, source string) (TitleStats, error)
}
