package domain

import "context"

// AnimeDetails holds the parsed detail record for one anime.
type AnimeDetails struct {
	ID           int      `json:"id"`
	Type         string   `json:"type,omitempty"`
	EpisodeCount int      `json:"episodeCount,omitempty"`
	Title        string   `json:"title"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty"`
	Description  string   `json:"description,omitempty"`
	URL          string   `json:"url,omitempty"`
}

// SearchResult is one ranked row returned by a title search.
type SearchResult struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	TitleType int    `json:"titleType"`
}

// DetailsParser turns raw upstream payloads into typed records. The upstream
// wire format is owned by the collaborator, not this module.
type DetailsParser interface {
	ParseDetails(raw []byte) (*AnimeDetails, error)
	ParseSearchResults(raw []byte) ([]SearchResult, error)
}

// TitlesFetcher returns the raw bytes of the bulk titles file.
type TitlesFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// NotificationService delivers operational alerts. Implementations must be
// safe to call with no channel configured.
type NotificationService interface {
	SendTaskFailure(ctx context.Context, task string, err error) error
	SendDownloadEvent(ctx context.Context, status DownloadStatus, message string) error
}
