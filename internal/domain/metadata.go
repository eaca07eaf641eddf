package domain

import "context"

// Well-known per-source metadata keys.
const (
	MetaLastDownloadTimestamp = "last_download_timestamp"
	MetaLastDownloadSize      = "last_download_size"
	MetaLastDownloadStatus    = "last_download_status"
	MetaLastAttemptStatus     = "last_download_attempt_status"
	MetaLastAttemptMessage    = "last_download_attempt_message"
	MetaLastTitlesUpdate      = "last_titles_update"
	MetaTitleCount            = "title_count"
)

// DownloadStatus classifies entries in the download audit trail.
type DownloadStatus string

const (
	DownloadStarted         DownloadStatus = "started"
	DownloadSuccess         DownloadStatus = "success"
	DownloadFailed          DownloadStatus = "failed"
	DownloadBlocked         DownloadStatus = "blocked"
	DownloadProtectionReset DownloadStatus = "protection_reset"
)

// MetadataRepo is the per-source key/value metadata store. Get returns an
// empty string for absent keys.
type MetadataRepo interface {
	Get(ctx context.Context, source, key string) (string, error)
	Set(ctx context.Context, source, key, value string) error
	Delete(ctx context.Context, source, key string) error
}
