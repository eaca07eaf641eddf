package domain

import "time"

type Config struct {
	Source            string        `mapstructure:"source"`
	DatabaseDir       string        `mapstructure:"database_dir"`
	CacheDir          string        `mapstructure:"cache_dir"`
	TitlesURL         string        `mapstructure:"titles_url"`
	MemoryTTL         time.Duration `mapstructure:"memory_ttl"`
	PersistentTTL     time.Duration `mapstructure:"persistent_ttl"`
	MaxMemoryEntries  int           `mapstructure:"max_memory_entries"`
	ProtectionHours   int           `mapstructure:"protection_hours"`
	RetentionDays     int           `mapstructure:"retention_days"`
	MinTitlesFileSize int64         `mapstructure:"min_titles_file_size"`
	DefaultLimit      int           `mapstructure:"default_limit"`
	MaxLimit          int           `mapstructure:"max_limit"`
	ReportPath        string        `mapstructure:"report_path"`
	DiscordWebhookURL string        `mapstructure:"discord_webhook_url"`
}
