package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/varoOP/anicachedb/internal/database"
	"github.com/varoOP/anicachedb/internal/domain"
)

// Defaults tuned for the AniDB titles workflow. The protection window
// matches the upstream provider's published rate limit.
const (
	DefaultSource            = "anidb"
	DefaultTitlesURL         = "https://anidb.net/api/anime-titles.dat.gz"
	DefaultMemoryTTL         = time.Hour
	DefaultPersistentTTL     = 48 * time.Hour
	DefaultMaxMemoryEntries  = 1000
	DefaultProtectionHours   = 36
	DefaultRetentionDays     = 30
	DefaultMinTitlesFileSize = 100 * 1024
	DefaultLimit             = 10
	DefaultMaxLimit          = 20
)

// Load builds the configuration from the config file and environment
// variables (ANICACHEDB_*), applying defaults for everything unset.
func Load() (*domain.Config, error) {
	viper.SetDefault("source", DefaultSource)
	viper.SetDefault("database_dir", ".")
	viper.SetDefault("cache_dir", "./titles_cache")
	viper.SetDefault("titles_url", DefaultTitlesURL)
	viper.SetDefault("memory_ttl", DefaultMemoryTTL)
	viper.SetDefault("persistent_ttl", DefaultPersistentTTL)
	viper.SetDefault("max_memory_entries", DefaultMaxMemoryEntries)
	viper.SetDefault("protection_hours", DefaultProtectionHours)
	viper.SetDefault("retention_days", DefaultRetentionDays)
	viper.SetDefault("min_titles_file_size", DefaultMinTitlesFileSize)
	viper.SetDefault("default_limit", DefaultLimit)
	viper.SetDefault("max_limit", DefaultMaxLimit)

	cfg := &domain.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *domain.Config) error {
	if err := database.ValidateSource(cfg.Source); err != nil {
		return fmt.Errorf("invalid source name %q: letters, digits and underscores only, starting with a letter", cfg.Source)
	}
	if cfg.MemoryTTL <= 0 {
		return fmt.Errorf("memory_ttl must be positive")
	}
	if cfg.PersistentTTL < cfg.MemoryTTL {
		return fmt.Errorf("persistent_ttl must be at least memory_ttl")
	}
	if cfg.MaxMemoryEntries <= 0 {
		return fmt.Errorf("max_memory_entries must be positive")
	}
	if cfg.ProtectionHours < 0 {
		return fmt.Errorf("protection_hours must not be negative")
	}
	if cfg.DefaultLimit <= 0 || cfg.MaxLimit < cfg.DefaultLimit {
		return fmt.Errorf("default_limit must be positive and max_limit must be at least default_limit")
	}
	return nil
}
