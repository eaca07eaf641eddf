package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/varoOP/anicachedb/internal/config"
	"github.com/varoOP/anicachedb/internal/database"
	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/download"
	"github.com/varoOP/anicachedb/internal/logger"
	"github.com/varoOP/anicachedb/internal/memcache"
	"github.com/varoOP/anicachedb/internal/notification"
	"github.com/varoOP/anicachedb/internal/scheduler"
	"github.com/varoOP/anicachedb/internal/tiered"
	"github.com/varoOP/anicachedb/internal/titles"
	"github.com/varoOP/anicachedb/internal/translog"
)

// App holds the fully wired service graph. Everything hangs off this struct;
// there is no package-level state.
type App struct {
	log    zerolog.Logger
	config *domain.Config

	db          *database.DB
	maintenance *database.Maintenance

	Cache     *tiered.Cache
	Titles    *titles.Service
	Download  *download.Service
	Translog  *translog.Service
	Scheduler *scheduler.Scheduler

	notifier domain.NotificationService
}

// NewApp creates an application instance with all dependencies initialized.
func NewApp(logLevel, userAgent string) (*App, error) {
	log := logger.NewWithLevel(logLevel)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.NewDB(cfg.DatabaseDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.InitSource(context.Background(), cfg.Source); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize source %q: %w", cfg.Source, err)
	}

	cacheRepo := database.NewCacheRepo(log, db)
	titleRepo := database.NewTitleRepo(log, db)
	metadataRepo := database.NewMetadataRepo(log, db)
	txRepo := database.NewTransactionRepo(log, db)
	maintenance := database.NewMaintenance(log, db)

	notifier := notification.NewService(log, cfg.DiscordWebhookURL)

	translogSvc := translog.NewService(log, txRepo)
	memory := memcache.New(log, cfg.MaxMemoryEntries, cfg.MemoryTTL)
	cache := tiered.New(log, memory, cacheRepo, cfg.MemoryTTL, cfg.PersistentTTL)

	titlesSvc := titles.NewService(log, titleRepo, translogSvc, cfg.DefaultLimit, cfg.MaxLimit)

	fetcher := download.NewHTTPFetcher(userAgent)
	downloadSvc := download.NewService(log, fetcher, metadataRepo, titlesSvc, notifier, cfg)

	sched := scheduler.New(log, scheduler.NewClock(), notifier, scheduler.DefaultWakeInterval)
	if err := scheduler.RegisterMaintenanceTasks(sched, scheduler.MaintenanceDeps{
		Maintenance: maintenance,
		Cache:       cache,
		Translog:    translogSvc,
		Files:       downloadSvc,
		Retention:   cfg.RetentionDays,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register maintenance tasks: %w", err)
	}
	if err := scheduler.RegisterAnalyticsTasks(sched, scheduler.AnalyticsDeps{
		Translog:   translogSvc,
		ReportPath: cfg.ReportPath,
		Limit:      cfg.DefaultLimit,
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register analytics tasks: %w", err)
	}

	return &App{
		log:         log,
		config:      cfg,
		db:          db,
		maintenance: maintenance,
		Cache:       cache,
		Titles:      titlesSvc,
		Download:    downloadSvc,
		Translog:    translogSvc,
		Scheduler:   sched,
		notifier:    notifier,
	}, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *domain.Config { return a.config }

// Maintenance exposes the housekeeping operations for manual runs.
func (a *App) Maintenance() *database.Maintenance { return a.maintenance }

// DatabasePath returns the location of the database file.
func (a *App) DatabasePath() string { return a.db.Path() }

// Run starts the schedulers and blocks until ctx is canceled. An in-flight
// scheduled task finishes before Run returns.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().
		Str("source", a.config.Source).
		Str("database", a.db.Path()).
		Msg("starting")

	a.Scheduler.Start(ctx)
	<-ctx.Done()
	a.Scheduler.Stop()

	a.log.Info().Msg("shutting down")
	return nil
}

// Search runs a title search for the configured source.
func (a *App) Search(ctx context.Context, query string, limit int, clientID string) ([]domain.SearchResult, error) {
	return a.Titles.Search(ctx, a.config.Source, query, limit, clientID)
}

// AnalyticsReport builds the analytics report over the trailing window.
func (a *App) AnalyticsReport(ctx context.Context, window time.Duration, limit int) (*translog.Report, error) {
	return a.Translog.BuildReport(ctx, "", time.Now().Add(-window), limit)
}

// Close releases the database.
func (a *App) Close() error {
	return a.db.Close()
}
