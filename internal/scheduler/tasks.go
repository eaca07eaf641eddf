package scheduler

import (
	"context"
	"time"

	"github.com/varoOP/anicachedb/internal/database"
	"github.com/varoOP/anicachedb/internal/domain"
	"github.com/varoOP/anicachedb/internal/tiered"
	"github.com/varoOP/anicachedb/internal/translog"
)

// FileIntegrityChecker verifies an installed artifact on disk.
type FileIntegrityChecker interface {
	VerifyIntegrity(ctx context.Context) error
}

// MaintenanceDeps are the collaborators the standard maintenance tasks need.
type MaintenanceDeps struct {
	Maintenance *database.Maintenance
	Cache       *tiered.Cache
	Translog    *translog.Service
	Files       FileIntegrityChecker
	Retention   int
}

// RegisterMaintenanceTasks adds the standard housekeeping schedule. Priority
// ordering puts the cheap health probe first and the expensive integrity
// sweep last within a wake cycle.
func RegisterMaintenanceTasks(s *Scheduler, deps MaintenanceDeps) error {
	tasks := []Task{
		{
			Name:     "health_check",
			Interval: 6 * time.Hour,
			Priority: 1,
			Run: func(ctx context.Context) error {
				report, err := deps.Maintenance.HealthCheck(ctx)
				if err != nil {
					return err
				}
				if !report.QuickCheckOK {
					return domain.ErrCorruption
				}
				return nil
			},
		},
		{
			Name:     "analyze",
			Interval: 24 * time.Hour,
			Priority: 2,
			Run: func(ctx context.Context) error {
				return deps.Maintenance.Analyze(ctx)
			},
		},
		{
			Name:     "vacuum",
			Interval: 168 * time.Hour,
			Priority: 3,
			Run: func(ctx context.Context) error {
				_, err := deps.Maintenance.Vacuum(ctx)
				return err
			},
		},
		{
			Name:     "cache_cleanup",
			Interval: time.Hour,
			Priority: 4,
			Run: func(ctx context.Context) error {
				deps.Cache.CleanupExpired(ctx)
				return nil
			},
		},
		{
			Name:     "transaction_cleanup",
			Interval: 24 * time.Hour,
			Priority: 5,
			Run: func(ctx context.Context) error {
				_, err := deps.Translog.Cleanup(ctx, deps.Retention)
				return err
			},
		},
		{
			Name:     "integrity_check",
			Interval: 168 * time.Hour,
			Priority: 6,
			Run: func(ctx context.Context) error {
				if err := deps.Maintenance.IntegrityCheck(ctx); err != nil {
					return err
				}
				if deps.Files != nil {
					return deps.Files.VerifyIntegrity(ctx)
				}
				return nil
			},
		},
	}

	for _, task := range tasks {
		if err := s.Register(task); err != nil {
			return err
		}
	}
	return nil
}

// AnalyticsDeps are the collaborators for the reporting task.
type AnalyticsDeps struct {
	Translog   *translog.Service
	ReportPath string
	Limit      int
}

// RegisterAnalyticsTasks adds the daily report export. With no report path
// configured nothing is registered.
func RegisterAnalyticsTasks(s *Scheduler, deps AnalyticsDeps) error {
	if deps.ReportPath == "" {
		return nil
	}

	return s.Register(Task{
		Name:     "daily_report",
		Interval: 24 * time.Hour,
		Priority: 7,
		Run: func(ctx context.Context) error {
			since := time.Now().Add(-24 * time.Hour)
			report, err := deps.Translog.BuildReport(ctx, "", since, deps.Limit)
			if err != nil {
				return err
			}
			return deps.Translog.ExportReport(report, deps.ReportPath)
		},
	})
}
