package database

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// HealthReport is the outcome of a quick database health check.
type HealthReport struct {
	Reachable     bool
	QuickCheckOK  bool
	FileSizeBytes int64
	CacheEntries  int64
	Transactions  int64
}

// Maintenance runs the periodic housekeeping operations against the store.
type Maintenance struct {
	log zerolog.Logger
	db  *DB
}

func NewMaintenance(log zerolog.Logger, db *DB) *Maintenance {
	return &Maintenance{
		log: log.With().Str("repo", "maintenance").Logger(),
		db:  db,
	}
}

func (m *Maintenance) fileSize() int64 {
	info, err := os.Stat(m.db.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Vacuum rebuilds the database file and reports the bytes reclaimed.
// VACUUM cannot run inside a transaction, so the exclusive lock here keeps
// other writers out for its duration.
func (m *Maintenance) Vacuum(ctx context.Context) (int64, error) {
	m.db.lock.Lock()
	defer m.db.lock.Unlock()

	before := m.fileSize()
	if _, err := m.db.handler.ExecContext(ctx, "VACUUM"); err != nil {
		return 0, errors.Wrap(err, "vacuum failed")
	}
	reclaimed := before - m.fileSize()
	if reclaimed < 0 {
		reclaimed = 0
	}

	m.log.Info().Int64("reclaimed_bytes", reclaimed).Msg("vacuum complete")
	return reclaimed, nil
}

// Analyze refreshes the query planner statistics.
func (m *Maintenance) Analyze(ctx context.Context) error {
	if _, err := m.db.handler.ExecContext(ctx, "ANALYZE"); err != nil {
		return errors.Wrap(err, "analyze failed")
	}
	m.log.Debug().Msg("analyze complete")
	return nil
}

// HealthCheck pings the connection, runs a single-error quick check and
// gathers basic size counters. It reports problems rather than failing on
// them so the scheduler can log a degraded state.
func (m *Maintenance) HealthCheck(ctx context.Context) (HealthReport, error) {
	report := HealthReport{FileSizeBytes: m.fileSize()}

	if err := m.db.handler.PingContext(ctx); err != nil {
		return report, errors.Wrap(err, "database unreachable")
	}
	report.Reachable = true

	var result string
	if err := m.db.handler.QueryRowContext(ctx, "PRAGMA quick_check(1)").Scan(&result); err != nil {
		return report, errors.Wrap(err, "quick check failed")
	}
	report.QuickCheckOK = result == "ok"

	row := m.db.handler.QueryRowContext(ctx,
		"SELECT (SELECT COUNT(*) FROM persistent_cache), (SELECT COUNT(*) FROM search_transactions)")
	if err := row.Scan(&report.CacheEntries, &report.Transactions); err != nil {
		return report, errors.Wrap(err, "count tables")
	}

	if !report.QuickCheckOK {
		m.log.Warn().Str("result", result).Msg("quick check reported a problem")
	}
	return report, nil
}

// IntegrityCheck runs the full integrity check and returns ErrCorruption
// context when it reports anything but ok.
func (m *Maintenance) IntegrityCheck(ctx context.Context) error {
	m.db.lock.RLock()
	defer m.db.lock.RUnlock()

	rows, err := m.db.handler.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return errors.Wrap(err, "integrity check failed to run")
	}
	defer rows.Close()

	var problems []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return errors.Wrap(err, "integrity check scan")
		}
		if line != "ok" {
			problems = append(problems, line)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "integrity check rows")
	}

	if len(problems) > 0 {
		m.log.Error().Strs("problems", problems).Msg("integrity check failed")
		return errors.Errorf("integrity check reported %d problems", len(problems))
	}

	m.log.Debug().Msg("integrity check passed")
	return nil
}
