package database

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// timeLayout is RFC 3339 with fixed nanosecond width so stored UTC
// timestamps compare correctly as strings inside SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t, nil
}

// DB wraps the embedded SQLite store shared by the durable cache, the title
// index, per-source metadata and the transaction log.
type DB struct {
	handler  *sql.DB
	log      zerolog.Logger
	lock     sync.RWMutex
	squirrel sq.StatementBuilderType
	path     string
	sources  map[string]bool
}

// NewDB opens (creating if needed) the database in dir and migrates the
// schema to the current version.
func NewDB(dir string, log zerolog.Logger) (*DB, error) {
	db := &DB{
		log:      log.With().Str("module", "database").Logger(),
		squirrel: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		path:     filepath.Join(dir, "anicachedb.db"),
		sources:  make(map[string]bool),
	}

	dsn := db.path + "?_pragma=busy_timeout%3d1000"

	var err error
	db.handler, err = sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to database")
	}

	if _, err = db.handler.Exec(`PRAGMA journal_mode = wal;`); err != nil {
		return nil, errors.Wrap(err, "unable to enable WAL mode")
	}
	if _, err = db.handler.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, errors.Wrap(err, "unable to enable foreign keys")
	}

	if err := db.Migrate(); err != nil {
		db.handler.Close()
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return db, nil
}

// Migrate creates or upgrades the schema using PRAGMA user_version
// versioning.
func (db *DB) Migrate() error {
	db.lock.Lock()
	defer db.lock.Unlock()

	var version int
	if err := db.handler.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return errors.Wrap(err, "failed to query schema version")
	}

	if version == len(migrations) {
		return nil
	} else if version > len(migrations) {
		return errors.Errorf("database schema version (%d) is newer than supported (%d)", version, len(migrations))
	}

	db.log.Info().Msgf("Beginning database schema upgrade from version %v to version: %v", version, len(migrations))

	tx, err := db.handler.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if version == 0 {
		if _, err := tx.Exec(schema); err != nil {
			return errors.Wrap(err, "failed to initialize schema")
		}
		db.log.Info().Msg("Created initial database schema")
	} else {
		for i := version; i < len(migrations); i++ {
			if migrations[i] == "" {
				continue
			}
			db.log.Info().Msgf("Upgrading database schema to version: %v", i+1)
			if _, err := tx.Exec(migrations[i]); err != nil {
				return errors.Wrapf(err, "failed to execute migration #%v", i)
			}
		}
	}

	_, err = tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", len(migrations)))
	if err != nil {
		return errors.Wrap(err, "failed to bump schema version")
	}

	db.log.Info().Msgf("Database schema upgraded to version: %v", len(migrations))
	return tx.Commit()
}

// InitSource creates the per-source titles and metadata tables if they do not
// exist. The source name is validated before any statement is built.
func (db *DB) InitSource(ctx context.Context, source string) error {
	titlesTable, err := db.tableFor(source, TableTitles)
	if err != nil {
		return err
	}
	metadataTable, err := db.tableFor(source, TableMetadata)
	if err != nil {
		return err
	}

	db.lock.Lock()
	defer db.lock.Unlock()

	if db.sources[source] {
		return nil
	}

	tx, err := db.handler.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, stmt := range sourceSchema(source, titlesTable, metadataTable) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to create source objects for %q", source)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit source schema")
	}

	db.sources[source] = true
	db.log.Debug().Str("source", source).Msg("source tables ready")
	return nil
}

// Close flushes the query planner state and closes the connection.
func (db *DB) Close() error {
	if _, err := db.handler.Exec(`PRAGMA optimize;`); err != nil {
		return errors.Wrap(err, "query planner optimization")
	}
	return db.handler.Close()
}

// Ping checks that the database connection is alive.
func (db *DB) Ping() error {
	return db.handler.Ping()
}

// Path returns the location of the database file.
func (db *DB) Path() string {
	return db.path
}
