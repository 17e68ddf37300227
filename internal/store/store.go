// Package store provides the embedded relational store for agent-run
// telemetry: schema migrations, the durability pragmas §4.1 mandates, and
// the Store contract (insertRun, updateRun, getRun, queryRuns,
// associateCommit, listDistinctAgents, listDistinctJobTypes,
// integrityCheck, migrateTo) the HTTP layer and sync worker build on.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/mattn/go-sqlite3" // embedded SQLite-class driver

	"github.com/telemetry-run/telemetryd/internal/schema"
)

// requiredPragmas are verified against the live connection on Open. Values
// are the exact strings/numbers SQLite's PRAGMA reports back, not the
// values used to request them.
var requiredPragmas = map[string]string{
	"journal_mode": "delete",
	"synchronous":  "2", // FULL
	"busy_timeout": "30000",
}

// ErrPragmaMismatch indicates a mandatory durability pragma did not take
// effect; opening the store refuses to proceed rather than run with a
// weaker durability guarantee than the engine promises.
var ErrPragmaMismatch = errors.New("mandatory pragma not in effect")

// Store is the embedded single-writer relational store for agent runs.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	config *Config
}

// Open opens (creating if absent) the store at config.DatabasePath, applies
// the mandatory pragmas, verifies they took effect, and brings the schema
// up to date via the embedded migrations in internal/schema.
func Open(config *Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", config.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// The engine enforces a single writer; a second connection would just
	// contend with the first for the same lock.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	if err := verifyPragmas(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	s := &Store{db: db, logger: logger, config: config}

	if err := s.migrateTo(config.MigrationTable, -1); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to migrate store schema: %w", err)
	}

	return s, nil
}

// Close closes the underlying connection. Safe to call once.
func (s *Store) Close() error {
	return s.db.Close()
}

// verifyPragmas confirms the mandatory durability settings took effect.
// SQLite will silently ignore an unsupported pragma value rather than
// error, so the only reliable check is reading it back.
func verifyPragmas(db *sql.DB) error {
	for name, want := range requiredPragmas {
		var got string

		if err := db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&got); err != nil {
			return fmt.Errorf("failed to read pragma %s: %w", name, err)
		}

		if got != want {
			return fmt.Errorf("%w: %s = %q, want %q", ErrPragmaMismatch, name, got, want)
		}
	}

	return nil
}

// migrateTo brings the schema to version, or to the latest embedded
// migration when version is -1. Migrations are forward-only (§4.1); there
// is no supported path back down once run from the service.
func (s *Store) migrateTo(migrationTable string, version int) error {
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{MigrationsTable: migrationTable})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(schema.Migrations, ".")
	if err != nil {
		return fmt.Errorf("failed to open embedded schema: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if version < 0 {
		err = m.Up()
	} else {
		if cur, _, verr := m.Version(); verr == nil && uint(version) < cur { // #nosec G115 - version is non-negative
			return fmt.Errorf("migration failed: schema is at version %d, cannot migrate down to %d", cur, version)
		}

		err = m.Migrate(uint(version)) // #nosec G115 - version is caller-controlled, non-negative
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// MigrateTo is the exported form of migrateTo (§4.1 Store contract), using
// the store's own configured migration table.
func (s *Store) MigrateTo(version int) error {
	return s.migrateTo(s.config.MigrationTable, version)
}

// IntegrityCheck runs SQLite's built-in consistency check and reports any
// corruption found. A healthy store returns a single "ok" row.
func (s *Store) IntegrityCheck(ctx context.Context) error {
	var result string

	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to run integrity check: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrIntegrityCheckFailed, result)
	}

	return nil
}

// ErrIntegrityCheckFailed indicates PRAGMA integrity_check reported damage.
var ErrIntegrityCheckFailed = errors.New("store integrity check failed")
