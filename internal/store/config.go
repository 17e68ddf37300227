package store

import (
	"errors"
	"fmt"

	"github.com/telemetry-run/telemetryd/internal/config"
)

// ErrDatabasePathEmpty is returned when the store path is an empty string.
var ErrDatabasePathEmpty = errors.New("TELEMETRY_DB_PATH cannot be empty")

// dsnPragmas are appended to every store connection so the mandatory
// durability settings (§4.1: DELETE journal mode, FULL sync, a busy timeout
// tolerant of lock contention) hold regardless of how the path is opened.
const dsnPragmas = "?_journal_mode=DELETE&_synchronous=FULL&_busy_timeout=30000"

// Config holds the configuration needed to open the embedded store.
type Config struct {
	// DatabasePath is the filesystem path to the single-file store.
	DatabasePath string

	// MigrationTable is the name of the table golang-migrate uses to track
	// applied schema versions.
	MigrationTable string
}

// LoadConfig loads store configuration from environment variables (§6:
// TELEMETRY_DB_PATH, TELEMETRY_MIGRATION_TABLE).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabasePath:   config.GetEnvStr("TELEMETRY_DB_PATH", ""),
		MigrationTable: config.GetEnvStr("TELEMETRY_MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrDatabasePathEmpty
	}

	return nil
}

// dsn returns the sql.Open data source name for this configuration, with
// the mandatory pragmas attached.
func (c *Config) dsn() string {
	return c.DatabasePath + dsnPragmas
}
