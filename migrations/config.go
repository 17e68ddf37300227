package main

import (
	"errors"
	"fmt"
	"os"
)

// Static errors for validation.
var (
	ErrDatabasePathEmpty   = errors.New("DATABASE_PATH cannot be empty")
	ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config holds all configuration for the migration tool.
type Config struct {
	// DatabasePath is the filesystem path to the embedded SQLite-class store file.
	DatabasePath string

	// MigrationTable is the name of the table to track migrations.
	MigrationTable string
}

// LoadConfig loads configuration from environment variables with sensible defaults.
func LoadConfig() (*Config, error) {
	config := &Config{
		DatabasePath:   getEnvOrDefault("DATABASE_PATH", ""),
		MigrationTable: getEnvOrDefault("MIGRATION_TABLE", "schema_migrations"),
	}

	err := config.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrDatabasePathEmpty
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String returns a string representation of the configuration (safe for logging;
// unlike a connection URL, a filesystem path carries no embedded credentials).
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabasePath: %s, MigrationTable: %s}",
		c.DatabasePath, c.MigrationTable)
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}
