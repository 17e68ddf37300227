package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	return &Config{
		DatabasePath:   filepath.Join(t.TempDir(), "test.db"),
		MigrationTable: "schema_migrations",
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(testConfig(t), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestOpen_CreatesSchema(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"agent_runs", "run_events", "commits", "schema_migrations"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q should exist after Open", table)
	}
}

func TestOpen_VerifiesMandatoryPragmas(t *testing.T) {
	s := openTestStore(t)

	for name, want := range requiredPragmas {
		var got string

		err := s.db.QueryRow("PRAGMA " + name).Scan(&got)
		require.NoError(t, err)
		assert.Equal(t, want, got, "pragma %s", name)
	}
}

func TestOpen_IdempotentAcrossReopen(t *testing.T) {
	config := testConfig(t)

	s1, err := Open(config, nil)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(config, nil)
	require.NoError(t, err)
	defer s2.Close()

	var count int
	err = s2.db.QueryRow("SELECT COUNT(*) FROM agent_runs").Scan(&count)
	assert.NoError(t, err)
	assert.Zero(t, count)
}

func TestOpen_RejectsEmptyPath(t *testing.T) {
	_, err := Open(&Config{MigrationTable: "schema_migrations"}, nil)
	assert.ErrorIs(t, err, ErrDatabasePathEmpty)
}

func TestIntegrityCheck_HealthyStore(t *testing.T) {
	s := openTestStore(t)

	assert.NoError(t, s.IntegrityCheck(context.Background()))
}
