package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/ir"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	for i := 0; i < 3; i++ {
		j, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		require.NoError(t, j.Close())
	}

	j, err := Open(path)
	require.NoError(t, err)
	defer j.Close()

	for _, table := range []string{"runs", "firings", "provenance"} {
		var name string
		err := j.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after repeated opens", table)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	j := createTestJournal(t)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"},
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, j.verifyPragma(tt.name, tt.expected))
		})
	}
}

func TestOpen_SchemaVersion(t *testing.T) {
	j := createTestJournal(t)

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var index string
	err := j.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_provenance_fact'",
	).Scan(&index)
	assert.NoError(t, err)
}

func TestOpen_MigratesV1Journal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(path, WithRunIDs(engine.NewFixedGenerator("run-1")))
	require.NoError(t, err)
	e, _ := runRecorded(t, j, zebraKB())
	require.NoError(t, e.Run())

	// Rewind to the v1 layout: no rule_hash column, raw fact keys.
	for _, stmt := range []string{
		"ALTER TABLE firings DROP COLUMN rule_hash",
		"UPDATE provenance SET fact_key = 'raw'",
		"PRAGMA user_version = 1",
	} {
		_, err := j.db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	var version int
	require.NoError(t, j.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var hasColumn int
	require.NoError(t, j.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('firings') WHERE name = 'rule_hash'",
	).Scan(&hasColumn))
	assert.Equal(t, 1, hasColumn)

	var key string
	require.NoError(t, j.db.QueryRow(`SELECT fact_key FROM provenance WHERE predicate = 'fast'`).Scan(&key))
	want, err := ir.FactID("fast", ir.Atoms("zed"))
	require.NoError(t, err)
	assert.Equal(t, want, key)

	f, ok, err := j.Provenance(ctx, "run-1", "fast", ir.Atoms("zed"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fast", f.RuleName)
	assert.Empty(t, f.RuleHash)

	res, err := j.Replay(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, res.Match)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	assert.Error(t, err)
}

func TestClose_NilDB(t *testing.T) {
	j := &Journal{}
	assert.NoError(t, j.Close())
}
