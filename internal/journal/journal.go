// Package journal records inference runs in a SQLite database.
//
// The journal is an append-only diagnostic log with three tables:
//   - runs: one row per engine run, holding the input knowledge base
//   - firings: one row per (rule, binding) pair applied during a run
//   - provenance: one row per action effect of a firing
//
// The engine never reads facts back from the journal. Its uses are
// tracing (which rule raised a fact, and when) and replay, which re-runs a
// stored input on a fresh engine and checks the firing sequence matches.
//
// # Ordering
//
// All reads order by logical seq columns, never timestamps, so results are
// identical across machines.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fuzzyinfer/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema
// 1 - Added index on provenance.fact_key for fact lookups
// 2 - Added firings.rule_hash; provenance.fact_key holds ir.FactID
const currentSchemaVersion = 2

// Journal provides durable storage for run records.
type Journal struct {
	db    *sql.DB
	runID engine.SessionGenerator
}

// Option configures a Journal.
type Option func(*Journal)

// WithRunIDs sets the generator for run ids (default UUIDv7).
func WithRunIDs(g engine.SessionGenerator) Option {
	return func(j *Journal) {
		j.runID = g
	}
}

// Open creates or opens a journal database at path.
// Applies required pragmas and migrations automatically, so it is safe to
// call on an existing journal.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db, runID: engine.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Recorder returns an engine.Recorder that writes every run it observes
// to the journal using ctx.
func (j *Journal) Recorder(ctx context.Context) *Recorder {
	return &Recorder{journal: j, ctx: ctx}
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := migrateToV2(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_provenance_fact
		ON provenance(fact_key)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// migrateToV2 adds firings.rule_hash to journals created before it was in
// the schema and rewrites provenance.fact_key to ir.FactID. Firings written
// before v2 keep an empty rule hash.
func migrateToV2(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v2: begin tx: %w", err)
	}
	defer tx.Rollback()

	var hasColumn int
	err = tx.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('firings') WHERE name = 'rule_hash'`).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("migrate to v2: inspect firings: %w", err)
	}
	if hasColumn == 0 {
		if _, err := tx.Exec(`ALTER TABLE firings ADD COLUMN rule_hash TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("migrate to v2: add rule_hash: %w", err)
		}
	}

	type rekey struct {
		id  int64
		key string
	}
	rows, err := tx.Query(`SELECT id, predicate, args FROM provenance`)
	if err != nil {
		return fmt.Errorf("migrate to v2: query provenance: %w", err)
	}
	var updates []rekey
	for rows.Next() {
		var (
			id         int64
			pred, args string
		)
		if err := rows.Scan(&id, &pred, &args); err != nil {
			rows.Close()
			return fmt.Errorf("migrate to v2: scan provenance: %w", err)
		}
		atoms, err := unmarshalArgs(args)
		if err != nil {
			rows.Close()
			return fmt.Errorf("migrate to v2: provenance %d: %w", id, err)
		}
		key, err := factKey(pred, atoms)
		if err != nil {
			rows.Close()
			return fmt.Errorf("migrate to v2: provenance %d: %w", id, err)
		}
		updates = append(updates, rekey{id: id, key: key})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("migrate to v2: iterate provenance: %w", err)
	}
	rows.Close()

	for _, u := range updates {
		if _, err := tx.Exec(`UPDATE provenance SET fact_key = ? WHERE id = ?`, u.key, u.id); err != nil {
			return fmt.Errorf("migrate to v2: update provenance %d: %w", u.id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate to v2: commit: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (j *Journal) verifyPragma(name, expected string) error {
	var value string
	if err := j.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
