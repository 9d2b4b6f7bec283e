package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/engine"
)

// ErrNoActiveRun is returned when a firing or run end arrives before any
// run was started.
var ErrNoActiveRun = errors.New("journal: no active run")

// WriteRun inserts a run row for info and returns the new run id.
// Runs are numbered by a journal-wide logical seq.
func (j *Journal) WriteRun(ctx context.Context, info engine.RunInfo) (string, error) {
	input, err := marshalDocument(info.Input)
	if err != nil {
		return "", fmt.Errorf("write run: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return "", fmt.Errorf("write run: next seq: %w", err)
	}

	id := j.runID.Generate()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, session_id, run_number, max_iterations, history_size, input)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		seq,
		info.Session,
		info.Run,
		info.MaxIterations,
		info.HistorySize,
		input,
	)
	if err != nil {
		return "", fmt.Errorf("write run: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("write run: commit: %w", err)
	}
	return id, nil
}

// WriteFiring inserts a firing and its effects. Returns the firing id and
// whether a new row was inserted.
//
// Uses ON CONFLICT(run_id, rule_index, binding_hash) DO NOTHING, mirroring
// the engine's firing history: a (rule, binding) pair fires at most once
// per run. A duplicate returns the existing id and inserted=false.
func (j *Journal) WriteFiring(ctx context.Context, runID string, f engine.Firing) (id int64, inserted bool, err error) {
	binding, err := marshalBinding(f.Binding)
	if err != nil {
		return 0, false, fmt.Errorf("write firing: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("write firing: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO firings
		(run_id, seq, iteration, rule_index, rule_name, rule_hash, binding_hash, binding, degree)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, rule_index, binding_hash) DO NOTHING
	`,
		runID,
		f.Seq,
		f.Iteration,
		f.RuleIndex,
		f.RuleName,
		f.RuleHash,
		f.BindingHash,
		binding,
		f.Degree,
	)
	if err != nil {
		return 0, false, fmt.Errorf("write firing: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("write firing: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM firings
			WHERE run_id = ? AND rule_index = ? AND binding_hash = ?
		`, runID, f.RuleIndex, f.BindingHash).Scan(&id)
		if err != nil {
			return 0, false, fmt.Errorf("write firing: select existing: %w", err)
		}
		return id, false, nil
	}

	id, err = result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("write firing: last insert id: %w", err)
	}

	for pos, eff := range f.Effects {
		args, err := marshalArgs(eff.Fact.Args)
		if err != nil {
			return 0, false, fmt.Errorf("write firing: effect %d: %w", pos, err)
		}
		key, err := factKey(eff.Fact.Predicate, eff.Fact.Args)
		if err != nil {
			return 0, false, fmt.Errorf("write firing: effect %d: %w", pos, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO provenance
			(firing_id, position, action, fact_key, predicate, args, degree, changed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			pos,
			eff.Kind.String(),
			key,
			eff.Fact.Predicate,
			args,
			eff.Fact.Degree,
			eff.Changed,
		)
		if err != nil {
			return 0, false, fmt.Errorf("write firing: effect %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("write firing: commit: %w", err)
	}
	return id, true, nil
}

// FinishRun stores the outcome of a run. runErr, when set, is kept as
// text.
func (j *Journal) FinishRun(ctx context.Context, runID string, stats engine.RunStats, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}

	result, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET state = ?, iterations = ?, firings = ?, facts_before = ?, facts_after = ?, error = ?
		WHERE id = ?
	`,
		stats.State.String(),
		stats.Iterations,
		stats.Firings,
		stats.FactsBefore,
		stats.FactsAfter,
		errText,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, sql.ErrNoRows)
	}
	return nil
}

// Recorder adapts a Journal to engine.Recorder. It binds the context used
// for writes, since the engine's recorder calls carry none.
type Recorder struct {
	journal *Journal
	ctx     context.Context
	current string
	runs    []string
}

var _ engine.Recorder = (*Recorder)(nil)

// BeginRun implements engine.Recorder.
func (r *Recorder) BeginRun(info engine.RunInfo) error {
	id, err := r.journal.WriteRun(r.ctx, info)
	if err != nil {
		return err
	}
	r.current = id
	r.runs = append(r.runs, id)
	return nil
}

// RecordFiring implements engine.Recorder.
func (r *Recorder) RecordFiring(f engine.Firing) error {
	if r.current == "" {
		return ErrNoActiveRun
	}
	_, _, err := r.journal.WriteFiring(r.ctx, r.current, f)
	return err
}

// EndRun implements engine.Recorder.
func (r *Recorder) EndRun(stats engine.RunStats, runErr error) error {
	if r.current == "" {
		return ErrNoActiveRun
	}
	id := r.current
	r.current = ""
	return r.journal.FinishRun(r.ctx, id, stats, runErr)
}

// RunIDs returns the ids of every run recorded so far, oldest first.
func (r *Recorder) RunIDs() []string {
	return append([]string(nil), r.runs...)
}

// LastRunID returns the id of the most recent run, or "".
func (r *Recorder) LastRunID() string {
	if len(r.runs) == 0 {
		return ""
	}
	return r.runs[len(r.runs)-1]
}
