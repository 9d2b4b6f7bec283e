package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("journal: run not found")

// Run is a stored run.
type Run struct {
	ID            string      `json:"id"`
	Seq           int64       `json:"seq"`
	Session       string      `json:"session"`
	Number        int         `json:"run"`
	MaxIterations int         `json:"max_iterations"`
	HistorySize   int         `json:"history_size"`
	State         string      `json:"state"`
	Iterations    int         `json:"iterations"`
	Firings       int         `json:"firings"`
	FactsBefore   int         `json:"facts_before"`
	FactsAfter    int         `json:"facts_after"`
	Error         string      `json:"error,omitempty"`
	Input         ir.Document `json:"-"`
}

// Firing is a stored firing with its effects.
type Firing struct {
	ID          int64          `json:"id"`
	Seq         int64          `json:"seq"`
	Iteration   int            `json:"iteration"`
	RuleIndex   int            `json:"rule_index"`
	RuleName    string         `json:"rule_name"`
	RuleHash    string         `json:"rule_hash,omitempty"`
	BindingHash string         `json:"binding_hash"`
	Binding     map[string]any `json:"binding"`
	Degree      float64        `json:"degree"`
	Effects     []Effect       `json:"effects"`
}

// Effect is a stored action effect.
type Effect struct {
	Action  string  `json:"action"`
	Fact    ir.Fact `json:"-"`
	Changed bool    `json:"changed"`
}

// Runs returns every run, oldest first. Inputs are not loaded.
// Returns an empty slice (not nil) for an empty journal.
func (j *Journal) Runs(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, seq, session_id, run_number, max_iterations, history_size, state,
		       iterations, firings, facts_before, facts_after, error
		FROM runs
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Seq, &r.Session, &r.Number, &r.MaxIterations, &r.HistorySize, &r.State,
			&r.Iterations, &r.Firings, &r.FactsBefore, &r.FactsAfter, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun retrieves a run with its input document.
// Returns ErrRunNotFound if id is unknown.
func (j *Journal) ReadRun(ctx context.Context, id string) (Run, error) {
	var (
		r     Run
		input string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT id, seq, session_id, run_number, max_iterations, history_size, state,
		       iterations, firings, facts_before, facts_after, error, input
		FROM runs
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Seq, &r.Session, &r.Number, &r.MaxIterations, &r.HistorySize, &r.State,
		&r.Iterations, &r.Firings, &r.FactsBefore, &r.FactsAfter, &r.Error, &input)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}

	r.Input, err = unmarshalDocument(input)
	if err != nil {
		return Run{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return r, nil
}

// LatestRun returns the most recent run, or ErrRunNotFound for an empty
// journal.
func (j *Journal) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: journal is empty", ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return j.ReadRun(ctx, id)
}

const firingColumns = `id, seq, iteration, rule_index, rule_name, rule_hash, binding_hash, binding, degree`

type scanner interface {
	Scan(dest ...any) error
}

func scanFiring(row scanner) (Firing, error) {
	var (
		f       Firing
		binding string
	)
	if err := row.Scan(&f.ID, &f.Seq, &f.Iteration, &f.RuleIndex, &f.RuleName, &f.RuleHash,
		&f.BindingHash, &binding, &f.Degree); err != nil {
		return Firing{}, err
	}
	var err error
	if f.Binding, err = unmarshalBinding(binding); err != nil {
		return Firing{}, err
	}
	f.Effects = []Effect{}
	return f, nil
}

// scanEffect reads one provenance row selected as
// firing_id, action, predicate, args, degree, changed.
func scanEffect(row scanner) (int64, Effect, error) {
	var (
		firingID int64
		eff      Effect
		pred     string
		args     string
		degree   float64
	)
	if err := row.Scan(&firingID, &eff.Action, &pred, &args, &degree, &eff.Changed); err != nil {
		return 0, Effect{}, fmt.Errorf("scan effect: %w", err)
	}
	atoms, err := unmarshalArgs(args)
	if err != nil {
		return 0, Effect{}, err
	}
	eff.Fact = ir.Fact{Predicate: pred, Args: atoms, Degree: degree}
	return firingID, eff, nil
}

// ReadFirings returns a run's firings in seq order with their effects.
// Returns an empty slice (not nil) if the run has no firings.
func (j *Journal) ReadFirings(ctx context.Context, runID string) ([]Firing, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+firingColumns+`
		FROM firings
		WHERE run_id = ?
		ORDER BY seq ASC, id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query firings: %w", err)
	}
	defer rows.Close()

	firings := []Firing{}
	index := make(map[int64]int)
	for rows.Next() {
		f, err := scanFiring(rows)
		if err != nil {
			return nil, fmt.Errorf("scan firing: %w", err)
		}
		index[f.ID] = len(firings)
		firings = append(firings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate firings: %w", err)
	}
	rows.Close()

	// Load all effects in one query rather than one per firing.
	effects, err := j.db.QueryContext(ctx, `
		SELECT p.firing_id, p.action, p.predicate, p.args, p.degree, p.changed
		FROM provenance p
		JOIN firings f ON p.firing_id = f.id
		WHERE f.run_id = ?
		ORDER BY p.firing_id ASC, p.position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer effects.Close()

	for effects.Next() {
		firingID, eff, err := scanEffect(effects)
		if err != nil {
			return nil, err
		}
		i := index[firingID]
		firings[i].Effects = append(firings[i].Effects, eff)
	}
	if err := effects.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}
	return firings, nil
}

// readFiring loads one firing and its effects by id.
func (j *Journal) readFiring(ctx context.Context, id int64) (Firing, error) {
	f, err := scanFiring(j.db.QueryRowContext(ctx, `
		SELECT `+firingColumns+`
		FROM firings
		WHERE id = ?
	`, id))
	if err != nil {
		return Firing{}, fmt.Errorf("read firing %d: %w", id, err)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT firing_id, action, predicate, args, degree, changed
		FROM provenance
		WHERE firing_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return Firing{}, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		_, eff, err := scanEffect(rows)
		if err != nil {
			return Firing{}, err
		}
		f.Effects = append(f.Effects, eff)
	}
	if err := rows.Err(); err != nil {
		return Firing{}, fmt.Errorf("iterate effects: %w", err)
	}
	return f, nil
}

// Provenance returns the last firing of a run that changed the fact
// predicate(args), and false if no firing did. Base facts have no
// provenance.
func (j *Journal) Provenance(ctx context.Context, runID, predicate string, args []ir.Atom) (Firing, bool, error) {
	key, err := factKey(predicate, args)
	if err != nil {
		return Firing{}, false, fmt.Errorf("provenance: %w", err)
	}

	var firingID int64
	err = j.db.QueryRowContext(ctx, `
		SELECT f.id
		FROM provenance p
		JOIN firings f ON p.firing_id = f.id
		WHERE f.run_id = ? AND p.fact_key = ? AND p.changed = 1 AND p.action != 'remove'
		ORDER BY f.seq DESC, p.position DESC
		LIMIT 1
	`, runID, key).Scan(&firingID)
	if errors.Is(err, sql.ErrNoRows) {
		return Firing{}, false, nil
	}
	if err != nil {
		return Firing{}, false, fmt.Errorf("query provenance: %w", err)
	}

	f, err := j.readFiring(ctx, firingID)
	if err != nil {
		return Firing{}, false, fmt.Errorf("provenance: %w", err)
	}
	return f, true, nil
}
