package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// ErrNotReplayable is returned for runs that started with a non-empty
// firing history. Their firings depend on earlier runs of the session.
var ErrNotReplayable = errors.New("journal: run depends on earlier firing history")

// Step is the replay-relevant identity of a firing. Seq is left out since
// the engine clock carries over between runs of one session.
type Step struct {
	Iteration   int    `json:"iteration"`
	RuleIndex   int    `json:"rule_index"`
	RuleHash    string `json:"rule_hash,omitempty"`
	BindingHash string `json:"binding_hash"`
}

func (s Step) String() string {
	out := fmt.Sprintf("iteration %d, rule #%d, binding %s", s.Iteration, s.RuleIndex, s.BindingHash)
	if s.RuleHash != "" {
		out += ", rule text " + s.RuleHash
	}
	return out
}

// matches reports whether a replayed step reproduces the stored one s.
// Firings journaled before rule hashes were kept have none; for those
// the rule text is not compared.
func (s Step) matches(replayed Step) bool {
	if s.RuleHash == "" {
		replayed.RuleHash = ""
	}
	return s == replayed
}

// Divergence is the first point where a replay differs from the journal.
// A nil side means that sequence ended early.
type Divergence struct {
	Index    int   `json:"index"`
	Expected *Step `json:"expected,omitempty"`
	Actual   *Step `json:"actual,omitempty"`
}

// ReplayResult compares a stored run with a fresh re-run of its input.
type ReplayResult struct {
	RunID          string      `json:"run_id"`
	Match          bool        `json:"match"`
	ExpectedState  string      `json:"expected_state"`
	ActualState    string      `json:"actual_state"`
	ExpectedSteps  int         `json:"expected_firings"`
	ActualSteps    int         `json:"actual_firings"`
	FirstDivergent *Divergence `json:"divergence,omitempty"`
}

// Replay re-runs the stored input of runID on a fresh engine with the
// stored iteration cap and compares the firing sequences and final state.
// A non-convergent replay is not an error; it is compared like any other.
func (j *Journal) Replay(ctx context.Context, runID string, opts ...engine.EngineOption) (ReplayResult, error) {
	run, err := j.ReadRun(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	if run.HistorySize > 0 {
		return ReplayResult{}, fmt.Errorf("replay %s: %w (%d prior firings)", runID, ErrNotReplayable, run.HistorySize)
	}
	stored, err := j.ReadFirings(ctx, runID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	input, err := kb.FromDocument(run.Input)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: input: %w", runID, err)
	}

	log := &engine.FiringLog{}
	engineOpts := append([]engine.EngineOption{
		engine.WithMaxIterations(run.MaxIterations),
		engine.WithRecorder(log),
	}, opts...)
	e := engine.New(engineOpts...)
	if err := e.LoadKnowledgeBase(input); err != nil {
		return ReplayResult{}, fmt.Errorf("replay %s: load: %w", runID, err)
	}
	if err := e.Run(); err != nil && !engine.IsNonConvergent(err) {
		return ReplayResult{}, fmt.Errorf("replay %s: run: %w", runID, err)
	}

	expected := make([]Step, len(stored))
	for i, f := range stored {
		expected[i] = Step{Iteration: f.Iteration, RuleIndex: f.RuleIndex, RuleHash: f.RuleHash, BindingHash: f.BindingHash}
	}
	actual := make([]Step, len(log.Firings))
	for i, f := range log.Firings {
		actual[i] = Step{Iteration: f.Iteration, RuleIndex: f.RuleIndex, RuleHash: f.RuleHash, BindingHash: f.BindingHash}
	}

	res := ReplayResult{
		RunID:          runID,
		ExpectedState:  run.State,
		ActualState:    e.State().String(),
		ExpectedSteps:  len(expected),
		ActualSteps:    len(actual),
		FirstDivergent: compareSteps(expected, actual),
	}
	res.Match = res.FirstDivergent == nil && res.ExpectedState == res.ActualState
	return res, nil
}

func compareSteps(expected, actual []Step) *Divergence {
	for i := 0; i < max(len(expected), len(actual)); i++ {
		var exp, act *Step
		if i < len(expected) {
			exp = &expected[i]
		}
		if i < len(actual) {
			act = &actual[i]
		}
		if exp == nil || act == nil || !exp.matches(*act) {
			return &Divergence{Index: i, Expected: exp, Actual: act}
		}
	}
	return nil
}
