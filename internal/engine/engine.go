package engine

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// DefaultMaxIterations is the default pass cap for a single Run.
const DefaultMaxIterations = 100

// State is the engine's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateConverged
	StateNonConvergent
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateConverged:
		return "converged"
	case StateNonConvergent:
		return "non_convergent"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ruleEntry pairs a rule with its stable engine-assigned index. The index
// is the rule's identity in firing keys and never changes once assigned.
type ruleEntry struct {
	index int
	rule  ir.Rule
	hash  string
}

// Engine is a fuzzy forward-chaining inference engine.
//
// The engine exclusively owns its fact store and rule list. It is not safe
// for concurrent use: callers must not mutate it from another goroutine
// while Run is in progress.
//
// INVARIANTS:
//   - rules slice is in insertion order; Run sorts a copy by priority
//   - rule indexes are unique and never reused until Clear
//   - the firing history spans runs until Clear
type Engine struct {
	facts      *kb.Store
	rules      []ruleEntry
	nextIndex  int
	history    *FiringHistory
	clock      *Clock
	provenance map[ir.FactKey]Derivation

	maxIterations int
	recorder      Recorder
	sessionGen    SessionGenerator
	session       string

	state      State
	iterations int
	runs       int
	lastRun    RunStats
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithMaxIterations sets the pass cap for each Run.
//
// Default: 100 passes (DefaultMaxIterations). Values below 1 are raised
// to 1.
func WithMaxIterations(n int) EngineOption {
	return func(e *Engine) {
		e.maxIterations = max(n, 1)
	}
}

// WithRecorder attaches a recorder that observes every run and firing.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithSessionGenerator overrides the session id generator.
// Use NewFixedGenerator in tests for deterministic ids.
func WithSessionGenerator(g SessionGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.sessionGen = g
		}
	}
}

// New creates an empty engine.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		facts:         kb.NewStore(),
		history:       NewFiringHistory(),
		clock:         NewClock(),
		provenance:    make(map[ir.FactKey]Derivation),
		maxIterations: DefaultMaxIterations,
		recorder:      nopRecorder{},
		sessionGen:    UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = e.sessionGen.Generate()
	return e
}

// SessionID returns the id generated for this engine.
func (e *Engine) SessionID() string { return e.session }

// MaxIterations returns the configured pass cap.
func (e *Engine) MaxIterations() int { return e.maxIterations }

// State returns the state of the most recent run.
func (e *Engine) State() State { return e.state }

// Iterations returns the number of passes executed by the most recent run.
func (e *Engine) Iterations() int { return e.iterations }

// LastRun returns statistics for the most recent run.
func (e *Engine) LastRun() RunStats { return e.lastRun }

// AddFact validates f and upserts it as a base fact.
// Returns whether the store changed (inserted or degree raised).
func (e *Engine) AddFact(f ir.Fact) (bool, error) {
	valid, err := ir.NewFact(f.Predicate, f.Args, f.Degree)
	if err != nil {
		return false, err
	}
	return e.addBase(valid), nil
}

// AddFacts validates every fact before adding any of them.
func (e *Engine) AddFacts(facts ...ir.Fact) error {
	valid := make([]ir.Fact, 0, len(facts))
	for i, f := range facts {
		v, err := ir.NewFact(f.Predicate, f.Args, f.Degree)
		if err != nil {
			return fmt.Errorf("facts[%d]: %w", i, err)
		}
		valid = append(valid, v)
	}
	for _, f := range valid {
		e.addBase(f)
	}
	return nil
}

func (e *Engine) addBase(f ir.Fact) bool {
	changed := e.facts.Upsert(f)
	if changed {
		e.provenance[f.Key()] = Derivation{Base: true}
		slog.Debug("fact added", "session", e.session, "fact", f.String())
	}
	return changed
}

// AddRule validates r and appends it with the next rule index.
func (e *Engine) AddRule(r ir.Rule) error {
	if err := ir.ValidateRule(r); err != nil {
		return err
	}
	e.appendRule(r)
	return nil
}

// AddRules validates every rule before adding any of them.
func (e *Engine) AddRules(rules ...ir.Rule) error {
	for i, r := range rules {
		if err := ir.ValidateRule(r); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	for _, r := range rules {
		e.appendRule(r)
	}
	return nil
}

func (e *Engine) appendRule(r ir.Rule) {
	entry := ruleEntry{index: e.nextIndex, rule: r.Clone()}
	if h, err := ir.RuleID(entry.rule); err == nil {
		entry.hash = h
	} else {
		slog.Warn("rule not hashable", "session", e.session, "rule", r.DisplayName(), "error", err)
	}
	e.nextIndex++
	e.rules = append(e.rules, entry)
	slog.Debug("rule added",
		"session", e.session,
		"rule", r.DisplayName(),
		"index", entry.index,
		"priority", r.Priority,
	)
}

// LoadKnowledgeBase adds every fact and rule of k.
func (e *Engine) LoadKnowledgeBase(k *kb.KnowledgeBase) error {
	if err := e.AddFacts(k.Facts.All()...); err != nil {
		return err
	}
	return e.AddRules(k.Rules...)
}

// KnowledgeBase returns a snapshot of the current facts and rules.
// Rules are in insertion order.
func (e *Engine) KnowledgeBase() *kb.KnowledgeBase {
	return &kb.KnowledgeBase{Facts: e.facts.Clone(), Rules: e.Rules()}
}

// Query returns facts with predicate whose degree is at least minDegree.
// A non-empty pattern must unify with the fact args.
func (e *Engine) Query(predicate string, pattern []ir.Atom, minDegree float64) []ir.Fact {
	return e.facts.Query(predicate, pattern, minDegree)
}

// Facts returns every fact in store insertion order.
func (e *Engine) Facts() []ir.Fact {
	return e.facts.All()
}

// Rules returns every rule in insertion order.
func (e *Engine) Rules() []ir.Rule {
	out := make([]ir.Rule, 0, len(e.rules))
	for _, entry := range e.rules {
		out = append(out, entry.rule.Clone())
	}
	return out
}

// Clear removes all facts, rules, firing history and provenance and returns
// the engine to Idle. The session id is kept.
func (e *Engine) Clear() {
	e.facts.Clear()
	e.rules = nil
	e.nextIndex = 0
	e.history.Clear()
	e.clock.Reset()
	e.provenance = make(map[ir.FactKey]Derivation)
	e.state = StateIdle
	e.iterations = 0
	e.lastRun = RunStats{}
}

// Run infers to a fixpoint.
//
// Each pass scans the rules in priority order. For each rule all
// satisfying bindings are computed first, then every binding not yet in
// the firing history fires in match order. A pass with no new firing
// converges the run.
//
// If every one of the MaxIterations passes fired something, Run returns
// an *InferenceError with code NON_CONVERGENT. Facts derived up to that
// point are kept.
func (e *Engine) Run() error {
	e.runs++
	e.state = StateRunning
	e.iterations = 0

	stats := RunStats{Session: e.session, Run: e.runs, FactsBefore: e.facts.Len()}
	e.observe("begin_run", e.recorder.BeginRun(RunInfo{
		Session:       e.session,
		Run:           e.runs,
		MaxIterations: e.maxIterations,
		HistorySize:   e.history.Size(),
		Input:         ir.DocumentFrom(e.facts.All(), e.Rules()),
	}))

	order := e.prioritized()
	matcher := NewMatcher(e.facts)
	budget := NewIterationBudget(e.maxIterations)
	converged := false

	for budget.Next() {
		changed := false
		for _, entry := range order {
			for _, m := range matcher.MatchAll(entry.rule.Conditions, ir.Binding{}) {
				hash := bindingHash(m.Binding)
				if !e.history.Record(entry.index, hash) {
					continue
				}
				changed = true
				stats.Firings++
				firing := e.fire(entry, m, hash, budget.Current())
				e.observe("record_firing", e.recorder.RecordFiring(firing))
			}
		}
		if !changed {
			converged = true
			break
		}
	}

	e.iterations = budget.Current()
	stats.Iterations = e.iterations
	stats.FactsAfter = e.facts.Len()

	var err error
	if converged {
		e.state = StateConverged
		slog.Info("inference converged",
			"session", e.session,
			"run", e.runs,
			"iterations", e.iterations,
			"firings", stats.Firings,
			"facts_before", stats.FactsBefore,
			"facts_after", stats.FactsAfter,
		)
	} else {
		e.state = StateNonConvergent
		err = NewNonConvergentError(e.session, e.iterations, e.maxIterations, stats.FactsAfter)
		slog.Error("inference did not converge",
			"session", e.session,
			"run", e.runs,
			"max_iterations", e.maxIterations,
			"firings", stats.Firings,
			"facts", stats.FactsAfter,
		)
	}

	stats.State = e.state
	e.lastRun = stats
	e.observe("end_run", e.recorder.EndRun(stats, err))
	return err
}

// Ask runs inference and returns every match of the conjunction conds
// against the resulting facts.
func (e *Engine) Ask(conds ...ir.Condition) ([]Match, error) {
	for i, c := range conds {
		if err := ir.ValidateCondition(c); err != nil {
			return nil, fmt.Errorf("query[%d]: %w", i, err)
		}
	}
	if err := e.Run(); err != nil {
		return nil, err
	}
	return NewMatcher(e.facts).MatchAll(conds, ir.Binding{}), nil
}

// prioritized returns the rules stably sorted by priority, highest first.
func (e *Engine) prioritized() []ruleEntry {
	order := slices.Clone(e.rules)
	slices.SortStableFunc(order, func(a, b ruleEntry) int {
		return cmp.Compare(b.rule.Priority, a.rule.Priority)
	})
	return order
}

// observe logs recorder failures without interrupting the run.
func (e *Engine) observe(op string, err error) {
	if err != nil {
		slog.Warn("recorder failed", "session", e.session, "op", op, "error", err)
	}
}
