package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/fuzzyinfer/internal/compiler"
	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
	"github.com/roach88/fuzzyinfer/internal/merge"
)

// Harness runs one scenario on a fresh engine with a fixed session id.
type Harness struct {
	scenario *Scenario
	log      *engine.FiringLog
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Execution flow:
//  1. Load the kb file and inline facts/rules
//  2. Merge merge_with into it, if set
//  3. Run inference to a fixpoint or the iteration cap
//  4. Evaluate assertions against the final fact set
//
// Non-convergence is an outcome, not an error: it is reported in
// Result.State and checked by assertions. Errors are returned only when
// the scenario cannot be executed.
func Run(scenario *Scenario) (*Result, error) {
	h := &Harness{
		scenario: scenario,
		log:      &engine.FiringLog{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	base, err := h.loadKnowledgeBase()
	if err != nil {
		return nil, fmt.Errorf("failed to load knowledge base: %w", err)
	}

	result := NewResult()
	if scenario.MergeWith != "" {
		merged, err := h.merge(base)
		if err != nil {
			return nil, fmt.Errorf("failed to merge %s: %w", scenario.MergeWith, err)
		}
		base = merged.KB
		result.Conflicts = len(merged.Conflicts)
	}

	eng, err := h.run(base)
	if err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	result.State = eng.State().String()
	result.Iterations = eng.Iterations()
	result.Firings = len(h.log.Firings)
	for _, f := range eng.Facts() {
		result.Facts = append(result.Facts, factResult(f))
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	h.logger.Info("scenario completed",
		"scenario", scenario.Name,
		"state", result.State,
		"iterations", result.Iterations,
		"firings", result.Firings,
		"facts", len(result.Facts),
		"pass", result.Pass,
	)
	return result, nil
}

// loadKnowledgeBase combines the kb file with the inline facts and rules.
func (h *Harness) loadKnowledgeBase() (*kb.KnowledgeBase, error) {
	var (
		facts []ir.Fact
		rules []ir.Rule
	)
	if h.scenario.KB != "" {
		fromFile, err := compiler.LoadKnowledgeBase(h.scenario.KB)
		if err != nil {
			return nil, err
		}
		facts = append(facts, fromFile.Facts.All()...)
		rules = append(rules, fromFile.Rules...)
	}

	doc, err := h.scenario.inlineDocument()
	if err != nil {
		return nil, fmt.Errorf("inline knowledge base: %w", err)
	}
	inline, err := compiler.Compile(doc)
	if err != nil {
		return nil, fmt.Errorf("inline knowledge base: %w", err)
	}
	facts = append(facts, inline.Facts.All()...)
	rules = append(rules, inline.Rules...)

	return kb.FromParts(facts, rules), nil
}

func (h *Harness) merge(base *kb.KnowledgeBase) (*merge.Result, error) {
	other, err := compiler.LoadKnowledgeBase(h.scenario.MergeWith)
	if err != nil {
		return nil, err
	}
	strategy, err := merge.ParseStrategy(h.scenario.Strategy)
	if err != nil {
		return nil, err
	}

	opts := []merge.Option{merge.WithAutoResolve(h.scenario.AutoResolve)}
	if len(h.scenario.Weights) == 2 {
		opts = append(opts, merge.WithWeights(h.scenario.Weights[0], h.scenario.Weights[1]))
	}
	if h.scenario.Threshold != nil {
		opts = append(opts, merge.WithThreshold(*h.scenario.Threshold))
	}
	return merge.Merge(base, other, strategy, opts...)
}

func (h *Harness) run(k *kb.KnowledgeBase) (*engine.Engine, error) {
	opts := []engine.EngineOption{
		engine.WithSessionGenerator(engine.NewFixedGenerator("scenario-" + h.scenario.Name)),
		engine.WithRecorder(h.log),
	}
	if h.scenario.MaxIterations > 0 {
		opts = append(opts, engine.WithMaxIterations(h.scenario.MaxIterations))
	}

	eng := engine.New(opts...)
	if err := eng.LoadKnowledgeBase(k); err != nil {
		return nil, err
	}
	if err := eng.Run(); err != nil && !engine.IsNonConvergent(err) {
		return nil, err
	}
	return eng, nil
}
