// Package merge combines two knowledge bases.
//
// Every strategy is a pure function of its inputs: neither knowledge base
// is modified and the result shares no mutable state with them. Fact and
// rule order in the result is deterministic and follows input order.
package merge

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// DefaultThreshold is the degree difference above which two facts with the
// same key count as contradicting.
const DefaultThreshold = 0.5

type config struct {
	threshold   float64
	w1, w2      float64
	autoResolve bool
}

// Option configures a merge.
type Option func(*config)

// WithThreshold sets the fact contradiction threshold (default 0.5).
func WithThreshold(t float64) Option {
	return func(c *config) {
		c.threshold = t
	}
}

// WithWeights sets the weighted-merge weights. They are normalized to sum
// to 1. Non-finite or negative weights, or a non-positive sum, fall back to
// equal weights rather than failing.
func WithWeights(w1, w2 float64) Option {
	return func(c *config) {
		c.w1, c.w2 = w1, w2
	}
}

// WithAutoResolve enables automatic conflict resolution in smart merges.
func WithAutoResolve(auto bool) Option {
	return func(c *config) {
		c.autoResolve = auto
	}
}

// Result is the outcome of a merge.
type Result struct {
	Strategy Strategy
	KB       *kb.KnowledgeBase
	// Conflicts is only populated by the smart strategy, sorted by
	// severity with the highest first.
	Conflicts []Conflict
}

// Report renders the conflict report for r.
func (r *Result) Report() string {
	return Report(r.Conflicts)
}

// Merge combines kb1 and kb2 with strategy.
// The only error is a *MergeError for an unknown strategy.
func Merge(kb1, kb2 *kb.KnowledgeBase, strategy Strategy, opts ...Option) (*Result, error) {
	cfg := config{threshold: DefaultThreshold, w1: 0.5, w2: 0.5}
	for _, opt := range opts {
		opt(&cfg)
	}

	res := &Result{Strategy: strategy}
	switch strategy {
	case StrategyUnion:
		res.KB = union(kb1, kb2)
	case StrategyOverride:
		res.KB = override(kb1, kb2)
	case StrategyComplement:
		res.KB = complement(kb1, kb2)
	case StrategyWeighted:
		w1, w2 := normalizeWeights(cfg.w1, cfg.w2)
		res.KB = weighted(kb1, kb2, w1, w2)
	case StrategySmart:
		res.KB, res.Conflicts = smart(kb1, kb2, cfg)
	default:
		return nil, &MergeError{Strategy: string(strategy)}
	}

	slog.Debug("knowledge bases merged",
		"strategy", string(strategy),
		"facts", res.KB.Facts.Len(),
		"rules", len(res.KB.Rules),
		"conflicts", len(res.Conflicts),
	)
	return res, nil
}

// builder accumulates a merged knowledge base. Rules are cloned on add.
type builder struct {
	out *kb.KnowledgeBase
}

func newBuilder() *builder {
	return &builder{out: kb.New()}
}

func (b *builder) fact(f ir.Fact) { b.out.Facts.Upsert(f) }

func (b *builder) facts(fs []ir.Fact) {
	for _, f := range fs {
		b.fact(f)
	}
}

func (b *builder) rule(r ir.Rule) { b.out.Rules = append(b.out.Rules, r.Clone()) }

func (b *builder) rules(rs []ir.Rule) {
	for _, r := range rs {
		b.rule(r)
	}
}

func factKeys(facts []ir.Fact) map[ir.FactKey]bool {
	out := make(map[ir.FactKey]bool, len(facts))
	for _, f := range facts {
		out[f.Key()] = true
	}
	return out
}

func ruleNames(rules []ir.Rule) map[string]bool {
	out := make(map[string]bool)
	for _, r := range rules {
		if r.Name != "" {
			out[r.Name] = true
		}
	}
	return out
}

func union(kb1, kb2 *kb.KnowledgeBase) *kb.KnowledgeBase {
	b := newBuilder()
	b.facts(kb1.Facts.All())
	b.facts(kb2.Facts.All())
	b.rules(kb1.Rules)
	b.rules(kb2.Rules)
	return b.out
}

func override(kb1, kb2 *kb.KnowledgeBase) *kb.KnowledgeBase {
	b := newBuilder()
	facts2 := kb2.Facts.All()
	b.facts(facts2)
	keys2 := factKeys(facts2)
	for _, f := range kb1.Facts.All() {
		if !keys2[f.Key()] {
			b.fact(f)
		}
	}

	b.rules(kb2.Rules)
	names2 := ruleNames(kb2.Rules)
	for _, r := range kb1.Rules {
		if r.Name == "" || !names2[r.Name] {
			b.rule(r)
		}
	}
	return b.out
}

func complement(kb1, kb2 *kb.KnowledgeBase) *kb.KnowledgeBase {
	b := newBuilder()
	facts1 := kb1.Facts.All()
	b.facts(facts1)
	keys1 := factKeys(facts1)
	for _, f := range kb2.Facts.All() {
		if !keys1[f.Key()] {
			b.fact(f)
		}
	}

	b.rules(kb1.Rules)
	names1 := ruleNames(kb1.Rules)
	for _, r := range kb2.Rules {
		if r.Name == "" || !names1[r.Name] {
			b.rule(r)
		}
	}
	return b.out
}

func normalizeWeights(w1, w2 float64) (float64, float64) {
	bad := func(w float64) bool { return math.IsNaN(w) || math.IsInf(w, 0) || w < 0 }
	total := w1 + w2
	if bad(w1) || bad(w2) || total <= 0 {
		slog.Warn("invalid merge weights, using equal weights", "w1", w1, "w2", w2)
		return 0.5, 0.5
	}
	return w1 / total, w2 / total
}

// weighted computes w1*d1 + w2*d2 for every key on either side, treating a
// missing side as degree 0. Keys follow KB1 order, then KB2-only keys.
func weighted(kb1, kb2 *kb.KnowledgeBase, w1, w2 float64) *kb.KnowledgeBase {
	type pair struct {
		fact   ir.Fact
		d1, d2 float64
	}
	var order []ir.FactKey
	pairs := make(map[ir.FactKey]*pair)

	for _, f := range kb1.Facts.All() {
		key := f.Key()
		order = append(order, key)
		pairs[key] = &pair{fact: f, d1: f.Degree}
	}
	for _, f := range kb2.Facts.All() {
		key := f.Key()
		if p, ok := pairs[key]; ok {
			p.d2 = f.Degree
			continue
		}
		order = append(order, key)
		pairs[key] = &pair{fact: f, d2: f.Degree}
	}

	b := newBuilder()
	for _, key := range order {
		p := pairs[key]
		f := p.fact
		f.Degree = ir.ClampDegree(w1*p.d1 + w2*p.d2)
		b.fact(f)
	}
	b.rules(kb1.Rules)
	b.rules(kb2.Rules)
	return b.out
}

// smart detects conflicts, then builds the union with conflicting items
// resolved. See resolveFact and the rule handling below for the policy.
func smart(kb1, kb2 *kb.KnowledgeBase, cfg config) (*kb.KnowledgeBase, []Conflict) {
	conflicts := Detect(kb1, kb2, cfg.threshold)
	logConflicts(conflicts)

	b := newBuilder()
	facts1, facts2 := kb1.Facts.All(), kb2.Facts.All()

	factConflicts := make(map[ir.FactKey]Conflict)
	for _, c := range conflicts {
		if c.Type != FactContradiction {
			continue
		}
		key := c.Left.Fact.Key()
		if _, seen := factConflicts[key]; !seen {
			factConflicts[key] = c
		}
	}

	for _, f1 := range facts1 {
		c, ok := factConflicts[f1.Key()]
		if !ok {
			b.fact(f1)
			continue
		}
		f2 := *c.Right.Fact
		if cfg.autoResolve {
			b.fact(resolveFact(f1, f2, c))
		} else if f1.Degree >= f2.Degree {
			b.fact(f1)
		} else {
			b.fact(f2)
		}
	}

	keys1 := factKeys(facts1)
	for _, f2 := range facts2 {
		key := f2.Key()
		if !keys1[key] {
			b.fact(f2)
			continue
		}
		if _, conflicting := factConflicts[key]; !conflicting {
			b.fact(f2)
		}
	}

	emitted := smartRules(kb1.Rules, kb2.Rules, conflicts, cfg.autoResolve)
	b.rules(emitted)
	return b.out, conflicts
}

type ruleRef struct {
	side  Side
	index int
}

// smartRules resolves rule conflicts.
//
// A rule contradiction keeps the higher-priority rule at KB1's position
// and drops the other; ties go to KB2 when auto resolving and to KB1
// otherwise. With auto resolution, a subsumed general rule is dropped in
// favor of the more specific one; without it both are kept. KB2 rules
// whose name already exists in KB1 are never appended, since they are
// either equivalent duplicates or handled by the contradiction.
func smartRules(rules1, rules2 []ir.Rule, conflicts []Conflict, auto bool) []ir.Rule {
	replace := make(map[int]ir.Rule)
	dropped := make(map[ruleRef]bool)

	for _, c := range conflicts {
		switch c.Type {
		case RuleContradiction:
			if _, done := replace[c.Left.Index]; done {
				continue
			}
			r1, r2 := *c.Left.Rule, *c.Right.Rule
			if r1.Priority > r2.Priority || (!auto && r1.Priority == r2.Priority) {
				replace[c.Left.Index] = r1
			} else {
				replace[c.Left.Index] = r2
			}
		case Subsumption:
			if !auto {
				continue
			}
			if len(c.Left.Rule.Conditions) < len(c.Right.Rule.Conditions) {
				dropped[ruleRef{KB1, c.Left.Index}] = true
			} else {
				dropped[ruleRef{KB2, c.Right.Index}] = true
			}
		}
	}

	var out []ir.Rule
	for i, r := range rules1 {
		if winner, ok := replace[i]; ok {
			out = append(out, winner)
			continue
		}
		if dropped[ruleRef{KB1, i}] {
			continue
		}
		out = append(out, r)
	}

	names1 := ruleNames(rules1)
	for j, r := range rules2 {
		if r.Name != "" && names1[r.Name] {
			continue
		}
		if dropped[ruleRef{KB2, j}] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// resolveFact averages moderate contradictions and keeps the more
// confident fact for severe ones. Ties go to KB2.
func resolveFact(f1, f2 ir.Fact, c Conflict) ir.Fact {
	if c.Severity < autoAverageBelow {
		out := f1.Clone()
		out.Degree = (f1.Degree + f2.Degree) / 2
		return out
	}
	if f1.Degree > f2.Degree {
		return f1
	}
	return f2
}

func logConflicts(conflicts []Conflict) {
	if len(conflicts) == 0 {
		return
	}
	slog.Warn("merge conflicts detected", "count", len(conflicts))
	for _, c := range conflicts[:min(5, len(conflicts))] {
		slog.Warn("merge conflict",
			"type", string(c.Type),
			"severity", fmt.Sprintf("%.2f", c.Severity),
			"description", c.Description,
		)
	}
}
