package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/fuzzyinfer/internal/degree"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// Match is one way a condition can be satisfied: the extended binding and
// the effective degree of belief in that satisfaction.
type Match struct {
	Binding ir.Binding
	Degree  float64
}

// Matcher unifies condition trees against a fact store.
//
// Every call reads the store as it is at that moment; writes made between
// calls are visible to the next one.
type Matcher struct {
	store *kb.Store
}

// NewMatcher creates a matcher over store.
func NewMatcher(store *kb.Store) *Matcher {
	return &Matcher{store: store}
}

// MatchAll matches the implicit conjunction of conds under b.
// An empty list matches once with degree 1.0.
func (m *Matcher) MatchAll(conds []ir.Condition, b ir.Binding) []Match {
	return m.matchAnd(conds, b)
}

// Match returns every match of c under b.
//
// The result order is deterministic: leaf matches follow store insertion
// order, And expands left to right, and Or concatenates branch results in
// branch order.
func (m *Matcher) Match(c ir.Condition, b ir.Binding) []Match {
	switch c := c.(type) {
	case ir.Leaf:
		return m.matchLeaf(c, b)
	case ir.And:
		return m.matchAnd(c.Children, b)
	case ir.Or:
		return m.matchOr(c.Children, b)
	case ir.Not:
		return m.matchNot(c, b)
	default:
		panic(fmt.Sprintf("unknown condition type: %T", c))
	}
}

func (m *Matcher) matchLeaf(l ir.Leaf, b ir.Binding) []Match {
	var out []Match
	for _, f := range m.store.ByPredicate(l.Predicate, len(l.Args)) {
		ext, ok := ir.Unify(l.Args, f.Args, b)
		if !ok {
			continue
		}
		if l.DegreeVar != "" {
			ext[l.DegreeVar] = ir.Number(f.Degree)
		}
		if l.Constraint != nil {
			holds, err := degree.EvalConstraint(*l.Constraint, ext)
			if err != nil {
				slog.Warn("constraint evaluation failed",
					"predicate", l.Predicate,
					"fact", f.String(),
					"error", err,
				)
				continue
			}
			if !holds {
				continue
			}
		}
		out = append(out, Match{Binding: ext, Degree: f.Degree})
	}
	return out
}

// matchAnd is a cartesian join. Degrees combine with min; any child with
// no match under every current binding empties the result.
func (m *Matcher) matchAnd(children []ir.Condition, b ir.Binding) []Match {
	current := []Match{{Binding: b.Clone(), Degree: 1.0}}
	for _, child := range children {
		var next []Match
		for _, cur := range current {
			for _, sub := range m.Match(child, cur.Binding) {
				next = append(next, Match{Binding: sub.Binding, Degree: min(cur.Degree, sub.Degree)})
			}
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}
	return current
}

func (m *Matcher) matchOr(children []ir.Condition, b ir.Binding) []Match {
	var out []Match
	for _, child := range children {
		out = append(out, m.Match(child, b)...)
	}
	return out
}

// matchNot is negation-as-failure scoped to b: the child is evaluated once
// under b and the Not succeeds only if that yields nothing. Variables the
// child would bind are not exported.
func (m *Matcher) matchNot(n ir.Not, b ir.Binding) []Match {
	if len(m.Match(n.Child, b)) > 0 {
		return nil
	}
	return []Match{{Binding: b.Clone(), Degree: 1.0}}
}
