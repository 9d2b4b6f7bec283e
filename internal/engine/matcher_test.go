package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

func fact(pred string, deg float64, args ...any) ir.Fact {
	return ir.MustFact(pred, ir.Atoms(args...), deg)
}

func storeWith(facts ...ir.Fact) *kb.Store {
	s := kb.NewStore()
	for _, f := range facts {
		s.Upsert(f)
	}
	return s
}

// boundValues projects matches onto one variable for compact assertions.
func boundValues(matches []Match, name string) []any {
	out := make([]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, ir.AtomValue(m.Binding[name]))
	}
	return out
}

func TestMatcher_LeafUnification(t *testing.T) {
	s := storeWith(
		fact("p", 1, "a", "a"),
		fact("p", 1, "a", "b"),
		fact("p", 1, "a"),
	)
	m := NewMatcher(s)

	got := m.Match(ir.Pattern("p", "?x", "?x"), ir.Binding{})
	require.Len(t, got, 1)
	assert.Equal(t, ir.String("a"), got[0].Binding["?x"])
}

func TestMatcher_LeafRespectsIncomingBinding(t *testing.T) {
	s := storeWith(
		fact("likes", 0.9, "sam", "tea"),
		fact("likes", 0.4, "kim", "tea"),
	)
	m := NewMatcher(s)

	got := m.Match(ir.Pattern("likes", "?who", "tea"), ir.Binding{"?who": ir.String("kim")})
	require.Len(t, got, 1)
	assert.InDelta(t, 0.4, got[0].Degree, 1e-9)
}

func TestMatcher_LeafMatchesAcrossNormalizationForms(t *testing.T) {
	s := storeWith(fact("serves", 0.8, "cafe\u0301", "tea"))
	m := NewMatcher(s)

	got := m.Match(ir.Pattern("serves", "caf\u00e9", "?drink"), ir.Binding{})
	require.Len(t, got, 1)
	assert.Equal(t, ir.String("tea"), got[0].Binding["?drink"])

	got = m.Match(ir.Pattern("serves", "?place", "tea"), ir.Binding{"?place": ir.String("caf\u00e9")})
	assert.Len(t, got, 1, "an incoming binding in the other form still unifies")
}

func TestMatcher_LeafLiteralsAndArity(t *testing.T) {
	s := storeWith(
		fact("is", 1, "sam", "cat"),
		fact("is", 1, "kim", "dog"),
		fact("is", 1, "sam"),
	)
	m := NewMatcher(s)

	got := m.Match(ir.Pattern("is", "?x", "cat"), ir.Binding{})
	assert.Equal(t, []any{"sam"}, boundValues(got, "?x"))

	got = m.Match(ir.Pattern("is", "?x"), ir.Binding{})
	assert.Equal(t, []any{"sam"}, boundValues(got, "?x"), "arity must match")
}

func TestMatcher_LeafDegreeVariableAndConstraint(t *testing.T) {
	s := storeWith(
		fact("tall", 0.9, "sam"),
		fact("tall", 0.3, "kim"),
	)
	m := NewMatcher(s)

	leaf := ir.Leaf{
		Predicate: "tall",
		Args:      ir.Atoms("?x"),
		DegreeVar: "?d",
		Constraint: &ir.Constraint{
			Op:        ir.OpGT,
			Operand:   ir.Var("d"),
			Threshold: ir.Number(0.5),
		},
	}
	got := m.Match(leaf, ir.Binding{})
	require.Len(t, got, 1)
	assert.Equal(t, ir.String("sam"), got[0].Binding["?x"])
	assert.Equal(t, ir.Number(0.9), got[0].Binding["?d"])
	assert.InDelta(t, 0.9, got[0].Degree, 1e-9)
}

func TestMatcher_ConstraintOnUnboundVariableFails(t *testing.T) {
	s := storeWith(fact("tall", 0.9, "sam"))
	m := NewMatcher(s)

	leaf := ir.Leaf{
		Predicate:  "tall",
		Args:       ir.Atoms("?x"),
		Constraint: &ir.Constraint{Op: ir.OpGT, Operand: ir.Var("nope"), Threshold: ir.Number(0.1)},
	}
	assert.Empty(t, m.Match(leaf, ir.Binding{}))
}

func TestMatcher_AndJoinsWithMin(t *testing.T) {
	s := storeWith(
		fact("parent", 0.9, "ann", "bob"),
		fact("parent", 0.6, "bob", "cy"),
		fact("parent", 0.8, "bob", "dee"),
	)
	m := NewMatcher(s)

	got := m.MatchAll([]ir.Condition{
		ir.Pattern("parent", "?a", "?b"),
		ir.Pattern("parent", "?b", "?c"),
	}, ir.Binding{})

	require.Len(t, got, 2)
	assert.Equal(t, []any{"cy", "dee"}, boundValues(got, "?c"))
	assert.InDelta(t, 0.6, got[0].Degree, 1e-9)
	assert.InDelta(t, 0.8, got[1].Degree, 1e-9)
}

func TestMatcher_AndShortCircuitsOnEmptyChild(t *testing.T) {
	s := storeWith(fact("q", 1, "a"))
	m := NewMatcher(s)

	got := m.Match(ir.And{Children: []ir.Condition{
		ir.Pattern("missing", "?x"),
		ir.Pattern("q", "?y"),
	}}, ir.Binding{})
	assert.Empty(t, got)
}

func TestMatcher_EmptyConjunctionMatchesOnce(t *testing.T) {
	m := NewMatcher(kb.NewStore())

	got := m.MatchAll(nil, ir.Binding{"?x": ir.String("a")})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Degree)
	assert.Equal(t, ir.String("a"), got[0].Binding["?x"])
}

func TestMatcher_OrConcatenatesWithoutDedup(t *testing.T) {
	s := storeWith(
		fact("cat", 0.7, "tom"),
		fact("pet", 0.4, "tom"),
	)
	m := NewMatcher(s)

	got := m.Match(ir.Or{Children: []ir.Condition{
		ir.Pattern("cat", "?x"),
		ir.Pattern("pet", "?x"),
		ir.Pattern("dog", "?x"),
	}}, ir.Binding{})

	require.Len(t, got, 2)
	assert.Equal(t, []any{"tom", "tom"}, boundValues(got, "?x"))
	assert.InDelta(t, 0.7, got[0].Degree, 1e-9)
	assert.InDelta(t, 0.4, got[1].Degree, 1e-9)
}

func TestMatcher_OrSingleBranchSuffices(t *testing.T) {
	s := storeWith(fact("pet", 0.5, "rex"))
	m := NewMatcher(s)

	got := m.Match(ir.Or{Children: []ir.Condition{
		ir.Pattern("cat", "?x"),
		ir.Pattern("pet", "?x"),
	}}, ir.Binding{})
	assert.Equal(t, []any{"rex"}, boundValues(got, "?x"))
}

func TestMatcher_NotUnderBoundVariable(t *testing.T) {
	s := storeWith(
		fact("person", 0.8, "a"),
		fact("person", 0.6, "b"),
		fact("likes", 1, "a", "x"),
	)
	m := NewMatcher(s)

	got := m.MatchAll([]ir.Condition{
		ir.Pattern("person", "?p"),
		ir.Not{Child: ir.Pattern("likes", "?p", "?thing")},
	}, ir.Binding{})

	require.Len(t, got, 1)
	assert.Equal(t, ir.String("b"), got[0].Binding["?p"])
	assert.NotContains(t, got[0].Binding, "?thing", "Not must not export bindings")
	assert.InDelta(t, 0.6, got[0].Degree, 1e-9, "Not contributes degree 1.0 to the min")
}

// Not is evaluated against the binding that exists when it is reached, not
// against every binding a later condition could supply. Placed first, the
// child sees ?p unbound, matches likes(a, x) and fails the whole rule even
// though person(b) has no likes fact.
func TestMatcher_NotScopedToCurrentBinding(t *testing.T) {
	s := storeWith(
		fact("person", 1, "a"),
		fact("person", 1, "b"),
		fact("likes", 1, "a", "x"),
	)
	m := NewMatcher(s)

	got := m.MatchAll([]ir.Condition{
		ir.Not{Child: ir.Pattern("likes", "?p", "?thing")},
		ir.Pattern("person", "?p"),
	}, ir.Binding{})
	assert.Empty(t, got)
}

func TestMatcher_NotSucceedsWhenNothingMatches(t *testing.T) {
	m := NewMatcher(storeWith(fact("p", 1, "b")))

	got := m.Match(ir.Not{Child: ir.Pattern("p", "a")}, ir.Binding{"?z": ir.Number(1)})
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Degree)
	assert.Equal(t, ir.Binding{"?z": ir.Number(1)}, got[0].Binding)
}

func TestMatcher_SeesWritesBetweenCalls(t *testing.T) {
	s := kb.NewStore()
	m := NewMatcher(s)

	assert.Empty(t, m.Match(ir.Pattern("p", "?x"), ir.Binding{}))
	s.Upsert(fact("p", 1, "a"))
	assert.Len(t, m.Match(ir.Pattern("p", "?x"), ir.Binding{}), 1)
}

func TestMatcher_DoesNotMutateInputBinding(t *testing.T) {
	m := NewMatcher(storeWith(fact("p", 1, "a")))
	in := ir.Binding{"?y": ir.String("keep")}

	got := m.Match(ir.Leaf{Predicate: "p", Args: ir.Atoms("?x"), DegreeVar: "?d"}, in)
	require.Len(t, got, 1)
	assert.Equal(t, ir.Binding{"?y": ir.String("keep")}, in)
}
