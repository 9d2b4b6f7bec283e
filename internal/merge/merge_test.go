package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

func fact(pred string, deg float64, args ...any) ir.Fact {
	return ir.MustFact(pred, ir.Atoms(args...), deg)
}

func rule(name string, priority int, preds ...string) ir.Rule {
	b := ir.NewRuleBuilder()
	for _, p := range preds {
		b.When(p, "?x")
	}
	return b.ThenAdd("derived-"+name, "?x").Named(name).WithPriority(priority).MustBuild()
}

func newKB(facts []ir.Fact, rules ...ir.Rule) *kb.KnowledgeBase {
	return kb.FromParts(facts, rules)
}

func degreeIn(t *testing.T, k *kb.KnowledgeBase, pred string, args ...any) float64 {
	t.Helper()
	f, ok := k.Facts.Get(pred, ir.Atoms(args...))
	require.True(t, ok, "fact %s%v missing", pred, args)
	return f.Degree
}

func ruleNamesOf(k *kb.KnowledgeBase) []string {
	var out []string
	for _, r := range k.Rules {
		out = append(out, r.Name)
	}
	return out
}

func TestParseStrategy(t *testing.T) {
	for _, s := range Strategies() {
		got, err := ParseStrategy(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	got, err := ParseStrategy(" Smart ")
	require.NoError(t, err)
	assert.Equal(t, StrategySmart, got)

	_, err = ParseStrategy("majority")
	require.Error(t, err)
	assert.True(t, IsMergeError(err))
	assert.Contains(t, err.Error(), `"majority"`)
}

func TestMerge_UnknownStrategy(t *testing.T) {
	_, err := Merge(kb.New(), kb.New(), Strategy("nope"))
	assert.True(t, IsMergeError(err))
}

func TestMerge_Union(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("is-x", 0.4, "a"), fact("only1", 1, "a")}, rule("r1", 0, "p"))
	kb2 := newKB([]ir.Fact{fact("is-x", 0.9, "a"), fact("only2", 1, "b")}, rule("r1", 0, "p"), rule("r2", 0, "q"))

	res, err := Merge(kb1, kb2, StrategyUnion)
	require.NoError(t, err)

	assert.InDelta(t, 0.9, degreeIn(t, res.KB, "is-x", "a"), 1e-9)
	assert.Equal(t, 3, res.KB.Facts.Len())
	assert.Equal(t, []string{"r1", "r1", "r2"}, ruleNamesOf(res.KB))
	assert.Empty(t, res.Conflicts)
}

func TestMerge_UnionIsOrderIndependentForDegrees(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("is-x", 0.9, "a")})
	kb2 := newKB([]ir.Fact{fact("is-x", 0.4, "a")})

	res, err := Merge(kb1, kb2, StrategyUnion)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, degreeIn(t, res.KB, "is-x", "a"), 1e-9)
}

func TestMerge_Override(t *testing.T) {
	unnamed := ir.NewRuleBuilder().When("z", "?x").ThenAdd("zz", "?x").MustBuild()
	kb1 := newKB(
		[]ir.Fact{fact("p", 0.9, "a"), fact("p", 0.3, "b")},
		rule("shared", 5, "p"), rule("mine", 0, "p"), unnamed,
	)
	kb2 := newKB(
		[]ir.Fact{fact("p", 0.2, "a")},
		rule("shared", 1, "q"),
	)

	res, err := Merge(kb1, kb2, StrategyOverride)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, degreeIn(t, res.KB, "p", "a"), 1e-9, "KB2 wins on shared keys even when lower")
	assert.InDelta(t, 0.3, degreeIn(t, res.KB, "p", "b"), 1e-9)
	assert.Equal(t, []string{"shared", "mine", ""}, ruleNamesOf(res.KB))
	assert.Equal(t, 1, res.KB.Rules[0].Priority, "shared rule comes from KB2")
}

func TestMerge_Complement(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("p", 0.2, "a")}, rule("shared", 1, "p"))
	kb2 := newKB(
		[]ir.Fact{fact("p", 0.9, "a"), fact("p", 0.5, "b")},
		rule("shared", 9, "p"), rule("theirs", 0, "q"),
	)

	res, err := Merge(kb1, kb2, StrategyComplement)
	require.NoError(t, err)

	assert.InDelta(t, 0.2, degreeIn(t, res.KB, "p", "a"), 1e-9, "KB1 keys are never touched")
	assert.InDelta(t, 0.5, degreeIn(t, res.KB, "p", "b"), 1e-9)
	assert.Equal(t, []string{"shared", "theirs"}, ruleNamesOf(res.KB))
	assert.Equal(t, 1, res.KB.Rules[0].Priority)
}

func TestMerge_Weighted(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("p", 0.4, "a"), fact("only1", 1, "x")}, rule("r1", 0, "p"))
	kb2 := newKB([]ir.Fact{fact("p", 0.8, "a"), fact("only2", 1, "y")}, rule("r2", 0, "p"))

	tests := []struct {
		name      string
		opts      []Option
		p, o1, o2 float64
	}{
		{"default equal", nil, 0.6, 0.5, 0.5},
		{"explicit equal", []Option{WithWeights(0.5, 0.5)}, 0.6, 0.5, 0.5},
		{"normalized", []Option{WithWeights(3, 1)}, 0.5, 0.75, 0.25},
		{"negative falls back", []Option{WithWeights(-1, 2)}, 0.6, 0.5, 0.5},
		{"zero total falls back", []Option{WithWeights(0, 0)}, 0.6, 0.5, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Merge(kb1, kb2, StrategyWeighted, tt.opts...)
			require.NoError(t, err)
			assert.InDelta(t, tt.p, degreeIn(t, res.KB, "p", "a"), 1e-9)
			assert.InDelta(t, tt.o1, degreeIn(t, res.KB, "only1", "x"), 1e-9)
			assert.InDelta(t, tt.o2, degreeIn(t, res.KB, "only2", "y"), 1e-9)
			assert.Equal(t, []string{"r1", "r2"}, ruleNamesOf(res.KB))
		})
	}
}

func TestMerge_WeightedFactOrder(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("b", 1, "1"), fact("a", 1, "1")})
	kb2 := newKB([]ir.Fact{fact("c", 1, "1"), fact("a", 1, "1")})

	res, err := Merge(kb1, kb2, StrategyWeighted)
	require.NoError(t, err)

	var preds []string
	for _, f := range res.KB.Facts.All() {
		preds = append(preds, f.Predicate)
	}
	assert.Equal(t, []string{"b", "a", "c"}, preds)
}

func TestMerge_InputsUntouched(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("p", 0.4, "a")}, rule("r", 0, "p"))
	kb2 := newKB([]ir.Fact{fact("p", 0.9, "a")}, rule("r", 3, "p", "q"))
	before1, before2 := kb1.Facts.All(), kb2.Facts.All()

	for _, s := range Strategies() {
		res, err := Merge(kb1, kb2, s, WithAutoResolve(true))
		require.NoError(t, err)
		res.KB.Facts.Upsert(fact("p", 1, "a"))
		if len(res.KB.Rules) > 0 {
			res.KB.Rules[0].Name = "mutated"
		}
	}

	if diff := cmp.Diff(before1, kb1.Facts.All()); diff != "" {
		t.Errorf("kb1 facts changed:\n%s", diff)
	}
	if diff := cmp.Diff(before2, kb2.Facts.All()); diff != "" {
		t.Errorf("kb2 facts changed:\n%s", diff)
	}
	assert.Equal(t, "r", kb1.Rules[0].Name)
	assert.Equal(t, "r", kb2.Rules[0].Name)
}

// =============================================================================
// Smart
// =============================================================================

func TestMerge_SmartFactContradiction(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("is-x", 0.9, "a")})
	kb2 := newKB([]ir.Fact{fact("is-x", 0.2, "a")})

	res, err := Merge(kb1, kb2, StrategySmart, WithThreshold(0.5))
	require.NoError(t, err)

	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, FactContradiction, c.Type)
	assert.InDelta(t, 0.7, c.Severity, 1e-9)
	assert.Equal(t, "is-x(a): 0.90 vs 0.20", c.Description)
	assert.Equal(t, "Use KB1 value or average", c.Suggested)

	assert.InDelta(t, 0.9, degreeIn(t, res.KB, "is-x", "a"), 1e-9, "without auto resolve the higher degree is kept")
}

func TestMerge_SmartFactResolution(t *testing.T) {
	tests := []struct {
		name   string
		d1, d2 float64
		auto   bool
		want   float64
	}{
		{"auto averages moderate", 0.9, 0.3, true, 0.6},
		{"auto keeps higher on severe", 0.1, 0.95, true, 0.95},
		{"manual keeps kb1 when higher", 0.9, 0.3, false, 0.9},
		{"manual keeps kb2 when higher", 0.3, 0.9, false, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kb1 := newKB([]ir.Fact{fact("p", tt.d1, "a")})
			kb2 := newKB([]ir.Fact{fact("p", tt.d2, "a")})

			res, err := Merge(kb1, kb2, StrategySmart, WithThreshold(0.5), WithAutoResolve(tt.auto))
			require.NoError(t, err)
			require.Len(t, res.Conflicts, 1)
			assert.InDelta(t, tt.want, degreeIn(t, res.KB, "p", "a"), 1e-9)
			assert.Equal(t, 1, res.KB.Facts.Len())
		})
	}
}

func TestMerge_SmartNonConflictingFactsFuzzyOr(t *testing.T) {
	kb1 := newKB([]ir.Fact{fact("p", 0.5, "a"), fact("q", 1, "x")})
	kb2 := newKB([]ir.Fact{fact("p", 0.7, "a"), fact("r", 1, "y")})

	res, err := Merge(kb1, kb2, StrategySmart)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.InDelta(t, 0.7, degreeIn(t, res.KB, "p", "a"), 1e-9)
	assert.Equal(t, 3, res.KB.Facts.Len())
}

func TestMerge_SmartRuleContradiction(t *testing.T) {
	tests := []struct {
		name         string
		p1, p2       int
		auto         bool
		wantPriority int
	}{
		{"higher kb2 wins", 1, 5, false, 5},
		{"higher kb1 wins", 5, 1, true, 5},
		{"tie auto prefers kb2", 2, 2, true, 2},
		{"tie manual prefers kb1", 2, 2, false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r1 := rule("classify", tt.p1, "p")
			r2 := rule("classify", tt.p2, "p", "q")
			res, err := Merge(newKB(nil, r1), newKB(nil, r2), StrategySmart, WithAutoResolve(tt.auto))
			require.NoError(t, err)

			var types []ConflictType
			for _, c := range res.Conflicts {
				types = append(types, c.Type)
			}
			assert.Contains(t, types, RuleContradiction)

			var classify []ir.Rule
			for _, r := range res.KB.Rules {
				if r.Name == "classify" {
					classify = append(classify, r)
				}
			}
			require.Len(t, classify, 1, "exactly one implementation survives")
			assert.Equal(t, tt.wantPriority, classify[0].Priority)
		})
	}
}

func TestMerge_SmartTieWinnerSide(t *testing.T) {
	r1 := rule("classify", 2, "p")
	r2 := rule("classify", 2, "p", "q", "s")

	auto, err := Merge(newKB(nil, r1), newKB(nil, r2), StrategySmart, WithAutoResolve(true))
	require.NoError(t, err)
	require.Len(t, auto.KB.Rules, 1)
	assert.Len(t, auto.KB.Rules[0].Conditions, 3, "auto resolution hands ties to KB2")

	manual, err := Merge(newKB(nil, r1), newKB(nil, r2), StrategySmart)
	require.NoError(t, err)
	require.Len(t, manual.KB.Rules, 1)
	assert.Len(t, manual.KB.Rules[0].Conditions, 1)
}

func TestMerge_SmartEquivalentNamedRuleNotDuplicated(t *testing.T) {
	res, err := Merge(newKB(nil, rule("same", 0, "p")), newKB(nil, rule("same", 0, "q")), StrategySmart)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, []string{"same"}, ruleNamesOf(res.KB))
}

func TestMerge_SmartSubsumption(t *testing.T) {
	general := rule("general", 0, "bird")
	specific := rule("specific", 0, "bird", "small")

	manual, err := Merge(newKB(nil, general), newKB(nil, specific), StrategySmart)
	require.NoError(t, err)
	require.Len(t, manual.Conflicts, 1)
	assert.Equal(t, Subsumption, manual.Conflicts[0].Type)
	assert.Equal(t, "Rule 'general' subsumes 'specific'", manual.Conflicts[0].Description)
	assert.Equal(t, []string{"general", "specific"}, ruleNamesOf(manual.KB), "both kept without auto resolve")

	auto, err := Merge(newKB(nil, general), newKB(nil, specific), StrategySmart, WithAutoResolve(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"specific"}, ruleNamesOf(auto.KB))

	reversed, err := Merge(newKB(nil, specific), newKB(nil, general), StrategySmart, WithAutoResolve(true))
	require.NoError(t, err)
	assert.Equal(t, []string{"specific"}, ruleNamesOf(reversed.KB), "direction does not matter")
}
