package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactValidation(t *testing.T) {
	tests := []struct {
		name      string
		predicate string
		degree    float64
		wantField string
	}{
		{"empty predicate", "", 0.5, "predicate"},
		{"degree above one", "p", 1.5, "degree"},
		{"negative degree", "p", -0.1, "degree"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFact(tt.predicate, Atoms("a"), tt.degree)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			assert.Equal(t, tt.wantField, errs[0].Field)
		})
	}
}

func TestNewFactCopiesArgs(t *testing.T) {
	args := Atoms("a")
	f := MustFact("p", args, 1)
	args[0] = String("b")
	assert.Equal(t, String("a"), f.Args[0])
}

func TestFactKeyIgnoresDegree(t *testing.T) {
	assert.Equal(t, MustFact("p", Atoms("a"), 0.1).Key(), MustFact("p", Atoms("a"), 0.9).Key())
	assert.NotEqual(t, MustFact("p", Atoms("1"), 1).Key(), MustFact("p", Atoms(1), 1).Key())
	assert.NotEqual(t, MustFact("p", Atoms("a", "b"), 1).Key(), MustFact("p", Atoms("a\x00s:b"), 1).Key())
}

func TestClampDegree(t *testing.T) {
	assert.Equal(t, 0.0, ClampDegree(-2))
	assert.Equal(t, 1.0, ClampDegree(1.2))
	assert.Equal(t, 0.4, ClampDegree(0.4))
}

func TestNewRuleValidation(t *testing.T) {
	leaf := Pattern("p", "?x")
	add := Add("q", Atoms("?x"), nil)

	tests := []struct {
		name       string
		conditions []Condition
		actions    []Action
		wantField  string
	}{
		{"no conditions", nil, []Action{add}, "cond"},
		{"no actions", []Condition{leaf}, nil, "actions"},
		{"leaf without predicate", []Condition{Leaf{}}, []Action{add}, "cond[0].pred"},
		{"empty or", []Condition{Or{}}, []Action{add}, "cond[0].or"},
		{"nested bad leaf", []Condition{And{Children: []Condition{leaf, Leaf{}}}}, []Action{add}, "cond[0].and[1].pred"},
		{"bad degree var", []Condition{Leaf{Predicate: "p", DegreeVar: "d"}}, []Action{add}, "cond[0].deg"},
		{"bad action kind", []Condition{leaf}, []Action{{Kind: ActionKind(9), Fact: FactTemplate{Predicate: "q"}}}, "actions[0].action"},
		{"action without predicate", []Condition{leaf}, []Action{Add("", nil, nil)}, "actions[0].fact.pred"},
		{"division arity", []Condition{leaf}, []Action{Add("q", nil, Apply{Op: OpDiv, Operands: []DegreeExpr{Literal(1), Literal(2), Literal(3)}})}, "actions[0].fact.deg.operands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRule(tt.conditions, tt.actions, "", 0)
			require.Error(t, err)

			var errs ValidationErrors
			require.ErrorAs(t, err, &errs)
			fields := make([]string, len(errs))
			for i, e := range errs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestNewRuleIsImmutable(t *testing.T) {
	conds := []Condition{Pattern("p", "?x")}
	actions := []Action{Add("q", Atoms("?x"), nil)}

	r, err := NewRule(conds, actions, "r", 0)
	require.NoError(t, err)

	conds[0] = Pattern("changed")
	actions[0].Fact.Predicate = "changed"

	assert.Equal(t, "p", r.Conditions[0].(Leaf).Predicate)
	assert.Equal(t, "q", r.Actions[0].Fact.Predicate)
}

func TestParseActionKind(t *testing.T) {
	for _, tag := range []string{"add", "remove", "modify"} {
		k, err := ParseActionKind(tag)
		require.NoError(t, err)
		assert.Equal(t, tag, k.String())
	}
	_, err := ParseActionKind("delete")
	assert.Error(t, err)
}

func TestParseDegreeExpr(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    DegreeExpr
		wantErr bool
	}{
		{"literal", 0.8, Literal(0.8), false},
		{"int literal", 1, Literal(1), false},
		{"variable", "?d", VarRef("?d"), false},
		{"product", []any{"*", 0.9, "?d"}, Mul(Literal(0.9), VarRef("?d")), false},
		{"nested", []any{"min", []any{"+", 0.1, "?a"}, "?b"}, Apply{Op: OpMin, Operands: []DegreeExpr{
			Apply{Op: OpAdd, Operands: []DegreeExpr{Literal(0.1), VarRef("?a")}}, VarRef("?b"),
		}}, false},
		{"unknown operator", []any{"^", 1, 2}, nil, true},
		{"too few operands", []any{"*", 1}, nil, true},
		{"division arity", []any{"/", 1, 2, 3}, nil, true},
		{"plain string", "high", nil, true},
		{"bool", true, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDegreeExpr(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input != nil, ExprValue(got) != nil)
		})
	}
}

func TestParseConstraint(t *testing.T) {
	c, err := ParseConstraint([]any{">", "?d", 0.5})
	require.NoError(t, err)
	assert.Equal(t, Constraint{Op: OpGT, Operand: String("?d"), Threshold: Number(0.5)}, c)
	assert.Equal(t, []any{">", "?d", 0.5}, c.Value())

	_, err = ParseConstraint([]any{"=~", "?d", 0.5})
	assert.Error(t, err)

	_, err = ParseConstraint([]any{">", "?d"})
	assert.Error(t, err)

	_, err = ParseConstraint([]any{">", "?d", "high"})
	assert.Error(t, err, "ordered comparison needs a numeric threshold")

	c, err = ParseConstraint([]any{"==", "?x", "sam"})
	require.NoError(t, err)
	assert.Equal(t, OpEQ, c.Op)
}

func TestRulePredicates(t *testing.T) {
	r := MustRule(
		[]Condition{
			Pattern("is-mammal", "?x"),
			Not{Child: Pattern("is-pet", "?x")},
			Or{Children: []Condition{Pattern("a"), Pattern("b")}},
		},
		[]Action{Add("q", Atoms("?x"), nil), Remove("r", Atoms("?x"))},
		"", 0,
	)

	assert.Equal(t, map[string]bool{"is-mammal": true, "is-pet": true, "": true}, r.TopLevelPredicates())
	assert.Equal(t, []string{"q"}, r.ProducedPredicates())
	assert.Equal(t, "unnamed", r.DisplayName())
}
