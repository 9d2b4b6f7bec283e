package kb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

func TestFromDocument(t *testing.T) {
	doc := ir.Document{
		Facts: []ir.FactRecord{
			{Pred: "p", Args: []any{"a"}, Deg: 0.3},
			{Pred: "p", Args: []any{"a"}, Deg: 0.6},
		},
		Rules: []ir.RuleRecord{{
			Name:    "r",
			Cond:    []ir.ConditionNode{{Pred: "p", Args: []any{"?x"}}},
			Actions: []ir.ActionNode{{Action: "add", Fact: ir.TemplateRecord{Pred: "q", Args: []any{"?x"}}}},
		}},
	}

	k, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, k.Facts.Len())
	got, _ := k.Facts.Get("p", ir.Atoms("a"))
	assert.Equal(t, 0.6, got.Degree, "duplicate keys resolve by fuzzy-OR")
	require.Len(t, k.Rules, 1)

	back := k.Document()
	assert.Len(t, back.Facts, 1)
	assert.Len(t, back.Rules, 1)
}

func TestFromDocumentInvalid(t *testing.T) {
	_, err := FromDocument(ir.Document{Facts: []ir.FactRecord{{Pred: "", Deg: 1}}})
	require.Error(t, err)
	assert.True(t, ir.IsValidationError(err))
}

func TestNamedRulesFirstWins(t *testing.T) {
	r := func(name string, prio int) ir.Rule {
		return ir.NewRuleBuilder().When("p").ThenAdd("q").Named(name).WithPriority(prio).MustBuild()
	}
	k := FromParts(nil, []ir.Rule{r("a", 0), r("", 0), r("a", 1), r("b", 0)})
	assert.Equal(t, map[string]int{"a": 0, "b": 3}, k.NamedRules())
}

func TestCloneIndependent(t *testing.T) {
	k := FromParts([]ir.Fact{ir.MustFact("p", nil, 1)}, nil)
	c := k.Clone()
	c.Facts.Clear()
	c.Rules = append(c.Rules, ir.NewRuleBuilder().When("p").ThenAdd("q").MustBuild())

	assert.Equal(t, 1, k.Facts.Len())
	assert.Empty(t, k.Rules)
}
