package ir

import (
	"errors"
	"fmt"
)

// implicitDegreeVar is bound on the first condition when a degree
// multiplier is requested before any degree variable exists.
const implicitDegreeVar = "?_deg"

// defaultDegreeVar is used by degree constraints when the current
// condition has no degree variable yet.
const defaultDegreeVar = "?d"

// RuleBuilder assembles a Rule through chained calls.
//
//	rule, err := ir.NewRuleBuilder().
//		When("is-zebra", "?x").
//		WithDegreeGreaterThan(0.5).
//		ThenAdd("has-stripes", "?x").
//		WithDegreeMultipliedBy(0.9).
//		Build()
//
// Misuse (e.g. a constraint with no preceding condition) is recorded and
// reported by Build. Nothing the builder holds is shared with the Rule.
type RuleBuilder struct {
	conditions []Condition
	actions    []Action
	name       string
	priority   int
	degreeVar  string
	curCond    int
	curAction  int
	errs       []error
}

// NewRuleBuilder returns an empty builder.
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{curCond: -1, curAction: -1}
}

func (b *RuleBuilder) fail(format string, args ...any) *RuleBuilder {
	b.errs = append(b.errs, ValidationError{Field: "builder", Message: fmt.Sprintf(format, args...)})
	return b
}

// When adds a positive condition.
func (b *RuleBuilder) When(predicate string, args ...any) *RuleBuilder {
	atoms, err := atomsOrError(args)
	if err != nil {
		return b.fail("When(%s): %v", predicate, err)
	}
	b.conditions = append(b.conditions, Leaf{Predicate: predicate, Args: atoms})
	b.curCond = len(b.conditions) - 1
	return b
}

// WhenNot adds a negated condition.
func (b *RuleBuilder) WhenNot(predicate string, args ...any) *RuleBuilder {
	atoms, err := atomsOrError(args)
	if err != nil {
		return b.fail("WhenNot(%s): %v", predicate, err)
	}
	b.conditions = append(b.conditions, Not{Child: Leaf{Predicate: predicate, Args: atoms}})
	b.curCond = len(b.conditions) - 1
	return b
}

// WhenAny adds a disjunction of conditions.
func (b *RuleBuilder) WhenAny(conditions ...Condition) *RuleBuilder {
	b.conditions = append(b.conditions, Or{Children: conditions})
	b.curCond = len(b.conditions) - 1
	return b
}

// BindDegree binds the current condition's fact degree to varName.
func (b *RuleBuilder) BindDegree(varName string) *RuleBuilder {
	return b.updateLeaf("BindDegree", func(l *Leaf) {
		l.DegreeVar = string(Var(varName))
		b.degreeVar = l.DegreeVar
	})
}

// WithDegreeGreaterThan constrains the current condition's degree to > threshold.
func (b *RuleBuilder) WithDegreeGreaterThan(threshold float64) *RuleBuilder {
	return b.withConstraint("WithDegreeGreaterThan", OpGT, threshold)
}

// WithDegreeLessThan constrains the current condition's degree to < threshold.
func (b *RuleBuilder) WithDegreeLessThan(threshold float64) *RuleBuilder {
	return b.withConstraint("WithDegreeLessThan", OpLT, threshold)
}

func (b *RuleBuilder) withConstraint(method string, op CompareOp, threshold float64) *RuleBuilder {
	return b.updateLeaf(method, func(l *Leaf) {
		if l.DegreeVar == "" {
			l.DegreeVar = defaultDegreeVar
		}
		l.Constraint = &Constraint{Op: op, Operand: String(l.DegreeVar), Threshold: Number(threshold)}
		b.degreeVar = l.DegreeVar
	})
}

func (b *RuleBuilder) updateLeaf(method string, fn func(*Leaf)) *RuleBuilder {
	if b.curCond < 0 {
		return b.fail("%s: no condition to constrain", method)
	}
	switch c := b.conditions[b.curCond].(type) {
	case Leaf:
		fn(&c)
		b.conditions[b.curCond] = c
	case Not:
		leaf, ok := c.Child.(Leaf)
		if !ok {
			return b.fail("%s: current condition is not a pattern", method)
		}
		fn(&leaf)
		b.conditions[b.curCond] = Not{Child: leaf}
	default:
		return b.fail("%s: current condition is not a pattern", method)
	}
	return b
}

// ThenAdd adds a fact with degree 1.0 unless followed by WithDegree or
// WithDegreeMultipliedBy.
func (b *RuleBuilder) ThenAdd(predicate string, args ...any) *RuleBuilder {
	return b.then("ThenAdd", ActionAdd, predicate, args)
}

// ThenRemove removes a fact.
func (b *RuleBuilder) ThenRemove(predicate string, args ...any) *RuleBuilder {
	return b.then("ThenRemove", ActionRemove, predicate, args)
}

// ThenModify overwrites a fact's degree. Follow with WithDegree or
// WithDegreeExpr to set the new degree.
func (b *RuleBuilder) ThenModify(predicate string, args ...any) *RuleBuilder {
	return b.then("ThenModify", ActionModify, predicate, args)
}

func (b *RuleBuilder) then(method string, kind ActionKind, predicate string, args []any) *RuleBuilder {
	atoms, err := atomsOrError(args)
	if err != nil {
		return b.fail("%s(%s): %v", method, predicate, err)
	}
	b.actions = append(b.actions, Action{Kind: kind, Fact: FactTemplate{Predicate: predicate, Args: atoms}})
	b.curAction = len(b.actions) - 1
	return b
}

// WithDegree sets a literal degree on the current add or modify action.
func (b *RuleBuilder) WithDegree(degree float64) *RuleBuilder {
	return b.WithDegreeExpr(Literal(degree))
}

// WithDegreeExpr sets the degree expression on the current add or modify action.
func (b *RuleBuilder) WithDegreeExpr(e DegreeExpr) *RuleBuilder {
	if b.curAction < 0 || b.actions[b.curAction].Kind == ActionRemove {
		return b.fail("WithDegreeExpr: no add or modify action to set a degree on")
	}
	b.actions[b.curAction].Fact.Degree = e
	return b
}

// WithDegreeMultipliedBy sets the current add action's degree to
// factor times the bound condition degree. If no degree variable has been
// bound yet, the first condition binds one implicitly.
func (b *RuleBuilder) WithDegreeMultipliedBy(factor float64) *RuleBuilder {
	if b.curAction < 0 || b.actions[b.curAction].Kind != ActionAdd {
		return b.fail("WithDegreeMultipliedBy: no add action to modify degree for")
	}
	if b.degreeVar == "" && len(b.conditions) > 0 {
		if first, ok := b.conditions[0].(Leaf); ok {
			if first.DegreeVar == "" {
				first.DegreeVar = implicitDegreeVar
				b.conditions[0] = first
			}
			b.degreeVar = first.DegreeVar
		}
	}
	if b.degreeVar == "" {
		b.actions[b.curAction].Fact.Degree = Literal(factor)
		return b
	}
	b.actions[b.curAction].Fact.Degree = Mul(Literal(factor), VarRef(b.degreeVar))
	return b
}

// Named sets the rule name.
func (b *RuleBuilder) Named(name string) *RuleBuilder {
	b.name = name
	return b
}

// WithPriority sets the rule priority.
func (b *RuleBuilder) WithPriority(priority int) *RuleBuilder {
	b.priority = priority
	return b
}

// Build validates and returns the rule.
func (b *RuleBuilder) Build() (Rule, error) {
	if len(b.errs) > 0 {
		return Rule{}, errors.Join(b.errs...)
	}
	return NewRule(b.conditions, b.actions, b.name, b.priority)
}

// MustBuild is like Build but panics on error.
func (b *RuleBuilder) MustBuild() Rule {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func atomsOrError(vals []any) ([]Atom, error) {
	out := make([]Atom, len(vals))
	for i, v := range vals {
		a, err := AtomFromAny(v)
		if err != nil {
			return nil, fmt.Errorf("args[%d]: %w", i, err)
		}
		out[i] = a
	}
	return out, nil
}
