package ir

import (
	"fmt"
	"slices"
)

// Condition is a sealed interface for rule condition trees.
// Only Leaf, And, Or and Not implement it.
type Condition interface {
	condition() // Sealed
}

// Leaf matches facts with Predicate and a unifiable argument tuple.
// DegreeVar, when set, binds the matched fact's degree. Constraint, when
// set, is checked against the extended binding.
type Leaf struct {
	Predicate  string
	Args       []Atom
	DegreeVar  string
	Constraint *Constraint
}

func (Leaf) condition() {}

// And joins its children left to right, combining degrees with min.
type And struct {
	Children []Condition
}

func (And) condition() {}

// Or concatenates the matches of its children.
type Or struct {
	Children []Condition
}

func (Or) condition() {}

// Not succeeds with degree 1.0 when Child has no match under the current binding.
type Not struct {
	Child Condition
}

func (Not) condition() {}

// Pattern is shorthand for a Leaf with no degree variable or constraint.
func Pattern(predicate string, args ...any) Leaf {
	return Leaf{Predicate: predicate, Args: Atoms(args...)}
}

// ValidateCondition checks c and all of its descendants.
func ValidateCondition(c Condition) error {
	return ValidationErrors(validateCondition(c)).orNil()
}

func validateCondition(c Condition) []ValidationError {
	switch cond := c.(type) {
	case Leaf:
		var errs []ValidationError
		if cond.Predicate == "" {
			errs = append(errs, ValidationError{Field: "pred", Message: "condition must have a predicate or a logical operator"})
		}
		for i, a := range cond.Args {
			if a == nil {
				errs = append(errs, ValidationError{Field: fmt.Sprintf("args[%d]", i), Message: "argument cannot be null"})
			}
		}
		if cond.DegreeVar != "" && !IsVariable(String(cond.DegreeVar)) {
			errs = append(errs, ValidationError{
				Field:   "deg",
				Message: fmt.Sprintf("degree variable %q must start with %s", cond.DegreeVar, VariableSigil),
			})
		}
		if cond.Constraint != nil {
			errs = append(errs, prefixed("deg-pred", cond.Constraint.validate())...)
		}
		return errs
	case And:
		return validateChildren("and", cond.Children)
	case Or:
		return validateChildren("or", cond.Children)
	case Not:
		if cond.Child == nil {
			return []ValidationError{{Field: "not", Message: "negation needs a condition"}}
		}
		return prefixed("not", validateCondition(cond.Child))
	case nil:
		return []ValidationError{{Message: "condition is nil"}}
	default:
		return []ValidationError{{Message: fmt.Sprintf("unsupported condition type %T", c)}}
	}
}

func validateChildren(op string, children []Condition) []ValidationError {
	if len(children) == 0 {
		return []ValidationError{{Field: op, Message: "logical operator needs at least one condition"}}
	}
	var errs []ValidationError
	for i, child := range children {
		errs = append(errs, prefixed(fmt.Sprintf("%s[%d]", op, i), validateCondition(child))...)
	}
	return errs
}

// cloneCondition deep-copies the slices of c so the result shares nothing.
func cloneCondition(c Condition) Condition {
	switch cond := c.(type) {
	case Leaf:
		cond.Args = slices.Clone(cond.Args)
		if cond.Constraint != nil {
			cp := *cond.Constraint
			cond.Constraint = &cp
		}
		return cond
	case And:
		return And{Children: cloneConditions(cond.Children)}
	case Or:
		return Or{Children: cloneConditions(cond.Children)}
	case Not:
		return Not{Child: cloneCondition(cond.Child)}
	default:
		return c
	}
}

func cloneConditions(cs []Condition) []Condition {
	out := make([]Condition, len(cs))
	for i, c := range cs {
		out[i] = cloneCondition(c)
	}
	return out
}

// ConditionPredicate returns the predicate a top-level condition tests.
// Negated leaves report the inner predicate; And/Or report "".
func ConditionPredicate(c Condition) string {
	switch cond := c.(type) {
	case Leaf:
		return cond.Predicate
	case Not:
		return ConditionPredicate(cond.Child)
	default:
		return ""
	}
}

// ConditionPredicates lists every predicate referenced anywhere in c.
func ConditionPredicates(c Condition) []string {
	var out []string
	var walk func(Condition)
	walk = func(c Condition) {
		switch cond := c.(type) {
		case Leaf:
			out = append(out, cond.Predicate)
		case And:
			for _, child := range cond.Children {
				walk(child)
			}
		case Or:
			for _, child := range cond.Children {
				walk(child)
			}
		case Not:
			walk(cond.Child)
		}
	}
	walk(c)
	return out
}
