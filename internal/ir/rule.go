package ir

import (
	"fmt"
)

// Rule is an immutable production rule. Conditions are an implicit AND.
// Higher Priority fires earlier; ties keep insertion order.
type Rule struct {
	Conditions []Condition
	Actions    []Action
	Name       string
	Priority   int
}

// NewRule validates the parts and returns a Rule that shares no slices
// with its inputs.
func NewRule(conditions []Condition, actions []Action, name string, priority int) (Rule, error) {
	r := Rule{Conditions: conditions, Actions: actions, Name: name, Priority: priority}
	if err := ValidateRule(r); err != nil {
		return Rule{}, err
	}
	return r.Clone(), nil
}

// MustRule is like NewRule but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustRule(conditions []Condition, actions []Action, name string, priority int) Rule {
	r, err := NewRule(conditions, actions, name, priority)
	if err != nil {
		panic(err)
	}
	return r
}

// ValidateRule checks rule shape and every condition and action.
// Returns all errors, not just the first.
func ValidateRule(r Rule) error {
	var errs ValidationErrors
	if len(r.Conditions) == 0 {
		errs = append(errs, ValidationError{Field: "cond", Message: "rule must have at least one condition"})
	}
	if len(r.Actions) == 0 {
		errs = append(errs, ValidationError{Field: "actions", Message: "rule must have at least one action"})
	}
	for i, c := range r.Conditions {
		errs = append(errs, prefixed(fmt.Sprintf("cond[%d]", i), validateCondition(c))...)
	}
	for i, a := range r.Actions {
		errs = append(errs, prefixed(fmt.Sprintf("actions[%d]", i), validateAction(a))...)
	}
	return errs.orNil()
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	out := r
	out.Conditions = cloneConditions(r.Conditions)
	out.Actions = make([]Action, len(r.Actions))
	for i, a := range r.Actions {
		out.Actions[i] = cloneAction(a)
	}
	return out
}

// DisplayName returns the rule name or "unnamed".
func (r Rule) DisplayName() string {
	if r.Name == "" {
		return "unnamed"
	}
	return r.Name
}

// TopLevelPredicates returns the set of predicates tested by r's
// top-level conditions. Logical groupings contribute "".
func (r Rule) TopLevelPredicates() map[string]bool {
	out := make(map[string]bool, len(r.Conditions))
	for _, c := range r.Conditions {
		out[ConditionPredicate(c)] = true
	}
	return out
}

// ProducedPredicates lists the predicates r's add and modify actions write.
func (r Rule) ProducedPredicates() []string {
	var out []string
	for _, a := range r.Actions {
		if a.Kind == ActionAdd || a.Kind == ActionModify {
			out = append(out, a.Fact.Predicate)
		}
	}
	return out
}
