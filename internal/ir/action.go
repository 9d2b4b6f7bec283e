package ir

import (
	"fmt"
	"slices"
)

// ActionKind is the closed set of rule actions.
type ActionKind int

const (
	ActionAdd ActionKind = iota
	ActionRemove
	ActionModify
)

// String returns the wire tag for k.
func (k ActionKind) String() string {
	switch k {
	case ActionAdd:
		return "add"
	case ActionRemove:
		return "remove"
	case ActionModify:
		return "modify"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// ParseActionKind rejects tags other than add, remove and modify.
func ParseActionKind(s string) (ActionKind, error) {
	switch s {
	case "add":
		return ActionAdd, nil
	case "remove":
		return ActionRemove, nil
	case "modify":
		return ActionModify, nil
	default:
		return 0, fmt.Errorf("invalid action type %q (want add, remove or modify)", s)
	}
}

// FactTemplate is a fact whose args may reference variables.
// A nil Degree means DefaultDegree.
type FactTemplate struct {
	Predicate string
	Args      []Atom
	Degree    DegreeExpr
}

// Action is one effect of a rule firing.
type Action struct {
	Kind ActionKind
	Fact FactTemplate
}

// Add builds an add action. A nil degree means DefaultDegree.
func Add(predicate string, args []Atom, degree DegreeExpr) Action {
	return Action{Kind: ActionAdd, Fact: FactTemplate{Predicate: predicate, Args: args, Degree: degree}}
}

// Remove builds a remove action.
func Remove(predicate string, args []Atom) Action {
	return Action{Kind: ActionRemove, Fact: FactTemplate{Predicate: predicate, Args: args}}
}

// Modify builds a modify action.
func Modify(predicate string, args []Atom, degree DegreeExpr) Action {
	return Action{Kind: ActionModify, Fact: FactTemplate{Predicate: predicate, Args: args, Degree: degree}}
}

// ValidateAction checks the kind tag, predicate and degree expression of a.
func ValidateAction(a Action) error {
	return ValidationErrors(validateAction(a)).orNil()
}

func validateAction(a Action) []ValidationError {
	var errs []ValidationError
	switch a.Kind {
	case ActionAdd, ActionRemove, ActionModify:
	default:
		errs = append(errs, ValidationError{Field: "action", Message: fmt.Sprintf("invalid action type %s", a.Kind)})
	}
	if a.Fact.Predicate == "" {
		errs = append(errs, ValidationError{Field: "fact.pred", Message: "action must specify a fact predicate"})
	}
	for i, arg := range a.Fact.Args {
		if arg == nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("fact.args[%d]", i), Message: "argument cannot be null"})
		}
	}
	if a.Fact.Degree != nil {
		errs = append(errs, prefixed("fact.deg", validateExpr(a.Fact.Degree))...)
	}
	return errs
}

func cloneAction(a Action) Action {
	a.Fact.Args = slices.Clone(a.Fact.Args)
	return a
}
