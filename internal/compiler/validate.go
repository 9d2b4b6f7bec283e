package compiler

import (
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// Validation codes (E100-E199).
const (
	// Document errors (E100)
	ErrEmptyDocument = "E100" // no facts and no rules

	// Fact errors (E101-E109)
	ErrInvalidFact   = "E101" // bad predicate, argument or degree
	ErrDuplicateFact = "E102" // same key twice; degrees fuzzy-OR on load

	// Rule errors (E110-E119)
	ErrRuleNoConditions  = "E110" // rule has no conditions
	ErrRuleNoActions     = "E111" // rule has no actions
	ErrInvalidCondition  = "E112" // unknown operator or malformed leaf
	ErrInvalidAction     = "E113" // unknown action tag or bad template
	ErrUnboundActionVar  = "E114" // action uses a variable no condition binds
	ErrDuplicateRuleName = "E115" // same name as an earlier rule
	ErrInvalidRule       = "E116" // any other rule construction error
)

// Levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// ValidationError is one document issue.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Level   string `json:"level"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// HasErrors reports whether any issue is at error level.
func HasErrors(issues []ValidationError) bool {
	for _, issue := range issues {
		if issue.Level == LevelError {
			return true
		}
	}
	return false
}

// Validate checks a decoded document and returns every issue found, in
// document order. Warnings do not prevent loading the document.
func Validate(doc ir.Document) []ValidationError {
	var issues []ValidationError

	if len(doc.Facts) == 0 && len(doc.Rules) == 0 {
		issues = append(issues, ValidationError{
			Message: "knowledge base is empty",
			Code:    ErrEmptyDocument,
			Level:   LevelWarning,
		})
		return issues
	}

	seen := make(map[ir.FactKey]int)
	for i, rec := range doc.Facts {
		field := fmt.Sprintf("facts[%d]", i)
		f, err := rec.ToFact()
		if err != nil {
			issues = append(issues, fieldIssues(field, err, ErrInvalidFact)...)
			continue
		}
		if first, dup := seen[f.Key()]; dup {
			issues = append(issues, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("duplicate of facts[%d] %s; degrees combine with fuzzy-OR", first, factLabel(f)),
				Code:    ErrDuplicateFact,
				Level:   LevelWarning,
			})
			continue
		}
		seen[f.Key()] = i
	}

	names := make(map[string]int)
	for i, rec := range doc.Rules {
		issues = append(issues, validateRuleRecord(fmt.Sprintf("rules[%d]", i), rec)...)
		if rec.Name == "" {
			continue
		}
		if first, dup := names[rec.Name]; dup {
			issues = append(issues, ValidationError{
				Field:   fmt.Sprintf("rules[%d].name", i),
				Message: fmt.Sprintf("rule name %q already used by rules[%d]", rec.Name, first),
				Code:    ErrDuplicateRuleName,
				Level:   LevelWarning,
			})
			continue
		}
		names[rec.Name] = i
	}
	return issues
}

func validateRuleRecord(field string, rec ir.RuleRecord) []ValidationError {
	var issues []ValidationError
	if len(rec.Cond) == 0 {
		issues = append(issues, ValidationError{
			Field:   field + ".cond",
			Message: "rule must have at least one condition",
			Code:    ErrRuleNoConditions,
			Level:   LevelError,
		})
	}
	if len(rec.Actions) == 0 {
		issues = append(issues, ValidationError{
			Field:   field + ".actions",
			Message: "rule must have at least one action",
			Code:    ErrRuleNoActions,
			Level:   LevelError,
		})
	}
	for i, node := range rec.Cond {
		if _, err := node.ToCondition(); err != nil {
			issues = append(issues, fieldIssues(fmt.Sprintf("%s.cond[%d]", field, i), err, ErrInvalidCondition)...)
		}
	}
	for i, node := range rec.Actions {
		if _, err := node.ToAction(); err != nil {
			issues = append(issues, fieldIssues(fmt.Sprintf("%s.actions[%d]", field, i), err, ErrInvalidAction)...)
		}
	}
	if len(issues) > 0 {
		return issues
	}

	r, err := rec.ToRule()
	if err != nil {
		return fieldIssues(field, err, ErrInvalidRule)
	}
	return unboundActionVars(field, r)
}

// unboundActionVars warns about action variables that no positive
// condition binds. The engine skips such actions at run time.
func unboundActionVars(field string, r ir.Rule) []ValidationError {
	bound := make(map[string]bool)
	for _, c := range r.Conditions {
		collectBound(c, bound)
	}

	var issues []ValidationError
	warn := func(i int, name string) {
		issues = append(issues, ValidationError{
			Field:   fmt.Sprintf("%s.actions[%d]", field, i),
			Message: fmt.Sprintf("variable %s is not bound by any condition", name),
			Code:    ErrUnboundActionVar,
			Level:   LevelWarning,
		})
	}
	for i, a := range r.Actions {
		reported := make(map[string]bool)
		for _, arg := range a.Fact.Args {
			if name, ok := ir.VariableName(arg); ok && !bound[name] && !reported[name] {
				reported[name] = true
				warn(i, name)
			}
		}
		if a.Fact.Degree == nil {
			continue
		}
		for _, name := range ir.ExprVariables(a.Fact.Degree) {
			if !bound[name] && !reported[name] {
				reported[name] = true
				warn(i, name)
			}
		}
	}
	return issues
}

// collectBound adds the variables c can bind. Negations bind nothing.
func collectBound(c ir.Condition, bound map[string]bool) {
	switch cond := c.(type) {
	case ir.Leaf:
		for _, arg := range cond.Args {
			if name, ok := ir.VariableName(arg); ok {
				bound[name] = true
			}
		}
		if cond.DegreeVar != "" {
			bound[cond.DegreeVar] = true
		}
	case ir.And:
		for _, child := range cond.Children {
			collectBound(child, bound)
		}
	case ir.Or:
		for _, child := range cond.Children {
			collectBound(child, bound)
		}
	}
}

func fieldIssues(prefix string, err error, code string) []ValidationError {
	var issues []ValidationError
	for _, ve := range validationErrors(err) {
		field := prefix
		if ve.Field != "" {
			if ve.Field[0] == '[' {
				field += ve.Field
			} else {
				field += "." + ve.Field
			}
		}
		issues = append(issues, ValidationError{
			Field:   field,
			Message: ve.Message,
			Code:    code,
			Level:   LevelError,
		})
	}
	return issues
}

func validationErrors(err error) []ir.ValidationError {
	switch e := err.(type) {
	case ir.ValidationErrors:
		return e
	case ir.ValidationError:
		return []ir.ValidationError{e}
	default:
		return []ir.ValidationError{{Message: err.Error()}}
	}
}

func factLabel(f ir.Fact) string {
	return fmt.Sprintf("%s(%s)", f.Predicate, ir.FormatAtoms(f.Args))
}
