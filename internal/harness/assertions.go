package harness

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Facts    []FactResult // Final fact set for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Facts) > 0 {
		fmt.Fprintf(&buf, "\nFinal facts:\n")
		for i, f := range e.Facts {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, f)
		}
	}

	return buf.String()
}

// patternOf converts assertion args into atoms. Args were checked when the
// scenario was loaded.
func patternOf(args []any) []ir.Atom {
	out := make([]ir.Atom, 0, len(args))
	for _, a := range args {
		atom, err := ir.AtomFromAny(a)
		if err != nil {
			continue
		}
		out = append(out, atom)
	}
	return out
}

// matchFacts returns the facts with pred whose args unify with pattern.
// Arity must match, so an empty pattern only matches zero-arity facts.
func matchFacts(facts []FactResult, pred string, pattern []ir.Atom) []FactResult {
	var out []FactResult
	for _, f := range facts {
		if f.Pred != pred {
			continue
		}
		if _, ok := ir.Unify(pattern, patternOf(f.Args), ir.Binding{}); ok {
			out = append(out, f)
		}
	}
	return out
}

func describe(pred string, args []any) string {
	return fmt.Sprintf("%s(%s)", pred, ir.FormatAtoms(patternOf(args)))
}

// assertFactDegree checks that exactly one fact matches and that its
// degree is within tolerance of the expected one.
func assertFactDegree(result *Result, a Assertion) error {
	matches := matchFacts(result.Facts, a.Pred, patternOf(a.Args))
	tolerance := a.Tolerance
	if tolerance == 0 {
		tolerance = DefaultTolerance
	}

	switch len(matches) {
	case 0:
		return &AssertionError{
			Type:     AssertFactDegree,
			Expected: fmt.Sprintf("%s with degree %.4f", describe(a.Pred, a.Args), *a.Degree),
			Actual:   "fact not found",
			Facts:    result.Facts,
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFactDegree,
			Expected: fmt.Sprintf("exactly one fact matching %s", describe(a.Pred, a.Args)),
			Actual:   fmt.Sprintf("%d facts matched (assertion is ambiguous)", len(matches)),
			Facts:    result.Facts,
		}
	}

	if math.Abs(matches[0].Deg-*a.Degree) > tolerance {
		return &AssertionError{
			Type:     AssertFactDegree,
			Expected: fmt.Sprintf("%s with degree %.4f (±%g)", describe(a.Pred, a.Args), *a.Degree, tolerance),
			Actual:   fmt.Sprintf("degree %.4f", matches[0].Deg),
			Facts:    result.Facts,
		}
	}
	return nil
}

// assertFactAbsent checks that no fact matches pred and args.
func assertFactAbsent(result *Result, a Assertion) error {
	matches := matchFacts(result.Facts, a.Pred, patternOf(a.Args))
	if len(matches) == 0 {
		return nil
	}
	found := make([]string, len(matches))
	for i, f := range matches {
		found[i] = f.String()
	}
	return &AssertionError{
		Type:     AssertFactAbsent,
		Expected: fmt.Sprintf("no fact matching %s", describe(a.Pred, a.Args)),
		Actual:   fmt.Sprintf("found %s", strings.Join(found, ", ")),
		Facts:    result.Facts,
	}
}

// assertFactCount counts facts with pred, filtered by args when given.
// An empty pred counts every fact.
func assertFactCount(result *Result, a Assertion) error {
	count := 0
	if a.Pred == "" {
		count = len(result.Facts)
	} else if len(a.Args) == 0 {
		for _, f := range result.Facts {
			if f.Pred == a.Pred {
				count++
			}
		}
	} else {
		count = len(matchFacts(result.Facts, a.Pred, patternOf(a.Args)))
	}

	if count != *a.Count {
		what := "facts"
		if a.Pred != "" {
			what = a.Pred + " facts"
		}
		return &AssertionError{
			Type:     AssertFactCount,
			Expected: fmt.Sprintf("%d %s", *a.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Facts:    result.Facts,
		}
	}
	return nil
}

// assertState checks the engine state after the run.
func assertState(result *Result, kind, want string) error {
	if result.State == want {
		return nil
	}
	return &AssertionError{
		Type:     kind,
		Expected: fmt.Sprintf("state %s", want),
		Actual:   fmt.Sprintf("state %s after %d iterations", result.State, result.Iterations),
	}
}

// assertConflictCount checks the number of conflicts found by the merge.
func assertConflictCount(result *Result, a Assertion) error {
	if result.Conflicts == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertConflictCount,
		Expected: fmt.Sprintf("%d conflicts", *a.Count),
		Actual:   fmt.Sprintf("%d conflicts", result.Conflicts),
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, a := range assertions {
		var err error

		switch a.Type {
		case AssertFactDegree:
			if a.Degree == nil {
				err = fmt.Errorf("assertion[%d]: fact_degree requires degree", i)
			} else {
				err = assertFactDegree(result, a)
			}
		case AssertFactAbsent:
			err = assertFactAbsent(result, a)
		case AssertFactCount:
			if a.Count == nil {
				err = fmt.Errorf("assertion[%d]: fact_count requires count", i)
			} else {
				err = assertFactCount(result, a)
			}
		case AssertConverged:
			err = assertState(result, a.Type, engine.StateConverged.String())
		case AssertNonConvergent:
			err = assertState(result, a.Type, engine.StateNonConvergent.String())
		case AssertConflictCount:
			if a.Count == nil {
				err = fmt.Errorf("assertion[%d]: conflict_count requires count", i)
			} else {
				err = assertConflictCount(result, a)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
