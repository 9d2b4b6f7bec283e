package engine

import (
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// Derivation records where the current degree of a fact came from.
type Derivation struct {
	// Base is true for facts added directly through AddFact(s).
	Base bool

	// Kind is ActionAdd or ActionModify for rule-derived facts.
	Kind      ir.ActionKind
	RuleIndex int
	RuleName  string
	Binding   ir.Binding
	Iteration int
	Seq       int64
}

// Explanation answers "why is this fact believed".
type Explanation struct {
	Predicate string
	Args      []ir.Atom
	Found     bool
	Fact      ir.Fact
	// Derivation is nil when the fact is absent or has no recorded origin.
	Derivation *Derivation
}

// Explain reports whether (predicate, args) is stored and, if so, which
// base assertion or rule firing last set its degree.
func (e *Engine) Explain(predicate string, args []ir.Atom) Explanation {
	ex := Explanation{Predicate: predicate, Args: args}
	f, ok := e.facts.Get(predicate, args)
	if !ok {
		return ex
	}
	ex.Found = true
	ex.Fact = f
	if d, ok := e.provenance[f.Key()]; ok {
		ex.Derivation = &d
	}
	return ex
}

// Lines renders the explanation for display.
func (ex Explanation) Lines() []string {
	if !ex.Found {
		return []string{fmt.Sprintf("Fact %s(%s) not found in knowledge base", ex.Predicate, ir.FormatAtoms(ex.Args))}
	}

	lines := []string{fmt.Sprintf("Fact %s(%s) exists with degree %.2f", ex.Fact.Predicate, ir.FormatAtoms(ex.Fact.Args), ex.Fact.Degree)}
	d := ex.Derivation
	switch {
	case d == nil:
		lines = append(lines, "No derivation recorded")
	case d.Base:
		lines = append(lines, "Asserted as a base fact")
	default:
		verb := "Derived"
		if d.Kind == ir.ActionModify {
			verb = "Modified"
		}
		name := d.RuleName
		if name == "" {
			name = "unnamed"
		}
		lines = append(lines,
			fmt.Sprintf("%s by rule '%s' (#%d) in iteration %d", verb, name, d.RuleIndex, d.Iteration),
			"Binding: "+d.Binding.String(),
		)
	}
	return lines
}
