package harness

import (
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// FactResult is a fact of the final fact set.
type FactResult struct {
	Pred string  `json:"pred"`
	Args []any   `json:"args"`
	Deg  float64 `json:"deg"`
}

func factResult(f ir.Fact) FactResult {
	return FactResult{Pred: f.Predicate, Args: ir.AtomValues(f.Args), Deg: f.Degree}
}

// String renders the fact as pred(a, b) 0.8000.
func (f FactResult) String() string {
	atoms := make([]ir.Atom, 0, len(f.Args))
	for _, a := range f.Args {
		if atom, err := ir.AtomFromAny(a); err == nil {
			atoms = append(atoms, atom)
		}
	}
	return fmt.Sprintf("%s(%s) %.4f", f.Pred, ir.FormatAtoms(atoms), f.Deg)
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	// State is the engine state after the run: converged or non_convergent.
	State string `json:"state"`

	Iterations int `json:"iterations"`
	Firings    int `json:"firings"`

	// Conflicts is the number of conflicts reported by a smart merge.
	Conflicts int `json:"conflicts"`

	// Facts is the final fact set in store insertion order.
	Facts []FactResult `json:"facts"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Facts:  []FactResult{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
