package engine

// IterationBudget counts inference passes against a maximum.
//
// Each Run gets a fresh budget. Next is called before every pass; once it
// returns false the run has used all of its passes.
type IterationBudget struct {
	maxIterations int
	current       int
}

// NewIterationBudget creates a budget allowing maxIterations passes.
// Values below 1 allow a single pass.
func NewIterationBudget(maxIterations int) *IterationBudget {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &IterationBudget{maxIterations: maxIterations}
}

// Next consumes one pass. Returns false if the budget is exhausted.
func (b *IterationBudget) Next() bool {
	if b.current >= b.maxIterations {
		return false
	}
	b.current++
	return true
}

// Current returns the number of passes consumed.
func (b *IterationBudget) Current() int {
	return b.current
}
