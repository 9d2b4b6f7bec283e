package engine

import (
	"errors"
	"fmt"
)

// InferenceErrorCode categorizes inference failures.
type InferenceErrorCode string

const (
	// ErrCodeNonConvergent indicates the iteration cap was reached while
	// passes were still producing new firings.
	ErrCodeNonConvergent InferenceErrorCode = "NON_CONVERGENT"
)

// InferenceError is returned by Run when inference fails.
//
// Inference is not transactional: facts derived before the failure stay in
// the store.
type InferenceError struct {
	// Code identifies the error category.
	Code InferenceErrorCode

	// Message is a human-readable description.
	Message string

	// Iterations is the number of passes executed.
	Iterations int

	// MaxIterations is the configured cap.
	MaxIterations int

	// Session identifies the engine session.
	Session string

	// Facts is the fact count when the run stopped.
	Facts int
}

// Error implements the error interface.
func (e *InferenceError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.Session)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewNonConvergentError creates an InferenceError for a run that hit the cap.
func NewNonConvergentError(session string, iterations, maxIterations, facts int) *InferenceError {
	return &InferenceError{
		Code:          ErrCodeNonConvergent,
		Message:       fmt.Sprintf("inference did not converge after %d iterations", maxIterations),
		Iterations:    iterations,
		MaxIterations: maxIterations,
		Session:       session,
		Facts:         facts,
	}
}

// IsNonConvergent returns true if err is a non-convergence InferenceError.
// Uses errors.As to handle wrapped errors.
func IsNonConvergent(err error) bool {
	var ie *InferenceError
	if errors.As(err, &ie) {
		return ie.Code == ErrCodeNonConvergent
	}
	return false
}
