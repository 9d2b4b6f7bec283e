package degree

import (
	"errors"
	"fmt"
)

// DegreeErrorCode categorizes evaluation errors.
type DegreeErrorCode string

const (
	// ErrCodeUnknownOperator indicates an operator outside the closed set.
	ErrCodeUnknownOperator DegreeErrorCode = "UNKNOWN_OPERATOR"

	// ErrCodeUnboundVariable indicates a degree expression read an unbound variable.
	ErrCodeUnboundVariable DegreeErrorCode = "UNBOUND_VARIABLE"

	// ErrCodeNonNumeric indicates a variable bound to a non-numeric atom.
	ErrCodeNonNumeric DegreeErrorCode = "NON_NUMERIC"

	// ErrCodeArity indicates an operator applied to too few operands.
	ErrCodeArity DegreeErrorCode = "ARITY"
)

// DegreeError is raised while evaluating a constraint or degree expression.
// It aborts the single condition or action being evaluated, never a run.
type DegreeError struct {
	Code     DegreeErrorCode
	Message  string
	Operator string
	Variable string
}

// Error implements the error interface.
func (e *DegreeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewUnknownOperatorError creates a DegreeError for an unknown operator.
func NewUnknownOperatorError(op string) *DegreeError {
	return &DegreeError{
		Code:     ErrCodeUnknownOperator,
		Message:  fmt.Sprintf("unknown operator %q", op),
		Operator: op,
	}
}

// NewUnboundVariableError creates a DegreeError for an unbound variable.
func NewUnboundVariableError(name string) *DegreeError {
	return &DegreeError{
		Code:     ErrCodeUnboundVariable,
		Message:  fmt.Sprintf("unbound variable %s", name),
		Variable: name,
	}
}

// IsDegreeError returns true if err is (or wraps) a DegreeError.
func IsDegreeError(err error) bool {
	var de *DegreeError
	return errors.As(err, &de)
}

// IsUnboundVariable returns true if err is an unbound-variable DegreeError.
func IsUnboundVariable(err error) bool {
	var de *DegreeError
	if errors.As(err, &de) {
		return de.Code == ErrCodeUnboundVariable
	}
	return false
}
