package ir

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a construction error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every problem found while validating one value.
// Validation is not fail-fast so callers see all problems at once.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	switch len(errs) {
	case 0:
		return "no validation errors"
	case 1:
		return errs[0].Error()
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(errs), strings.Join(msgs, "; "))
}

// orNil returns nil for an empty slice so callers can `return errs.orNil()`.
func (errs ValidationErrors) orNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsValidationError reports whether err is (or wraps) a validation error.
func IsValidationError(err error) bool {
	var single ValidationError
	if errors.As(err, &single) {
		return true
	}
	var multi ValidationErrors
	return errors.As(err, &multi)
}

// prefixed rewrites every field path in errs below prefix.
func prefixed(prefix string, errs []ValidationError) []ValidationError {
	out := make([]ValidationError, len(errs))
	for i, e := range errs {
		field := prefix
		if e.Field != "" {
			if strings.HasPrefix(e.Field, "[") {
				field = prefix + e.Field
			} else {
				field = prefix + "." + e.Field
			}
		}
		out[i] = ValidationError{Field: field, Message: e.Message}
	}
	return out
}
