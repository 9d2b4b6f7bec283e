package merge

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how two knowledge bases are combined.
type Strategy string

const (
	// StrategyUnion upserts every fact from both sides and concatenates rules.
	StrategyUnion Strategy = "union"

	// StrategyOverride lets the second knowledge base win on fact keys and
	// rule names.
	StrategyOverride Strategy = "override"

	// StrategyComplement keeps the first knowledge base and only adds what
	// it lacks.
	StrategyComplement Strategy = "complement"

	// StrategyWeighted averages fact degrees with normalized weights.
	StrategyWeighted Strategy = "weighted"

	// StrategySmart detects conflicts and resolves them.
	StrategySmart Strategy = "smart"
)

// Strategies lists every supported strategy in documentation order.
func Strategies() []Strategy {
	return []Strategy{StrategyUnion, StrategyOverride, StrategyComplement, StrategyWeighted, StrategySmart}
}

// ParseStrategy parses a strategy identifier. Matching is case-insensitive.
func ParseStrategy(s string) (Strategy, error) {
	want := Strategy(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range Strategies() {
		if st == want {
			return st, nil
		}
	}
	return "", &MergeError{Strategy: s}
}

// MergeError reports an unknown merge strategy identifier.
type MergeError struct {
	Strategy string
}

// Error implements the error interface.
func (e *MergeError) Error() string {
	return fmt.Sprintf("unknown merge strategy %q (want union, override, complement, weighted or smart)", e.Strategy)
}

// IsMergeError returns true if err is a MergeError.
// Uses errors.As to handle wrapped errors.
func IsMergeError(err error) bool {
	var me *MergeError
	return errors.As(err, &me)
}
