package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// parseFactRef parses "pred" or "pred(a, 2, ?x)" from the command line.
// Arguments that parse as numbers or booleans become number and bool
// atoms; everything else is a string. Quote an argument to keep it a
// string: pred("42").
func parseFactRef(s string) (string, []ir.Atom, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 {
		if s == "" {
			return "", nil, fmt.Errorf("empty fact reference")
		}
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", nil, fmt.Errorf("fact reference %q: missing closing parenthesis", s)
	}
	pred := strings.TrimSpace(s[:open])
	if pred == "" {
		return "", nil, fmt.Errorf("fact reference %q: missing predicate", s)
	}

	inner := strings.TrimSpace(s[open+1 : len(s)-1])
	if inner == "" {
		return pred, []ir.Atom{}, nil
	}
	parts := strings.Split(inner, ",")
	args := make([]ir.Atom, len(parts))
	for i, p := range parts {
		args[i] = parseAtom(strings.TrimSpace(p))
	}
	return pred, args, nil
}

func parseAtom(s string) ir.Atom {
	if unquoted, err := strconv.Unquote(s); err == nil {
		return ir.String(unquoted)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return ir.Number(f)
	}
	switch s {
	case "true":
		return ir.Bool(true)
	case "false":
		return ir.Bool(false)
	}
	return ir.String(s)
}
