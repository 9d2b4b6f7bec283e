package ir

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// VariableSigil marks a pattern argument as a variable ("?x").
const VariableSigil = "?"

// Atom is a sealed interface representing a fact argument or bound value.
// Only String, Number and Bool implement it.
type Atom interface {
	atom() // Sealed - only these types implement it
}

// String is a symbolic atom. Strings starting with VariableSigil are
// variables when they appear in a pattern.
type String string

func (String) atom() {}

// Number is a numeric atom. Degrees bound to variables are Numbers.
type Number float64

func (Number) atom() {}

// Bool is a boolean atom.
type Bool bool

func (Bool) atom() {}

// Var creates a variable atom. The sigil is added when missing.
func Var(name string) String {
	if strings.HasPrefix(name, VariableSigil) {
		return String(name)
	}
	return String(VariableSigil + name)
}

// Atoms converts plain Go values into atoms, panicking on unsupported types.
// Intended for tests and literal rule construction.
//
// Example: Atoms("?x", "sam", 3) → [String("?x"), String("sam"), Number(3)]
func Atoms(vals ...any) []Atom {
	out := make([]Atom, len(vals))
	for i, v := range vals {
		a, err := AtomFromAny(v)
		if err != nil {
			panic(fmt.Sprintf("Atoms[%d]: %v", i, err))
		}
		out[i] = a
	}
	return out
}

// IsVariable reports whether a is a variable reference.
func IsVariable(a Atom) bool {
	s, ok := a.(String)
	return ok && strings.HasPrefix(string(s), VariableSigil)
}

// VariableName returns the variable name of a, including the sigil.
func VariableName(a Atom) (string, bool) {
	if !IsVariable(a) {
		return "", false
	}
	return string(a.(String)), true
}

// AtomFromAny converts a decoded JSON/YAML/CUE value into an Atom.
// Nested arrays, objects and null are rejected.
func AtomFromAny(v any) (Atom, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a valid atom")
	case Atom:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case float64:
		return numberAtom(val)
	case float32:
		return numberAtom(float64(val))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return numberAtom(f)
	default:
		return nil, fmt.Errorf("unsupported atom type: %T", v)
	}
}

func numberAtom(f float64) (Atom, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number is not a valid atom: %v", f)
	}
	return Number(f), nil
}

// AtomValue returns the plain Go value of a for encoding.
func AtomValue(a Atom) any {
	switch val := a.(type) {
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// AtomValues converts atoms into plain Go values.
func AtomValues(atoms []Atom) []any {
	out := make([]any, len(atoms))
	for i, a := range atoms {
		out[i] = AtomValue(a)
	}
	return out
}

// FormatAtom renders a for humans: strings unquoted, numbers in shortest form.
func FormatAtom(a Atom) string {
	switch val := a.(type) {
	case String:
		return string(val)
	case Number:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", a)
	}
}

// FormatAtoms renders a comma separated argument list.
func FormatAtoms(atoms []Atom) string {
	parts := make([]string, len(atoms))
	for i, a := range atoms {
		parts[i] = FormatAtom(a)
	}
	return strings.Join(parts, ", ")
}
