package ir

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultDegree is the degree of a fact or action with no explicit degree.
const DefaultDegree = 1.0

// Fact is a fuzzy fact: predicate(args...) believed with Degree in [0,1].
// Identity is (Predicate, Args); Degree is not part of identity.
type Fact struct {
	Predicate string
	Args      []Atom
	Degree    float64
}

// FactKey is the storage identity of a fact.
type FactKey string

// NewFact validates and constructs a fact. Args are copied.
func NewFact(predicate string, args []Atom, degree float64) (Fact, error) {
	var errs ValidationErrors
	if predicate == "" {
		errs = append(errs, ValidationError{Field: "predicate", Message: "predicate cannot be empty"})
	}
	if !ValidDegree(degree) {
		errs = append(errs, ValidationError{
			Field:   "degree",
			Message: fmt.Sprintf("degree must be between 0 and 1, got %v", degree),
		})
	}
	for i, a := range args {
		if a == nil {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("args[%d]", i), Message: "argument cannot be null"})
			continue
		}
		if n, ok := a.(Number); ok && (math.IsNaN(float64(n)) || math.IsInf(float64(n), 0)) {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("args[%d]", i), Message: "argument must be a finite number"})
		}
	}
	if err := errs.orNil(); err != nil {
		return Fact{}, err
	}
	return Fact{Predicate: predicate, Args: slices.Clone(args), Degree: degree}, nil
}

// MustFact is like NewFact but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFact(predicate string, args []Atom, degree float64) Fact {
	f, err := NewFact(predicate, args, degree)
	if err != nil {
		panic(err)
	}
	return f
}

// ValidDegree reports whether d is a finite value in [0,1].
func ValidDegree(d float64) bool {
	return !math.IsNaN(d) && d >= 0 && d <= 1
}

// ClampDegree clamps d into [0,1]. NaN clamps to 0.
func ClampDegree(d float64) float64 {
	switch {
	case math.IsNaN(d), d < 0:
		return 0
	case d > 1:
		return 1
	default:
		return d
	}
}

// Key returns the storage identity of f.
func (f Fact) Key() FactKey {
	return KeyOf(f.Predicate, f.Args)
}

// KeyOf builds the storage identity for (predicate, args).
// Strings are NFC normalized and quoted; each atom is tagged with its type
// so that "1" and 1 never collide.
func KeyOf(predicate string, args []Atom) FactKey {
	var sb strings.Builder
	sb.WriteString(norm.NFC.String(predicate))
	for _, a := range args {
		sb.WriteByte(0x00)
		switch v := a.(type) {
		case String:
			sb.WriteString("s:")
			sb.WriteString(strconv.Quote(norm.NFC.String(string(v))))
		case Number:
			sb.WriteString("n:")
			f := float64(v)
			if f == 0 {
				f = 0 // -0 and 0 share a key
			}
			sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		case Bool:
			sb.WriteString("b:")
			sb.WriteString(strconv.FormatBool(bool(v)))
		default:
			sb.WriteString("?:")
		}
	}
	return FactKey(sb.String())
}

// Clone returns a copy whose Args slice is not shared with f.
func (f Fact) Clone() Fact {
	f.Args = slices.Clone(f.Args)
	return f
}

// String renders the fact as pred(a, b) [0.80].
func (f Fact) String() string {
	return fmt.Sprintf("%s(%s) [%.2f]", f.Predicate, FormatAtoms(f.Args), f.Degree)
}
