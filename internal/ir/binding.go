package ir

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Binding maps variable names (with sigil) to bound atoms.
// A Binding is treated as immutable once handed to another component;
// extend it with Clone or Unify.
type Binding map[string]Atom

// Clone returns a shallow copy. A nil binding clones to an empty one.
func (b Binding) Clone() Binding {
	out := make(Binding, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Lookup resolves a variable. Non-variable atoms resolve to themselves.
func (b Binding) Lookup(a Atom) (Atom, bool) {
	name, ok := VariableName(a)
	if !ok {
		return a, true
	}
	v, ok := b[name]
	return v, ok
}

// SortedNames returns the bound variable names in lexical order.
func (b Binding) SortedNames() []string {
	names := make([]string, 0, len(b))
	for k := range b {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// String renders the binding as {?x=sam, ?d=0.8} with names sorted.
func (b Binding) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, name := range b.SortedNames() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(name)
		sb.WriteByte('=')
		sb.WriteString(FormatAtom(b[name]))
	}
	sb.WriteByte('}')
	return sb.String()
}

// Values converts the binding to plain Go values for encoding.
func (b Binding) Values() map[string]any {
	out := make(map[string]any, len(b))
	for k, v := range b {
		out[k] = AtomValue(v)
	}
	return out
}

// Unify positionally unifies pattern against args under b.
//
// A variable in pattern binds to the corresponding argument; a variable
// already bound (in b or earlier in this same pattern) must equal it.
// Non-variable pattern atoms must equal the argument exactly. Arity must
// match. b is never mutated; on success a new extended binding is returned.
func Unify(pattern, args []Atom, b Binding) (Binding, bool) {
	if len(pattern) != len(args) {
		return nil, false
	}

	var out Binding
	for i, p := range pattern {
		name, isVar := VariableName(p)
		if !isVar {
			if !AtomsEqual(p, args[i]) {
				return nil, false
			}
			continue
		}

		if bound, ok := lookupEither(out, b, name); ok {
			if !AtomsEqual(bound, args[i]) {
				return nil, false
			}
			continue
		}

		if out == nil {
			out = b.Clone()
		}
		out[name] = args[i]
	}

	if out == nil {
		out = b.Clone()
	}
	return out, true
}

func lookupEither(primary, fallback Binding, name string) (Atom, bool) {
	if primary != nil {
		v, ok := primary[name]
		return v, ok
	}
	v, ok := fallback[name]
	return v, ok
}

// AtomsEqual compares two atoms by type and value. Strings are equal when
// their NFC forms are, matching the identity KeyOf gives a fact.
func AtomsEqual(a, b Atom) bool {
	if a == b {
		return true
	}
	sa, ok := a.(String)
	if !ok {
		return false
	}
	sb, ok := b.(String)
	return ok && SameText(string(sa), string(sb))
}

// SameText reports whether a and b are canonically equivalent strings.
func SameText(a, b string) bool {
	return a == b || norm.NFC.String(a) == norm.NFC.String(b)
}

// ArgsEqual compares two argument tuples element-wise.
func ArgsEqual(a, b []Atom) bool {
	return slices.EqualFunc(a, b, AtomsEqual)
}
