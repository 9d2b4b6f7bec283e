// Package ir provides the typed representation of fuzzy facts, rules and
// their wire records.
//
// This package contains type definitions, construction-time validation and
// the canonical encoding used for identity. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Conditions, degree expressions and actions are closed sum types.
//     Unknown tags are rejected when a wire record is converted, never
//     later during evaluation.
//   - A Fact's degree is always inside [0,1].
//   - Fact identity is (predicate, args). Degree is not part of identity.
//   - Variables are string atoms carrying the "?" sigil.
package ir
