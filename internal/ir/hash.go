package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm migration.
const (
	DomainBinding = "fuzzyinfer/binding/v1"
	DomainFact    = "fuzzyinfer/fact/v1"
	DomainRule    = "fuzzyinfer/rule/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BindingHash computes the identity of a binding. Two bindings with the
// same variable→value pairs hash identically regardless of insertion order.
func BindingHash(b Binding) (string, error) {
	canonical, err := MarshalCanonical(b)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// FactID computes the identity of a fact key. Degree is excluded. The
// journal indexes provenance by it.
func FactID(predicate string, args []Atom) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"predicate": predicate,
		"args":      args,
	})
	if err != nil {
		return "", fmt.Errorf("FactID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}

// RuleID computes a content hash of a rule's wire form. The engine stamps
// every firing with it so a replay can tell when a rule was edited.
func RuleID(r Rule) (string, error) {
	canonical, err := MarshalCanonical(RuleToRecord(r).canonicalValue())
	if err != nil {
		return "", fmt.Errorf("RuleID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRule, canonical), nil
}

// MustBindingHash is like BindingHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBindingHash(b Binding) string {
	h, err := BindingHash(b)
	if err != nil {
		panic(err)
	}
	return h
}
