// Package kb holds the fuzzy fact store and the knowledge-base value that
// pairs a store with a rule list.
package kb

import (
	"slices"
	"sync"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// Store maps (predicate, args) to a fact with a degree of belief.
//
// Iteration order is insertion order: re-raising an existing fact keeps its
// position, while a removed and re-added fact moves to the end. All reads
// observe prior writes immediately.
//
// The mutex protects concurrent readers against a writer; the engine is the
// only writer during a run.
type Store struct {
	mu    sync.RWMutex
	order []ir.FactKey
	facts map[ir.FactKey]ir.Fact
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{facts: make(map[ir.FactKey]ir.Fact)}
}

// Upsert inserts f or raises the stored degree to max(existing, f.Degree).
// Returns true if the fact was inserted or its degree increased.
// The degree is clamped into [0,1] before comparison.
func (s *Store) Upsert(f ir.Fact) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	f = f.Clone()
	f.Degree = ir.ClampDegree(f.Degree)
	key := f.Key()

	existing, ok := s.facts[key]
	if !ok {
		s.facts[key] = f
		s.order = append(s.order, key)
		return true
	}
	if f.Degree > existing.Degree {
		existing.Degree = f.Degree
		s.facts[key] = existing
		return true
	}
	return false
}

// Get returns the fact stored for (predicate, args).
func (s *Store) Get(predicate string, args []ir.Atom) (ir.Fact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.facts[ir.KeyOf(predicate, args)]
	if !ok {
		return ir.Fact{}, false
	}
	return f.Clone(), true
}

// Query returns facts with predicate whose degree is at least minDegree.
// A non-empty pattern must unify with the fact args; it may contain
// variables. Results are in insertion order.
func (s *Store) Query(predicate string, pattern []ir.Atom, minDegree float64) []ir.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ir.Fact
	for _, key := range s.order {
		f := s.facts[key]
		if f.Degree < minDegree || !ir.SameText(f.Predicate, predicate) {
			continue
		}
		if len(pattern) > 0 {
			if _, ok := ir.Unify(pattern, f.Args, nil); !ok {
				continue
			}
		}
		out = append(out, f.Clone())
	}
	return out
}

// Remove deletes the fact at (predicate, args). Returns whether it existed.
func (s *Store) Remove(predicate string, args []ir.Atom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ir.KeyOf(predicate, args)
	if _, ok := s.facts[key]; !ok {
		return false
	}
	delete(s.facts, key)
	s.order = slices.DeleteFunc(s.order, func(k ir.FactKey) bool { return k == key })
	return true
}

// Modify overwrites the degree at (predicate, args) if present, bypassing
// fuzzy-OR. This is the only way a stored degree can decrease.
// Returns whether the stored degree changed.
func (s *Store) Modify(predicate string, args []ir.Atom, degree float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ir.KeyOf(predicate, args)
	f, ok := s.facts[key]
	if !ok {
		return false
	}
	degree = ir.ClampDegree(degree)
	if f.Degree == degree {
		return false
	}
	f.Degree = degree
	s.facts[key] = f
	return true
}

// All returns a snapshot of every fact in insertion order.
func (s *Store) All() []ir.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ir.Fact, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.facts[key].Clone())
	}
	return out
}

// ByPredicate returns a snapshot of the facts with predicate and arity.
// A negative arity matches any arity. Args are shared with the store and
// must not be mutated.
func (s *Store) ByPredicate(predicate string, arity int) []ir.Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ir.Fact
	for _, key := range s.order {
		f := s.facts[key]
		if (arity < 0 || len(f.Args) == arity) && ir.SameText(f.Predicate, predicate) {
			out = append(out, f)
		}
	}
	return out
}

// Len returns the number of stored facts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Clear removes every fact.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.facts = make(map[ir.FactKey]ir.Fact)
}

// Clone returns an independent copy of the store.
func (s *Store) Clone() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := &Store{
		order: slices.Clone(s.order),
		facts: make(map[ir.FactKey]ir.Fact, len(s.facts)),
	}
	for k, f := range s.facts {
		out.facts[k] = f.Clone()
	}
	return out
}
