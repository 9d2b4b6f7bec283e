package engine

import (
	"strconv"
	"sync"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// FiringHistory records which (rule, binding) pairs have fired.
//
// A firing key is the rule's stable engine-assigned index combined with the
// hash of its binding. The hash covers the sorted binding entries, so the
// order variables were bound in never matters.
//
// The history persists across Run calls and is only emptied by Clear. This
// is what makes a second Run with no new facts a no-op.
type FiringHistory struct {
	mu   sync.Mutex
	seen map[string]bool
}

// NewFiringHistory creates an empty history.
func NewFiringHistory() *FiringHistory {
	return &FiringHistory{seen: make(map[string]bool)}
}

// FiringKey builds the deduplication key for rule index and binding hash.
func FiringKey(ruleIndex int, bindingHash string) string {
	return strconv.Itoa(ruleIndex) + ":" + bindingHash
}

// Record marks (ruleIndex, bindingHash) as fired. Returns false if it was
// already recorded.
func (h *FiringHistory) Record(ruleIndex int, bindingHash string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := FiringKey(ruleIndex, bindingHash)
	if h.seen[key] {
		return false
	}
	h.seen[key] = true
	return true
}

// Clear forgets every recorded firing.
func (h *FiringHistory) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = make(map[string]bool)
}

// Size returns the number of recorded firings.
func (h *FiringHistory) Size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

// bindingHash hashes b for the firing history. Bindings built by the
// matcher only hold finite atoms, so the fallback is never expected; it
// keeps dedup working rather than dropping the firing.
func bindingHash(b ir.Binding) string {
	h, err := ir.BindingHash(b)
	if err != nil {
		return "raw:" + b.String()
	}
	return h
}
