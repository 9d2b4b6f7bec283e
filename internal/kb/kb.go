package kb

import (
	"fmt"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// KnowledgeBase pairs a fact store with an ordered rule list.
type KnowledgeBase struct {
	Facts *Store
	Rules []ir.Rule
}

// New returns an empty knowledge base.
func New() *KnowledgeBase {
	return &KnowledgeBase{Facts: NewStore()}
}

// FromDocument converts and validates a wire document.
// Facts are upserted in document order, so duplicate keys resolve by fuzzy-OR.
func FromDocument(doc ir.Document) (*KnowledgeBase, error) {
	facts, err := doc.ToFacts()
	if err != nil {
		return nil, fmt.Errorf("facts: %w", err)
	}
	rules, err := doc.ToRules()
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return FromParts(facts, rules), nil
}

// FromParts builds a knowledge base from already validated values.
func FromParts(facts []ir.Fact, rules []ir.Rule) *KnowledgeBase {
	k := New()
	for _, f := range facts {
		k.Facts.Upsert(f)
	}
	k.Rules = make([]ir.Rule, 0, len(rules))
	for _, r := range rules {
		k.Rules = append(k.Rules, r.Clone())
	}
	return k
}

// Document returns the wire form of the knowledge base.
func (k *KnowledgeBase) Document() ir.Document {
	return ir.DocumentFrom(k.Facts.All(), k.Rules)
}

// Clone returns an independent copy.
func (k *KnowledgeBase) Clone() *KnowledgeBase {
	out := &KnowledgeBase{Facts: k.Facts.Clone(), Rules: make([]ir.Rule, 0, len(k.Rules))}
	for _, r := range k.Rules {
		out.Rules = append(out.Rules, r.Clone())
	}
	return out
}

// NamedRules indexes the named rules by name. When a name repeats, the
// first rule wins.
func (k *KnowledgeBase) NamedRules() map[string]int {
	out := make(map[string]int)
	for i, r := range k.Rules {
		if r.Name == "" {
			continue
		}
		if _, seen := out[r.Name]; !seen {
			out[r.Name] = i
		}
	}
	return out
}
