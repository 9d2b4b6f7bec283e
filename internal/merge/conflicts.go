package merge

import (
	"fmt"
	"slices"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// ConflictType names a conflict detector.
type ConflictType string

const (
	FactContradiction     ConflictType = "fact_contradiction"
	MutualExclusion       ConflictType = "mutual_exclusion"
	RuleContradiction     ConflictType = "rule_contradiction"
	Subsumption           ConflictType = "subsumption"
	SemanticContradiction ConflictType = "semantic_contradiction"
)

// Fixed severities. Fact contradictions use the degree difference instead.
const (
	SeverityMutualExclusion       = 0.8
	SeverityRuleContradiction     = 0.7
	SeveritySubsumption           = 0.4
	SeveritySemanticContradiction = 0.9
)

// semanticDegreeFloor is the degree both contradictory facts must exceed.
const semanticDegreeFloor = 0.5

// autoAverageBelow is the severity under which auto resolution averages
// two contradicting degrees instead of picking the higher one.
const autoAverageBelow = 0.7

// ExclusivePredicates hold a single value per subject: pred(subject, value).
var ExclusivePredicates = map[string]bool{
	"species":       true,
	"type":          true,
	"category":      true,
	"class":         true,
	"kind":          true,
	"gender":        true,
	"sex":           true,
	"color":         true,
	"size-category": true,
}

// ContradictoryPairs lists predicates that cannot both hold for the same
// arguments. Order is fixed so detection output is deterministic.
var ContradictoryPairs = [][2]string{
	{"is-alive", "is-dead"},
	{"is-predator", "is-prey"},
	{"is-carnivore", "is-herbivore"},
	{"is-dangerous", "is-safe"},
	{"is-domestic", "is-wild"},
}

// Side identifies which input an item came from.
type Side int

const (
	KB1 Side = iota + 1
	KB2
)

// String returns "KB1" or "KB2".
func (s Side) String() string {
	if s == KB2 {
		return "KB2"
	}
	return "KB1"
}

// Item is one side of a conflict: a fact or a rule, with its position in
// the source knowledge base.
type Item struct {
	Side  Side
	Index int
	Fact  *ir.Fact
	Rule  *ir.Rule
}

// Conflict is a detected disagreement between two knowledge bases.
//
// For every type except SemanticContradiction, Left comes from KB1 and
// Right from KB2. Semantic contradictions compare the combined fact list,
// so both items may come from the same side.
type Conflict struct {
	Type        ConflictType
	Severity    float64
	Left        Item
	Right       Item
	Description string
	Suggested   string
}

func factItem(side Side, idx int, f ir.Fact) Item {
	return Item{Side: side, Index: idx, Fact: &f}
}

func ruleItem(side Side, idx int, r ir.Rule) Item {
	return Item{Side: side, Index: idx, Rule: &r}
}

func factLabel(f ir.Fact) string {
	return fmt.Sprintf("%s(%s)", f.Predicate, ir.FormatAtoms(f.Args))
}

// Detect runs every detector over kb1 and kb2 and returns the conflicts
// sorted by severity, highest first. Equal severities keep detection order:
// facts, then rules, then semantic pairs.
func Detect(kb1, kb2 *kb.KnowledgeBase, threshold float64) []Conflict {
	facts1, facts2 := kb1.Facts.All(), kb2.Facts.All()

	var out []Conflict
	out = append(out, detectFactConflicts(facts1, facts2, threshold)...)
	out = append(out, detectRuleConflicts(kb1.Rules, kb2.Rules)...)
	out = append(out, detectSemanticConflicts(facts1, facts2)...)

	slices.SortStableFunc(out, func(a, b Conflict) int {
		switch {
		case a.Severity > b.Severity:
			return -1
		case a.Severity < b.Severity:
			return 1
		default:
			return 0
		}
	})
	return out
}

// detectFactConflicts finds same-key facts whose degrees differ by more
// than threshold, and exclusive predicates with a different value for the
// same subject.
func detectFactConflicts(facts1, facts2 []ir.Fact, threshold float64) []Conflict {
	index1 := make(map[ir.FactKey]int, len(facts1))
	for i, f := range facts1 {
		index1[f.Key()] = i
	}

	var out []Conflict
	for j, f2 := range facts2 {
		if i, ok := index1[f2.Key()]; ok {
			f1 := facts1[i]
			diff := f1.Degree - f2.Degree
			if diff < 0 {
				diff = -diff
			}
			if diff > threshold {
				winner := "KB2"
				if f1.Degree > f2.Degree {
					winner = "KB1"
				}
				out = append(out, Conflict{
					Type:        FactContradiction,
					Severity:    diff,
					Left:        factItem(KB1, i, f1),
					Right:       factItem(KB2, j, f2),
					Description: fmt.Sprintf("%s: %.2f vs %.2f", factLabel(f1), f1.Degree, f2.Degree),
					Suggested:   fmt.Sprintf("Use %s value or average", winner),
				})
			}
		}

		if !ExclusivePredicates[f2.Predicate] || len(f2.Args) < 2 {
			continue
		}
		for i, f1 := range facts1 {
			if len(f1.Args) < 2 || !ir.SameText(f1.Predicate, f2.Predicate) {
				continue
			}
			if !ir.AtomsEqual(f1.Args[0], f2.Args[0]) || ir.AtomsEqual(f1.Args[1], f2.Args[1]) {
				continue
			}
			out = append(out, Conflict{
				Type:     MutualExclusion,
				Severity: SeverityMutualExclusion,
				Left:     factItem(KB1, i, f1),
				Right:    factItem(KB2, j, f2),
				Description: fmt.Sprintf("Exclusive values for %s(%s): %s vs %s",
					f1.Predicate, ir.FormatAtom(f1.Args[0]), ir.FormatAtom(f1.Args[1]), ir.FormatAtom(f2.Args[1])),
				Suggested: "Choose one value or create uncertainty",
			})
		}
	}
	return out
}

// detectRuleConflicts finds same-name rules with different shapes and rules
// whose top-level predicates strictly generalize a rule on the other side.
func detectRuleConflicts(rules1, rules2 []ir.Rule) []Conflict {
	named1 := make(map[string]int)
	for i, r := range rules1 {
		if r.Name == "" {
			continue
		}
		if _, seen := named1[r.Name]; !seen {
			named1[r.Name] = i
		}
	}

	var out []Conflict
	for j, r2 := range rules2 {
		if r2.Name == "" {
			continue
		}
		i, ok := named1[r2.Name]
		if !ok || rulesEquivalent(rules1[i], r2) {
			continue
		}
		out = append(out, Conflict{
			Type:        RuleContradiction,
			Severity:    SeverityRuleContradiction,
			Left:        ruleItem(KB1, i, rules1[i]),
			Right:       ruleItem(KB2, j, r2),
			Description: fmt.Sprintf("Different implementations of rule '%s'", r2.Name),
			Suggested:   "Rename one rule or merge logic",
		})
	}

	for i, r1 := range rules1 {
		for j, r2 := range rules2 {
			var general, specific ir.Rule
			switch {
			case subsumes(r1, r2):
				general, specific = r1, r2
			case subsumes(r2, r1):
				general, specific = r2, r1
			default:
				continue
			}
			out = append(out, Conflict{
				Type:        Subsumption,
				Severity:    SeveritySubsumption,
				Left:        ruleItem(KB1, i, r1),
				Right:       ruleItem(KB2, j, r2),
				Description: fmt.Sprintf("Rule '%s' subsumes '%s'", general.DisplayName(), specific.DisplayName()),
				Suggested:   "Keep more specific rule or both",
			})
		}
	}
	return out
}

// detectSemanticConflicts finds facts on both predicates of a contradictory
// pair with identical arguments and degrees above the floor.
func detectSemanticConflicts(facts1, facts2 []ir.Fact) []Conflict {
	type located struct {
		item Item
		fact ir.Fact
	}
	all := make([]located, 0, len(facts1)+len(facts2))
	for i, f := range facts1 {
		all = append(all, located{factItem(KB1, i, f), f})
	}
	for j, f := range facts2 {
		all = append(all, located{factItem(KB2, j, f), f})
	}

	var out []Conflict
	for _, pair := range ContradictoryPairs {
		for _, a := range all {
			if a.fact.Predicate != pair[0] || a.fact.Degree <= semanticDegreeFloor {
				continue
			}
			for _, b := range all {
				if b.fact.Predicate != pair[1] || b.fact.Degree <= semanticDegreeFloor {
					continue
				}
				if !ir.ArgsEqual(a.fact.Args, b.fact.Args) {
					continue
				}
				out = append(out, Conflict{
					Type:        SemanticContradiction,
					Severity:    SeveritySemanticContradiction,
					Left:        a.item,
					Right:       b.item,
					Description: fmt.Sprintf("Contradictory facts: %s and %s", factLabel(a.fact), factLabel(b.fact)),
					Suggested:   "Review domain logic",
				})
			}
		}
	}
	return out
}

// rulesEquivalent is a shape comparison: same condition count, action
// count and priority.
func rulesEquivalent(a, b ir.Rule) bool {
	return len(a.Conditions) == len(b.Conditions) &&
		len(a.Actions) == len(b.Actions) &&
		a.Priority == b.Priority
}

// subsumes reports whether general has fewer conditions than specific and
// its top-level predicates are a strict subset of specific's.
func subsumes(general, specific ir.Rule) bool {
	if len(general.Conditions) >= len(specific.Conditions) {
		return false
	}
	gp, sp := general.TopLevelPredicates(), specific.TopLevelPredicates()
	if len(gp) >= len(sp) {
		return false
	}
	for p := range gp {
		if !sp[p] {
			return false
		}
	}
	return true
}
