package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/fuzzyinfer/internal/ir"
)

// CycleWarning represents a potential recursion in a rule set.
//
// Cycles are warnings, not errors. A recursive rule set still converges
// when every firing re-derives facts that already exist; it only fails to
// converge when the cycle keeps producing new argument values.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Rules   []int    `json:"rules"`   // Rule indexes in the cycle, ascending
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // always "warning"
}

// AnalyzeRecursion performs static recursion analysis on a rule list.
//
// The algorithm:
//  1. Build a rule dependency graph: A → B when A adds or modifies a
//     predicate referenced anywhere in B's conditions
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self loop as a warning
//
// Nodes are visited in rule order so the output is deterministic.
// An acyclic rule set returns an empty warning list.
func AnalyzeRecursion(rules []ir.Rule) []CycleWarning {
	warnings := []CycleWarning{}
	if len(rules) == 0 {
		return warnings
	}

	graph := buildDependencyGraph(rules)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph, rules))
		}
	}

	// Tarjan emits components in reverse topological order; report them
	// by their first rule instead.
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return a.Rules[0] - b.Rules[0]
	})
	return warnings
}

// dependencyGraph maps a rule index to the rule indexes it can trigger,
// ascending and without duplicates.
type dependencyGraph [][]int

// buildDependencyGraph constructs the rule dependency graph.
func buildDependencyGraph(rules []ir.Rule) dependencyGraph {
	readers := make(map[string][]int)
	for i, r := range rules {
		seen := make(map[string]bool)
		for _, c := range r.Conditions {
			for _, p := range ir.ConditionPredicates(c) {
				if !seen[p] {
					seen[p] = true
					readers[p] = append(readers[p], i)
				}
			}
		}
	}

	graph := make(dependencyGraph, len(rules))
	for i, r := range rules {
		targets := make(map[int]bool)
		for _, p := range r.ProducedPredicates() {
			for _, j := range readers[p] {
				targets[j] = true
			}
		}
		graph[i] = []int{}
		for j := range rules {
			if targets[j] {
				graph[i] = append(graph[i], j)
			}
		}
	}
	return graph
}

func hasSelfLoop(node int, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Each SCC is returned with its members in ascending order.
func tarjanSCC(graph dependencyGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make([]int, len(graph))
		lowlink = make([]int, len(graph))
		onStack = make([]bool, len(graph))
		sccs    [][]int
	)
	for i := range indices {
		indices[i] = -1
	}

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if indices[w] < 0 {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for node := range graph {
		if indices[node] < 0 {
			strongConnect(node)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []int, graph dependencyGraph, rules []ir.Rule) CycleWarning {
	name := func(i int) string { return ruleLabel(i, rules[i]) }

	if len(scc) == 1 {
		label := name(scc[0])
		return CycleWarning{
			Path:    []string{label, label},
			Rules:   scc,
			Message: fmt.Sprintf("Self-triggering rule detected: %s → %s; the rule set may not converge if it derives new argument values", label, label),
			Level:   LevelWarning,
		}
	}

	indexes := reconstructCyclePath(scc, graph)
	path := make([]string, len(indexes))
	for i, idx := range indexes {
		path[i] = name(idx)
	}
	return CycleWarning{
		Path:    path,
		Rules:   scc,
		Message: fmt.Sprintf("Potential cycle detected: %s; the rule set may not converge if it derives new argument values", strings.Join(path, " → ")),
		Level:   LevelWarning,
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Breadth-first search from the lowest member finds the shortest closed
// walk back to it, staying inside the SCC.
func reconstructCyclePath(scc []int, graph dependencyGraph) []int {
	if len(scc) == 0 {
		return []int{}
	}

	members := make(map[int]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	parent := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, neighbor := range graph[current] {
			if neighbor == start {
				var path []int
				for n := current; n >= 0; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path)
				return append(path, start)
			}
			if _, seen := parent[neighbor]; !seen && members[neighbor] {
				parent[neighbor] = current
				queue = append(queue, neighbor)
			}
		}
	}
	return []int{start}
}

// ruleLabel names a rule for display: its name, or "#i" when unnamed.
func ruleLabel(i int, r ir.Rule) string {
	if r.Name == "" {
		return fmt.Sprintf("#%d", i)
	}
	return r.Name
}
