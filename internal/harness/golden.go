package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the deterministic part of a result: final state,
// iteration and firing counts, conflicts and the fact set in store order.
// Degrees are printed with four decimals so float noise in the last bits
// never changes a snapshot.
func Snapshot(name string, result *Result) []byte {
	var buf strings.Builder
	fmt.Fprintf(&buf, "scenario: %s\n", name)
	fmt.Fprintf(&buf, "state: %s\n", result.State)
	fmt.Fprintf(&buf, "iterations: %d\n", result.Iterations)
	fmt.Fprintf(&buf, "firings: %d\n", result.Firings)
	fmt.Fprintf(&buf, "conflicts: %d\n", result.Conflicts)
	fmt.Fprintf(&buf, "facts: %d\n", len(result.Facts))
	for _, f := range result.Facts {
		fmt.Fprintf(&buf, "  %s\n", f)
	}
	return []byte(buf.String())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against the
// golden file for scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
