package merge

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// reportExamples is the number of conflicts shown per group.
const reportExamples = 3

// Report renders conflicts as a human-readable report.
//
// Conflicts are grouped by type in order of first appearance. Each group
// shows up to three conflicts with their suggested resolution, followed by
// a count of the rest.
func Report(conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return "No conflicts detected."
	}

	var order []ConflictType
	groups := make(map[ConflictType][]Conflict)
	for _, c := range conflicts {
		if _, ok := groups[c.Type]; !ok {
			order = append(order, c.Type)
		}
		groups[c.Type] = append(groups[c.Type], c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Detected %d conflicts:\n\n", len(conflicts))
	for _, t := range order {
		group := groups[t]
		fmt.Fprintf(&sb, "%s (%d):\n", TypeTitle(t), len(group))
		for _, c := range group[:min(reportExamples, len(group))] {
			fmt.Fprintf(&sb, "  - %s\n", c.Description)
			fmt.Fprintf(&sb, "    Suggested: %s\n", c.Suggested)
		}
		if len(group) > reportExamples {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(group)-reportExamples)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// TypeTitle renders a conflict type for display: "fact_contradiction"
// becomes "Fact Contradiction".
func TypeTitle(t ConflictType) string {
	return cases.Title(language.English).String(strings.ReplaceAll(string(t), "_", " "))
}
