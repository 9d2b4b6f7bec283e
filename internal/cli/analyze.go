package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/compiler"
)

// AnalyzeResult holds the recursion analysis of a rule set.
type AnalyzeResult struct {
	File     string                  `json:"file"`
	Rules    int                     `json:"rules"`
	Warnings []compiler.CycleWarning `json:"warnings"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <kb-file>",
		Short: "Report recursive rule dependencies",
		Long: `Build the rule dependency graph of a knowledge base and report every
cycle in it.

A rule depends on another when the other adds or modifies a predicate its
conditions reference. A cycle is a warning, not an error: recursive rules
converge when they only re-derive existing facts, and fail to converge when
they keep producing new argument values.

Examples:
  fuzzyinfer analyze zoo.yaml
  fuzzyinfer analyze zoo.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(rootOpts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	return cmd
}

func runAnalyze(opts *RootOptions, path string, out, errOut io.Writer) error {
	formatter := newFormatter(opts, out, errOut)

	k, err := loadKnowledgeBase(path)
	if err != nil {
		return loadFailure(formatter, err)
	}

	result := AnalyzeResult{
		File:     path,
		Rules:    len(k.Rules),
		Warnings: compiler.AnalyzeRecursion(k.Rules),
	}
	formatter.VerboseLog("Analyzed %d rule(s) in %s", result.Rules, path)

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Warnings) == 0 {
		fmt.Fprintf(w, "✓ No recursive dependencies among %d rule(s)\n", result.Rules)
		return nil
	}
	fmt.Fprintf(w, "⚠ %d recursive dependenc%s among %d rule(s)\n", len(result.Warnings), plural(len(result.Warnings), "y", "ies"), result.Rules)
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "  - %s\n", warning.Message)
	}
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
