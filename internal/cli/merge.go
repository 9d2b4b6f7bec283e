package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/compiler"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/merge"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Strategy    string
	Weights     []float64
	Threshold   float64
	AutoResolve bool
	Output      string
}

// MergeResult is the outcome of the merge command.
type MergeResult struct {
	Strategy  string        `json:"strategy"`
	Inputs    []string      `json:"inputs"`
	KB1       kbSummary     `json:"kb1"`
	KB2       kbSummary     `json:"kb2"`
	Merged    kbSummary     `json:"merged"`
	Conflicts []ConflictRow `json:"conflicts"`
	Report    string        `json:"report,omitempty"`
	Output    string        `json:"output,omitempty"`
}

// ConflictRow is a conflict in command output.
type ConflictRow struct {
	Type        string  `json:"type"`
	Severity    float64 `json:"severity"`
	Description string  `json:"description"`
	Suggested   string  `json:"suggested"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <kb1> <kb2>",
		Short: "Merge two knowledge bases",
		Long: `Merge two knowledge bases with one of the merge strategies:

  union       upsert every fact from both sides (fuzzy-OR), keep all rules
  override    the second knowledge base wins on fact keys and rule names
  complement  keep the first knowledge base, add only what it lacks
  weighted    w1*d1 + w2*d2 for every fact key, weights normalized
  smart       detect conflicts, resolve them, and print a conflict report

Both files are loaded concurrently.

Examples:
  fuzzyinfer merge field.yaml lab.json --strategy union
  fuzzyinfer merge field.yaml lab.json --strategy weighted --weights 0.7,0.3
  fuzzyinfer merge field.yaml lab.json --strategy smart --auto-resolve -o merged.yaml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd.Context(), opts, args[0], args[1], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Strategy, "strategy", "s", "", "merge strategy: union|override|complement|weighted|smart (required)")
	_ = cmd.MarkFlagRequired("strategy")
	cmd.Flags().Float64SliceVar(&opts.Weights, "weights", []float64{0.5, 0.5}, "weights w1,w2 for the weighted strategy")
	cmd.Flags().Float64Var(&opts.Threshold, "threshold", merge.DefaultThreshold, "degree difference above which smart merge reports a fact contradiction")
	cmd.Flags().BoolVar(&opts.AutoResolve, "auto-resolve", false, "let smart merge resolve conflicts automatically")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the merged knowledge base to a .json or .yaml file")

	return cmd
}

func runMerge(ctx context.Context, opts *MergeOptions, path1, path2 string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, out, errOut)

	strategy, err := merge.ParseStrategy(opts.Strategy)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid strategy", err)
	}
	if len(opts.Weights) != 2 {
		msg := fmt.Sprintf("--weights needs exactly two values, got %d", len(opts.Weights))
		_ = formatter.Error(ErrCodeGeneric, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}
	if opts.Output != "" {
		if _, err := compiler.FormatOf(opts.Output); err != nil || filepath.Ext(opts.Output) == ".cue" {
			msg := fmt.Sprintf("--output must be a .json or .yaml file: %s", opts.Output)
			_ = formatter.Error(ErrCodeFormat, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	kb1, kb2, err := loadPair(ctx, path1, path2)
	if err != nil {
		return loadFailure(formatter, err)
	}

	merged, err := merge.Merge(kb1, kb2, strategy,
		merge.WithWeights(opts.Weights[0], opts.Weights[1]),
		merge.WithThreshold(opts.Threshold),
		merge.WithAutoResolve(opts.AutoResolve),
	)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "merge failed", err)
	}

	result := MergeResult{
		Strategy:  string(strategy),
		Inputs:    []string{path1, path2},
		KB1:       summarize(kb1),
		KB2:       summarize(kb2),
		Merged:    summarize(merged.KB),
		Conflicts: conflictRows(merged.Conflicts),
	}
	if strategy == merge.StrategySmart {
		result.Report = merged.Report()
	}

	if opts.Output != "" {
		doc := ir.DocumentFrom(merged.KB.Facts.All(), merged.KB.Rules)
		if err := compiler.WriteDocument(opts.Output, doc); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
		result.Output = opts.Output
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeMergeText(out, result)
	return nil
}

func conflictRows(conflicts []merge.Conflict) []ConflictRow {
	rows := make([]ConflictRow, len(conflicts))
	for i, c := range conflicts {
		rows[i] = ConflictRow{
			Type:        string(c.Type),
			Severity:    c.Severity,
			Description: c.Description,
			Suggested:   c.Suggested,
		}
	}
	return rows
}

func writeMergeText(w io.Writer, r MergeResult) {
	fmt.Fprintf(w, "✓ Merged %s and %s (strategy: %s)\n", r.Inputs[0], r.Inputs[1], r.Strategy)
	fmt.Fprintf(w, "  kb1:    %d facts, %d rules\n", r.KB1.Facts, r.KB1.Rules)
	fmt.Fprintf(w, "  kb2:    %d facts, %d rules\n", r.KB2.Facts, r.KB2.Rules)
	fmt.Fprintf(w, "  merged: %d facts, %d rules\n", r.Merged.Facts, r.Merged.Rules)
	if r.Output != "" {
		fmt.Fprintf(w, "  wrote:  %s\n", r.Output)
	}
	if r.Report != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, indent(r.Report, "  "))
	}
}
