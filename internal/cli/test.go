package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern on the file name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // matched, updated or empty when no golden file exists
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenario-dir|scenario-file>",
		Short: "Run scenario files",
		Long: `Run YAML scenarios: load a knowledge base, optionally merge a second one,
run inference and check the assertions.

When a golden snapshot exists at <scenario dir>/golden/<file name>.golden the
run is also compared against it. --update writes the snapshots instead.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (path not found, bad filter)

Examples:
  fuzzyinfer test ./scenarios
  fuzzyinfer test ./scenarios --filter "zebra_*"
  fuzzyinfer test ./scenarios --update
  fuzzyinfer test ./scenarios/merge.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, path string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, out, errOut)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		msg := fmt.Sprintf("scenario path not found: %s", path)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	paths, err := harness.DiscoverScenarios(path)
	var notFound *harness.ScenarioNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	paths, err = filterScenarios(paths, opts.Filter)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid filter", err)
	}

	if len(paths) == 0 {
		if formatter.JSON() {
			return formatter.Success(TestResult{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(out, "No scenarios found.")
		return nil
	}

	suite, err := harness.RunSuite(ctx, paths)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "scenario run interrupted", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(suite.Outcomes)),
		Total:     suite.Total,
	}
	for _, outcome := range suite.Outcomes {
		sr := checkOutcome(outcome, opts.Update)
		formatter.VerboseLog("%s: pass=%t golden=%q", sr.Path, sr.Pass, sr.Golden)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	if formatter.JSON() {
		if result.Failed > 0 {
			if err := formatter.Failure(result, ErrCodeTestFailed, fmt.Sprintf("%d scenario(s) failed", result.Failed)); err != nil {
				return err
			}
			return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
		}
		return formatter.Success(result)
	}

	writeTestText(out, result)
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// filterScenarios keeps the paths whose file name without extension
// matches pattern.
func filterScenarios(paths []string, pattern string) ([]string, error) {
	if pattern == "" {
		return paths, nil
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
	}
	var kept []string
	for _, p := range paths {
		if ok, _ := filepath.Match(pattern, scenarioStem(p)); ok {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

// checkOutcome turns a suite outcome into a command result, comparing or
// updating its golden snapshot. Broken scenarios have no snapshot.
func checkOutcome(outcome harness.ScenarioOutcome, update bool) ScenarioResult {
	sr := ScenarioResult{Name: outcome.Name, Path: outcome.Path, Pass: outcome.Pass}
	if sr.Name == "" {
		sr.Name = scenarioStem(outcome.Path)
	}

	if outcome.Result == nil {
		sr.Errors = []string{outcome.Error}
		return sr
	}
	sr.Errors = append(sr.Errors, outcome.Result.Errors...)

	goldenPath := goldenFilePath(outcome.Path)
	snapshot := harness.Snapshot(sr.Name, outcome.Result)

	if update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, fmt.Sprintf("failed to update golden file: %v", err))
			return sr
		}
		sr.Golden = "updated"
		return sr
	}

	want, err := os.ReadFile(goldenPath)
	if os.IsNotExist(err) {
		return sr
	}
	if err != nil {
		sr.Pass = false
		sr.Errors = append(sr.Errors, fmt.Sprintf("failed to read golden file: %v", err))
		return sr
	}
	if !bytes.Equal(want, snapshot) {
		sr.Pass = false
		sr.Golden = "mismatch"
		sr.Errors = append(sr.Errors, "snapshot does not match golden file (run with --update to regenerate)")
		return sr
	}
	sr.Golden = "matched"
	return sr
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	return filepath.Join(filepath.Dir(scenarioFile), "golden", scenarioStem(scenarioFile)+".golden")
}

func scenarioStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func writeTestText(w io.Writer, result TestResult) {
	for _, s := range result.Scenarios {
		mark := "✓"
		if !s.Pass {
			mark = "✗"
		}
		switch s.Golden {
		case "updated":
			fmt.Fprintf(w, "%s %s (golden updated)\n", mark, s.Name)
		case "matched":
			fmt.Fprintf(w, "%s %s (golden)\n", mark, s.Name)
		default:
			fmt.Fprintf(w, "%s %s\n", mark, s.Name)
		}
		if !s.Pass {
			for _, e := range s.Errors {
				fmt.Fprint(w, indent(e, "  "))
			}
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
