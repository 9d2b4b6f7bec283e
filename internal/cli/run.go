package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/compiler"
	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Query         string
	MinDegree     float64
	MaxIterations int
	Output        string
	Journal       string
	Explain       []string

	// SessionGenerator and RunIDs override the UUIDv7 generators for the
	// engine session and the journal run id (for testing).
	SessionGenerator engine.SessionGenerator
	RunIDs           engine.SessionGenerator
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Session     string        `json:"session"`
	RunID       string        `json:"run_id,omitempty"`
	State       string        `json:"state"`
	Iterations  int           `json:"iterations"`
	Firings     int           `json:"firings"`
	FactsBefore int           `json:"facts_before"`
	FactsAfter  int           `json:"facts_after"`
	Query       *QueryResult  `json:"query,omitempty"`
	Explain     []ExplainItem `json:"explain,omitempty"`
	Output      string        `json:"output,omitempty"`
}

// QueryResult holds the facts matched by --query.
type QueryResult struct {
	Predicate string    `json:"predicate"`
	Args      []any     `json:"args,omitempty"`
	MinDegree float64   `json:"min_degree"`
	Facts     []FactRow `json:"facts"`
}

// ExplainItem is the explanation of one --explain fact.
type ExplainItem struct {
	Fact  string   `json:"fact"`
	Found bool     `json:"found"`
	Lines []string `json:"lines"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <kb-file>",
		Short: "Run inference to a fixpoint",
		Long: `Load a knowledge base, run forward-chaining inference until no rule
produces a new firing, and print a summary.

A run that still fires rules on its last allowed pass is non-convergent:
the derived facts are kept and printed, and the command exits with 1.

Examples:
  fuzzyinfer run zoo.yaml
  fuzzyinfer run zoo.yaml --query zebra --min-degree 0.5
  fuzzyinfer run zoo.yaml --query "near(?x, river)"
  fuzzyinfer run zoo.yaml --explain "zebra(zed)"
  fuzzyinfer run zoo.yaml --journal runs.db --output derived.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInference(cmd.Context(), opts, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", `print facts matching "pred" or "pred(args)" after the run`)
	cmd.Flags().Float64Var(&opts.MinDegree, "min-degree", 0, "minimum degree for --query results")
	cmd.Flags().IntVar(&opts.MaxIterations, "max-iterations", engine.DefaultMaxIterations, "maximum inference passes")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the final knowledge base to a .json or .yaml file")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record the run in a SQLite journal")
	cmd.Flags().StringArrayVar(&opts.Explain, "explain", nil, `explain why a fact holds, as "pred(args)" (repeatable)`)

	return cmd
}

func runInference(ctx context.Context, opts *RunOptions, path string, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, out, errOut)

	if opts.MinDegree < 0 || opts.MinDegree > 1 {
		_ = formatter.Error(ErrCodeGeneric, "--min-degree must be in [0, 1]", nil)
		return NewExitError(ExitCommandError, "--min-degree must be in [0, 1]")
	}
	if opts.Output != "" {
		if _, err := compiler.FormatOf(opts.Output); err != nil || filepath.Ext(opts.Output) == ".cue" {
			msg := fmt.Sprintf("--output must be a .json or .yaml file: %s", opts.Output)
			_ = formatter.Error(ErrCodeFormat, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	k, err := loadKnowledgeBase(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %d fact(s) and %d rule(s) from %s", k.Facts.Len(), len(k.Rules), path)

	engineOpts := []engine.EngineOption{
		engine.WithMaxIterations(opts.MaxIterations),
		engine.WithSessionGenerator(opts.SessionGenerator),
	}

	var recorder *journal.Recorder
	if opts.Journal != "" {
		var journalOpts []journal.Option
		if opts.RunIDs != nil {
			journalOpts = append(journalOpts, journal.WithRunIDs(opts.RunIDs))
		}
		j, err := journal.Open(opts.Journal, journalOpts...)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer j.Close()
		recorder = j.Recorder(ctx)
		engineOpts = append(engineOpts, engine.WithRecorder(recorder))
	}

	var result RunResult
	var runErr error
	err = engine.WithSession(func(eng *engine.Engine) error {
		if err := eng.LoadKnowledgeBase(k); err != nil {
			return err
		}
		runErr = eng.Run()
		if runErr != nil && !engine.IsNonConvergent(runErr) {
			return runErr
		}

		stats := eng.LastRun()
		result = RunResult{
			Session:     eng.SessionID(),
			State:       eng.State().String(),
			Iterations:  stats.Iterations,
			Firings:     stats.Firings,
			FactsBefore: stats.FactsBefore,
			FactsAfter:  stats.FactsAfter,
		}
		if recorder != nil {
			result.RunID = recorder.LastRunID()
		}

		if opts.Query != "" {
			q, err := query(eng, opts.Query, opts.MinDegree)
			if err != nil {
				return err
			}
			result.Query = q
		}
		for _, ref := range opts.Explain {
			item, err := explain(eng, ref)
			if err != nil {
				return err
			}
			result.Explain = append(result.Explain, item)
		}

		if opts.Output != "" {
			if err := compiler.WriteDocument(opts.Output, ir.DocumentFrom(eng.Facts(), eng.Rules())); err != nil {
				return &outputError{err: err}
			}
			result.Output = opts.Output
		}
		return nil
	}, engineOpts...)
	if err != nil {
		var oe *outputError
		if errors.As(err, &oe) {
			_ = formatter.Error(ErrCodeWriteFailed, oe.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to write output", oe.err)
		}
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "run failed", err)
	}

	if runErr != nil {
		_ = formatter.Failure(result, ErrCodeNonConvergent, runErr.Error())
		if !formatter.JSON() {
			writeRunText(out, result)
		}
		return WrapExitError(ExitFailure, "inference did not converge", runErr)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeRunText(out, result)
	return nil
}

// outputError marks a failure to write --output, which maps to a
// different error code than a failed run.
type outputError struct{ err error }

func (e *outputError) Error() string { return e.err.Error() }

func query(eng *engine.Engine, ref string, minDegree float64) (*QueryResult, error) {
	pred, args, err := parseFactRef(ref)
	if err != nil {
		return nil, err
	}
	facts := eng.Query(pred, args, minDegree)
	q := &QueryResult{Predicate: pred, MinDegree: minDegree, Facts: factRows(facts)}
	if len(args) > 0 {
		q.Args = ir.AtomValues(args)
	}
	return q, nil
}

func explain(eng *engine.Engine, ref string) (ExplainItem, error) {
	pred, args, err := parseFactRef(ref)
	if err != nil {
		return ExplainItem{}, err
	}
	if args == nil {
		args = []ir.Atom{}
	}
	ex := eng.Explain(pred, args)
	return ExplainItem{
		Fact:  fmt.Sprintf("%s(%s)", pred, ir.FormatAtoms(args)),
		Found: ex.Found,
		Lines: ex.Lines(),
	}, nil
}

func writeRunText(w io.Writer, r RunResult) {
	if r.State == engine.StateConverged.String() {
		fmt.Fprintf(w, "✓ Inference converged after %d iteration(s)\n", r.Iterations)
	} else {
		fmt.Fprintf(w, "✗ Inference did not converge within %d iteration(s)\n", r.Iterations)
	}
	fmt.Fprintf(w, "  firings: %d\n", r.Firings)
	fmt.Fprintf(w, "  facts:   %d -> %d\n", r.FactsBefore, r.FactsAfter)
	if r.RunID != "" {
		fmt.Fprintf(w, "  journal run: %s\n", r.RunID)
	}
	if r.Output != "" {
		fmt.Fprintf(w, "  wrote: %s\n", r.Output)
	}

	if q := r.Query; q != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Query %s (min degree %.2f): %d result(s)\n", describeQuery(q), q.MinDegree, len(q.Facts))
		if len(q.Facts) > 0 {
			writeFactTable(w, q.Facts)
		}
	}

	for _, item := range r.Explain {
		fmt.Fprintln(w)
		for _, line := range item.Lines {
			fmt.Fprintln(w, line)
		}
	}
}

func describeQuery(q *QueryResult) string {
	if len(q.Args) == 0 {
		return q.Predicate
	}
	return fmt.Sprintf("%s(%s)", q.Predicate, formatArgs(q.Args))
}
