package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - latest run when empty with --fact, list runs otherwise
	Fact    string // optional - provenance of a single fact
}

// TraceResult holds the firings of one run.
type TraceResult struct {
	Run     journal.Run   `json:"run"`
	Firings []TraceFiring `json:"firings"`
}

// TraceFiring is a stored firing in command output.
type TraceFiring struct {
	Seq       int64         `json:"seq"`
	Iteration int           `json:"iteration"`
	Rule      string        `json:"rule"`
	RuleIndex int           `json:"rule_index"`
	Binding   string        `json:"binding"`
	Degree    float64       `json:"degree"`
	Effects   []TraceEffect `json:"effects"`
}

// TraceEffect is one action effect of a firing.
type TraceEffect struct {
	Action  string `json:"action"`
	Fact    string `json:"fact"`
	Changed bool   `json:"changed"`
}

// ProvenanceResult answers which firing last produced a fact.
type ProvenanceResult struct {
	RunID  string       `json:"run_id"`
	Fact   string       `json:"fact"`
	Found  bool         `json:"found"`
	Firing *TraceFiring `json:"firing,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect runs recorded in a journal",
		Long: `Inspect the runs recorded by "fuzzyinfer run --journal".

Without --run, lists every recorded run. With --run, prints the firings of
that run in order together with their effects. With --fact, prints the
firing that last added or changed the fact (in --run, or the latest run).

Examples:
  fuzzyinfer trace --journal runs.db
  fuzzyinfer trace --journal runs.db --run 01928f6e-...
  fuzzyinfer trace --journal runs.db --fact "zebra(zed)"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to trace")
	cmd.Flags().StringVar(&opts.Fact, "fact", "", `show the provenance of a fact, as "pred(args)"`)

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, out, errOut)

	j, err := openJournal(formatter, opts.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	switch {
	case opts.Fact != "":
		return traceFact(ctx, formatter, j, opts.RunID, opts.Fact)
	case opts.RunID != "":
		return traceRun(ctx, formatter, j, opts.RunID)
	default:
		return listRuns(ctx, formatter, j)
	}
}

// openJournal opens an existing journal. Opening a missing path would
// create an empty database, so the file has to exist first.
func openJournal(formatter *OutputFormatter, path string) (*journal.Journal, error) {
	if !fileExists(path) {
		msg := fmt.Sprintf("journal not found: %s", path)
		_ = formatter.Error(ErrCodeNotFound, msg, nil)
		return nil, NewExitError(ExitCommandError, msg)
	}
	j, err := journal.Open(path)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	return j, nil
}

// journalFailure reports a journal read error. Unknown runs are command
// errors like any other bad argument.
func journalFailure(formatter *OutputFormatter, err error) error {
	code := ErrCodeJournal
	if errors.Is(err, journal.ErrRunNotFound) {
		code = ErrCodeNotFound
	}
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to read journal", err)
}

func listRuns(ctx context.Context, formatter *OutputFormatter, j *journal.Journal) error {
	runs, err := j.Runs(ctx)
	if err != nil {
		return journalFailure(formatter, err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	fmt.Fprintf(w, "%d run(s) recorded:\n", len(runs))
	for _, r := range runs {
		fmt.Fprintf(w, "  %s  session %s #%d  %s  iterations=%d firings=%d facts=%d->%d\n",
			r.ID, r.Session, r.Number, r.State, r.Iterations, r.Firings, r.FactsBefore, r.FactsAfter)
	}
	return nil
}

func traceRun(ctx context.Context, formatter *OutputFormatter, j *journal.Journal, runID string) error {
	run, err := j.ReadRun(ctx, runID)
	if err != nil {
		return journalFailure(formatter, err)
	}
	firings, err := j.ReadFirings(ctx, runID)
	if err != nil {
		return journalFailure(formatter, err)
	}

	result := TraceResult{Run: run, Firings: make([]TraceFiring, len(firings))}
	for i, f := range firings {
		result.Firings[i] = traceFiring(f)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Run %s (session %s #%d)\n", run.ID, run.Session, run.Number)
	fmt.Fprintf(w, "  state: %s after %d iteration(s), max %d\n", run.State, run.Iterations, run.MaxIterations)
	fmt.Fprintf(w, "  facts: %d -> %d\n", run.FactsBefore, run.FactsAfter)
	if run.Error != "" {
		fmt.Fprintf(w, "  error: %s\n", run.Error)
	}
	fmt.Fprintln(w)
	if len(result.Firings) == 0 {
		fmt.Fprintln(w, "No firings.")
		return nil
	}
	for _, f := range result.Firings {
		writeFiringText(w, f)
	}
	return nil
}

func traceFact(ctx context.Context, formatter *OutputFormatter, j *journal.Journal, runID, ref string) error {
	pred, args, err := parseFactRef(ref)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --fact", err)
	}
	if args == nil {
		args = []ir.Atom{}
	}

	if runID == "" {
		latest, err := j.LatestRun(ctx)
		if err != nil {
			return journalFailure(formatter, err)
		}
		runID = latest.ID
	} else if _, err := j.ReadRun(ctx, runID); err != nil {
		return journalFailure(formatter, err)
	}

	firing, found, err := j.Provenance(ctx, runID, pred, args)
	if err != nil {
		return journalFailure(formatter, err)
	}

	result := ProvenanceResult{
		RunID: runID,
		Fact:  fmt.Sprintf("%s(%s)", pred, ir.FormatAtoms(args)),
		Found: found,
	}
	if found {
		tf := traceFiring(firing)
		result.Firing = &tf
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if !found {
		fmt.Fprintf(w, "%s was not derived in run %s\n", result.Fact, runID)
		return nil
	}
	fmt.Fprintf(w, "%s was last derived in run %s by:\n", result.Fact, runID)
	writeFiringText(w, *result.Firing)
	return nil
}

func traceFiring(f journal.Firing) TraceFiring {
	tf := TraceFiring{
		Seq:       f.Seq,
		Iteration: f.Iteration,
		Rule:      f.RuleName,
		RuleIndex: f.RuleIndex,
		Binding:   bindingString(f.Binding),
		Degree:    f.Degree,
		Effects:   make([]TraceEffect, len(f.Effects)),
	}
	for i, e := range f.Effects {
		tf.Effects[i] = TraceEffect{Action: e.Action, Fact: e.Fact.String(), Changed: e.Changed}
	}
	return tf
}

// bindingString renders a stored binding the way the engine prints one.
func bindingString(stored map[string]any) string {
	b := make(ir.Binding, len(stored))
	for name, v := range stored {
		atom, err := ir.AtomFromAny(v)
		if err != nil {
			continue
		}
		b[name] = atom
	}
	return b.String()
}

func writeFiringText(w io.Writer, f TraceFiring) {
	rule := f.Rule
	if rule == "" {
		rule = "(unnamed)"
	}
	fmt.Fprintf(w, "  [%d] iteration %d: rule '%s' (#%d) %s degree %.2f\n",
		f.Seq, f.Iteration, rule, f.RuleIndex, f.Binding, f.Degree)
	for _, e := range f.Effects {
		status := "changed"
		if !e.Changed {
			status = "no change"
		}
		fmt.Fprintf(w, "      %s %s (%s)\n", e.Action, e.Fact, status)
	}
}
