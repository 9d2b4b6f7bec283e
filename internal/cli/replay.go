package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/fuzzyinfer/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - latest run when empty
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run a journaled run and verify determinism",
		Long: `Re-run the stored input of a journaled run on a fresh engine with the
same iteration cap, and compare the firing sequence and final state with
what the journal recorded.

Only runs that started with an empty firing history can be replayed: a
later run of a multi-run session depends on the firings before it.

Exit codes:
  0 - The replay matches the journal
  1 - The replay diverged
  2 - Command error (journal or run not found, run not replayable)

Examples:
  fuzzyinfer replay --journal runs.db
  fuzzyinfer replay --journal runs.db --run 01928f6e-...
  fuzzyinfer replay --journal runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to the SQLite journal (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id to replay (default: latest run)")

	return cmd
}

func runReplay(ctx context.Context, opts *ReplayOptions, out, errOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, out, errOut)

	j, err := openJournal(formatter, opts.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	runID := opts.RunID
	if runID == "" {
		latest, err := j.LatestRun(ctx)
		if err != nil {
			return journalFailure(formatter, err)
		}
		runID = latest.ID
	}
	formatter.VerboseLog("Replaying run %s", runID)

	result, err := j.Replay(ctx, runID)
	if err != nil {
		if errors.Is(err, journal.ErrNotReplayable) {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "run cannot be replayed", err)
		}
		return journalFailure(formatter, err)
	}

	if !result.Match {
		msg := fmt.Sprintf("replay of run %s diverged", runID)
		if formatter.JSON() {
			if err := formatter.Failure(result, ErrCodeDivergence, msg); err != nil {
				return err
			}
		} else {
			writeReplayText(out, result)
		}
		return NewExitError(ExitFailure, msg)
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeReplayText(out, result)
	return nil
}

func writeReplayText(w io.Writer, r journal.ReplayResult) {
	if r.Match {
		fmt.Fprintf(w, "✓ Replay of run %s matches the journal\n", r.RunID)
	} else {
		fmt.Fprintf(w, "✗ Replay of run %s diverged from the journal\n", r.RunID)
	}
	fmt.Fprintf(w, "  state:   %s (journal: %s)\n", r.ActualState, r.ExpectedState)
	fmt.Fprintf(w, "  firings: %d (journal: %d)\n", r.ActualSteps, r.ExpectedSteps)

	d := r.FirstDivergent
	if d == nil {
		return
	}
	fmt.Fprintf(w, "  first divergence at firing %d:\n", d.Index)
	fmt.Fprintf(w, "    journal: %s\n", describeStep(d.Expected))
	fmt.Fprintf(w, "    replay:  %s\n", describeStep(d.Actual))
}

func describeStep(s *journal.Step) string {
	if s == nil {
		return "(none)"
	}
	return s.String()
}
