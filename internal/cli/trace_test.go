package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/journal"
)

// journaledZebraRun records one zebra run with id run-1 and returns the
// journal path.
func journaledZebraRun(t *testing.T, maxIterations int) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	_, _, err := runZebra(t, "text", func(o *RunOptions) {
		o.Journal = dbPath
		o.MaxIterations = maxIterations
	})
	if maxIterations > 1 {
		require.NoError(t, err)
	}
	return dbPath
}

func trace(t *testing.T, format string, opts TraceOptions) (string, error) {
	t.Helper()
	opts.RootOptions = &RootOptions{Format: format}
	buf := &bytes.Buffer{}
	err := runTrace(context.Background(), &opts, buf, &bytes.Buffer{})
	return buf.String(), err
}

func TestTrace_ListRuns(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	out, err := trace(t, "text", TraceOptions{Journal: dbPath})
	require.NoError(t, err)
	assert.Equal(t,
		"1 run(s) recorded:\n  run-1  session session-1 #1  converged  iterations=2 firings=3 facts=4->7\n",
		out)
}

func TestTrace_ListRunsJSON(t *testing.T) {
	dbPath := journaledZebraRun(t, 1)

	out, err := trace(t, "json", TraceOptions{Journal: dbPath})
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			ID    string `json:"id"`
			State string `json:"state"`
			Error string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-1", resp.Data[0].ID)
	assert.Equal(t, "non_convergent", resp.Data[0].State)
	assert.NotEmpty(t, resp.Data[0].Error)
}

func TestTrace_Run(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	out, err := trace(t, "text", TraceOptions{Journal: dbPath, RunID: "run-1"})
	require.NoError(t, err)
	assert.Contains(t, out, "Run run-1 (session session-1 #1)\n")
	assert.Contains(t, out, "  state: converged after 2 iteration(s), max 100\n")
	assert.Contains(t, out, "  facts: 4 -> 7\n")
	assert.Contains(t, out, "iteration 1: rule 'zebra' (#0)")
	assert.Contains(t, out, "iteration 1: rule 'horse' (#2) {?x=tom}")
	assert.Contains(t, out, "      add zebra(zed) [0.80] (changed)\n")
	assert.Contains(t, out, "      add fast(zed) [0.72] (changed)\n")
}

func TestTrace_RunJSON(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	out, err := trace(t, "json", TraceOptions{Journal: dbPath, RunID: "run-1"})
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Firings, 3)

	var rules []string
	for _, f := range resp.Data.Firings {
		rules = append(rules, f.Rule)
		assert.Equal(t, 1, f.Iteration)
		require.Len(t, f.Effects, 1)
		assert.True(t, f.Effects[0].Changed)
	}
	assert.Equal(t, []string{"zebra", "fast", "horse"}, rules)
}

func TestTrace_FactProvenance(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	tests := []struct {
		name      string
		opts      TraceOptions
		wantFound bool
		wantRule  string
	}{
		{"latest run", TraceOptions{Fact: "fast(zed)"}, true, "fast"},
		{"explicit run", TraceOptions{Fact: "horse(tom)", RunID: "run-1"}, true, "horse"},
		{"base fact", TraceOptions{Fact: "has-stripes(zed)"}, false, ""},
		{"absent fact", TraceOptions{Fact: "horse(zed)"}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Journal = dbPath
			out, err := trace(t, "json", tt.opts)
			require.NoError(t, err)

			var resp struct {
				Data ProvenanceResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "run-1", resp.Data.RunID)
			assert.Equal(t, tt.wantFound, resp.Data.Found)
			if tt.wantFound {
				require.NotNil(t, resp.Data.Firing)
				assert.Equal(t, tt.wantRule, resp.Data.Firing.Rule)
			} else {
				assert.Nil(t, resp.Data.Firing)
			}
		})
	}
}

func TestTrace_FactProvenanceText(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	out, err := trace(t, "text", TraceOptions{Journal: dbPath, Fact: "zebra(zed)"})
	require.NoError(t, err)
	assert.Contains(t, out, "zebra(zed) was last derived in run run-1 by:\n")
	assert.Contains(t, out, "rule 'zebra' (#0)")

	out, err = trace(t, "text", TraceOptions{Journal: dbPath, Fact: "zebra(tom)"})
	require.NoError(t, err)
	assert.Equal(t, "zebra(tom) was not derived in run run-1\n", out)
}

func TestTrace_Errors(t *testing.T) {
	dbPath := journaledZebraRun(t, 100)

	tests := []struct {
		name    string
		opts    TraceOptions
		wantOut string
	}{
		{"missing journal", TraceOptions{Journal: filepath.Join(t.TempDir(), "none.db")}, "Error [E005]: journal not found"},
		{"unknown run", TraceOptions{Journal: dbPath, RunID: "run-9"}, "Error [E005]"},
		{"unknown run with fact", TraceOptions{Journal: dbPath, RunID: "run-9", Fact: "zebra(zed)"}, "Error [E005]"},
		{"bad fact reference", TraceOptions{Journal: dbPath, Fact: "zebra(zed"}, "missing closing parenthesis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := trace(t, "text", tt.opts)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestTrace_EmptyJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	j, err := journal.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	out, err := trace(t, "text", TraceOptions{Journal: dbPath})
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)

	out, err = trace(t, "text", TraceOptions{Journal: dbPath, Fact: "zebra(zed)"})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "journal is empty")
}

func TestTrace_ThroughRootCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	_, _, err := execute(t, "run", repoTestdata(t, "kb", "zebra.yaml"), "--journal", dbPath)
	require.NoError(t, err)

	out, _, err := execute(t, "trace", "--journal", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "1 run(s) recorded:")
	assert.Contains(t, out, "converged  iterations=2 firings=3 facts=4->7")
}
