package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fuzzyinfer/internal/engine"
	"github.com/roach88/fuzzyinfer/internal/ir"
	"github.com/roach88/fuzzyinfer/internal/kb"
)

// createTestJournal opens a fresh journal in a temp dir with fixed run ids.
func createTestJournal(t *testing.T, runIDs ...string) *Journal {
	t.Helper()
	if len(runIDs) == 0 {
		runIDs = []string{"run-1", "run-2", "run-3"}
	}
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path, WithRunIDs(engine.NewFixedGenerator(runIDs...)))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

// zebraKB is the classic zebra example: striped animals with hooves are
// zebras, zebras are fast.
func zebraKB() *kb.KnowledgeBase {
	facts := []ir.Fact{
		ir.MustFact("has-stripes", ir.Atoms("zed"), 0.9),
		ir.MustFact("has-hooves", ir.Atoms("zed"), 0.8),
	}
	rules := []ir.Rule{
		ir.NewRuleBuilder().
			Named("zebra").
			When("has-stripes", "?x").
			When("has-hooves", "?x").
			ThenAdd("zebra", "?x").
			WithDegree(0.7).
			MustBuild(),
		ir.NewRuleBuilder().
			Named("fast").
			When("zebra", "?x").
			ThenAdd("fast", "?x").
			MustBuild(),
	}
	return kb.FromParts(facts, rules)
}

// runRecorded runs k on a fresh engine wired to the journal and returns
// the engine and the recorder.
func runRecorded(t *testing.T, j *Journal, k *kb.KnowledgeBase, opts ...engine.EngineOption) (*engine.Engine, *Recorder) {
	t.Helper()
	rec := j.Recorder(context.Background())
	opts = append([]engine.EngineOption{
		engine.WithSessionGenerator(engine.NewFixedGenerator("session-1")),
		engine.WithRecorder(rec),
	}, opts...)
	e := engine.New(opts...)
	require.NoError(t, e.LoadKnowledgeBase(k))
	return e, rec
}
