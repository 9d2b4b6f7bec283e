package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverScenarios_Directory(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "nested")
	require.NoError(t, os.MkdirAll(nested, 0755))
	for _, name := range []string{"b.yaml", "a.yml", "notes.txt", "nested/c.YAML"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x\n"), 0644))
	}

	paths, err := DiscoverScenarios(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.YAML"),
	}, paths)
}

func TestDiscoverScenarios_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\n"), 0644))

	paths, err := DiscoverScenarios(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, paths)
}

func TestDiscoverScenarios_NotFound(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing path", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing") }},
		{"empty dir", func(t *testing.T) string { return t.TempDir() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path(t)
			_, err := DiscoverScenarios(path)
			require.Error(t, err)

			var notFound *ScenarioNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, path, notFound.Path)
			assert.Contains(t, err.Error(), "no scenario files found")
		})
	}
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	createTestKB(t, dir, "birds.yaml")

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		return path
	}

	passing := write("pass.yaml", `
name: pass
description: "Birds fly"
kb: birds.yaml
assertions: [{type: converged}]
`)
	failing := write("fail.yaml", `
name: fail
description: "Wrong count"
kb: birds.yaml
assertions: [{type: fact_count, count: 99}]
`)
	broken := write("broken.yaml", `
name: broken
assertions: [{type: converged}]
`)

	result, err := RunSuite(context.Background(), []string{passing, failing, broken})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 2, result.Failed)

	require.Len(t, result.Outcomes, 3)
	assert.True(t, result.Outcomes[0].Pass)
	assert.Equal(t, "pass", result.Outcomes[0].Name)
	assert.NotNil(t, result.Outcomes[0].Result)

	assert.Contains(t, result.Outcomes[1].Error, "scenario assertions failed")
	assert.Contains(t, result.Outcomes[1].Error, "99 facts")
	assert.NotNil(t, result.Outcomes[1].Result)

	assert.Contains(t, result.Outcomes[2].Error, "failed to load scenario")
	assert.Empty(t, result.Outcomes[2].Name)
	assert.Nil(t, result.Outcomes[2].Result)

	failures := result.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, failing, failures[0].Path)
	assert.Equal(t, broken, failures[1].Path)
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := RunSuite(ctx, []string{"unused.yaml"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.Total)
}
