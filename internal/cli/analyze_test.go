package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyze(t *testing.T, format, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	err := runAnalyze(&RootOptions{Format: format}, path, buf, &bytes.Buffer{})
	return buf.String(), err
}

func TestAnalyze_Golden(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"analyze_zebra", repoTestdata(t, "kb", "zebra.yaml")},
		{"analyze_recursive", "testdata/recursive.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := analyze(t, "text", tt.path)
			require.NoError(t, err, "cycles are warnings")
			newGoldie(t).Assert(t, tt.name, []byte(out))
		})
	}
}

func TestAnalyze_JSON(t *testing.T) {
	out, err := analyze(t, "json", "testdata/recursive.yaml")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   AnalyzeResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 5, resp.Data.Rules)
	require.Len(t, resp.Data.Warnings, 3)
	assert.Equal(t, []string{"ping", "pong", "ping"}, resp.Data.Warnings[2].Path)
	assert.Equal(t, []int{3, 4}, resp.Data.Warnings[2].Rules)
}

func TestAnalyze_MissingFile(t *testing.T) {
	out, err := analyze(t, "text", "testdata/none.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
