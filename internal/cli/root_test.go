package cli

import (
	"bytes"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// repoTestdata returns a path under the repository's testdata directory.
func repoTestdata(t *testing.T, elem ...string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	root := filepath.Join(filepath.Dir(file), "..", "..", "testdata")
	return filepath.Join(append([]string{root}, elem...)...)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "fuzzyinfer", cmd.Use)
	assert.Contains(t, cmd.Long, "forward-chaining")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"run", "validate", "merge", "analyze", "trace", "replay", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	maxFlag := runCmd.Flags().Lookup("max-iterations")
	require.NotNil(t, maxFlag)
	assert.Equal(t, "100", maxFlag.DefValue)

	queryFlag := runCmd.Flags().Lookup("query")
	require.NotNil(t, queryFlag)
	assert.Equal(t, "q", queryFlag.Shorthand)

	outputFlag := runCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	require.NotNil(t, runCmd.Flags().Lookup("journal"))
	require.NotNil(t, runCmd.Flags().Lookup("explain"))
	require.NotNil(t, runCmd.Flags().Lookup("min-degree"))
}

func TestMergeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	mergeCmd, _, err := cmd.Find([]string{"merge"})
	require.NoError(t, err)

	strategyFlag := mergeCmd.Flags().Lookup("strategy")
	require.NotNil(t, strategyFlag)
	assert.Equal(t, "s", strategyFlag.Shorthand)

	weightsFlag := mergeCmd.Flags().Lookup("weights")
	require.NotNil(t, weightsFlag)
	assert.Equal(t, "[0.5,0.5]", weightsFlag.DefValue)

	thresholdFlag := mergeCmd.Flags().Lookup("threshold")
	require.NotNil(t, thresholdFlag)
	assert.Equal(t, "0.5", thresholdFlag.DefValue)

	require.NotNil(t, mergeCmd.Flags().Lookup("auto-resolve"))
}

func TestJournalCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"trace", "replay"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			require.NotNil(t, sub.Flags().Lookup("journal"))
			require.NotNil(t, sub.Flags().Lookup("run"))
		})
	}
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestFormatValidation(t *testing.T) {
	// Test valid formats
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	// Test invalid formats
	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	_, _, err := execute(t, "--format", "invalid", "validate", repoTestdata(t, "kb", "zebra.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMissingRequiredFlag(t *testing.T) {
	_, _, err := execute(t, "merge", "a.yaml", "b.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "strategy")
}
