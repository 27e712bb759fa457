package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/louhi-db/louhi/internal/sim"
)

func newCaptureCommand() (*cobra.Command, *bytes.Buffer, *bytes.Buffer) {
	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd, out, errOut
}

func baseRunOptions(format string) *RunOptions {
	return &RunOptions{
		RootOptions: &RootOptions{Format: format},
		Policy:      "presence",
		Listen:      "127.0.0.1:0",
		Cycles:      4,
		Source:      sim.NewScriptedSource(0.5, 0.05),
	}
}

func TestRunSimulation_BoundedRun(t *testing.T) {
	t.Setenv(sim.SeedEnvVar, "42")
	cmd, out, _ := newCaptureCommand()

	err := runSimulation(baseRunOptions("text"), cmd)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Completed 4 cycles")
	assert.Contains(t, out.String(), "seed 42")
	assert.Contains(t, out.String(), "Trace hash: ")
}

func TestRunSimulation_JSONSummary(t *testing.T) {
	t.Setenv(sim.SeedEnvVar, "42")
	cmd, out, _ := newCaptureCommand()

	err := runSimulation(baseRunOptions("json"), cmd)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(42), data["seed"])
	assert.Equal(t, float64(4), data["cycles"])
	assert.NotEmpty(t, data["trace_hash"])

	byClass, ok := data["by_class"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), byClass["normal"])
	assert.Equal(t, float64(2), byClass["empty"])
}

func TestRunSimulation_SameSeedSameHash(t *testing.T) {
	t.Setenv(sim.SeedEnvVar, "1234")

	hash := func() string {
		cmd, out, _ := newCaptureCommand()
		opts := baseRunOptions("json")
		opts.Source = nil // use the seeded generator
		opts.Cycles = 50
		require.NoError(t, runSimulation(opts, cmd))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
		return resp.Data.(map[string]interface{})["trace_hash"].(string)
	}

	assert.Equal(t, hash(), hash(), "a pinned seed must reproduce the identical trace")
}

func TestRunSimulation_OracleMismatchExitCode(t *testing.T) {
	// The server answers 200 for conformant requests, so a workload
	// expecting 201 fails its very first cycle.
	workloadPath := filepath.Join(t.TempDir(), "strict.cue")
	require.NoError(t, os.WriteFile(workloadPath, []byte(`workload: {
	database:  "test"
	host:      "test.localhost"
	statement: "SELECT 1"
	ok_status: 201
	policies: presence: {class: "empty", probability: 0.1, reject_status: 400}
}
`), 0o644))

	cmd, _, errOut := newCaptureCommand()
	opts := baseRunOptions("text")
	opts.Workload = workloadPath
	opts.Source = sim.NewScriptedSource(0.5)

	err := runSimulation(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "oracle mismatch")

	var mismatch *sim.MismatchError
	assert.ErrorAs(t, err, &mismatch)

	// The diagnostic dump lands on stderr.
	assert.Contains(t, errOut.String(), "200 OK")
}

func TestRunSimulation_UnknownPolicy(t *testing.T) {
	cmd, _, _ := newCaptureCommand()
	opts := baseRunOptions("text")
	opts.Policy = "latency"

	err := runSimulation(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunSimulation_MissingWorkloadFile(t *testing.T) {
	cmd, _, _ := newCaptureCommand()
	opts := baseRunOptions("text")
	opts.Workload = filepath.Join(t.TempDir(), "nowhere.cue")

	err := runSimulation(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunSimulation_BadSeed(t *testing.T) {
	t.Setenv(sim.SeedEnvVar, "not-a-number")
	cmd, _, _ := newCaptureCommand()

	err := runSimulation(baseRunOptions("text"), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunSimulation_DataDirPersists(t *testing.T) {
	t.Setenv(sim.SeedEnvVar, "7")
	dataDir := filepath.Join(t.TempDir(), "data")

	cmd, _, _ := newCaptureCommand()
	opts := baseRunOptions("text")
	opts.DataDir = dataDir
	opts.Cycles = 1
	require.NoError(t, runSimulation(opts, cmd))

	// An explicit data dir is the caller's to keep.
	_, err := os.Stat(filepath.Join(dataDir, "test.db"))
	assert.NoError(t, err)
}
