package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: presence_pass
description: "Empty faults are rejected"
policy: presence
cycles: 2
draws: [0.5, 0.05]
assertions:
  - type: class_count
    class: empty
    count: 1
  - type: status
    class: empty
    status: 400
`

const failingScenario = `name: wrong_expectation
description: "Expects a fault that never happens"
policy: presence
cycles: 2
draws: [0.5]
assertions:
  - type: class_count
    class: empty
    count: 1
`

func writeScenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTest_AllScenariosPass(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"presence_pass.yaml": passingScenario})
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runTests(opts, dir, cmd)
	require.NoError(t, err)

	assert.Contains(t, out.String(), "✓ presence_pass")
	assert.Contains(t, out.String(), "1 passed, 0 failed, 1 total")
}

func TestTest_FailingScenarioExitsNonzero(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"presence_pass.yaml":     passingScenario,
		"wrong_expectation.yaml": failingScenario,
	})
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runTests(opts, dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Contains(t, out.String(), "✗ wrong_expectation")
	assert.Contains(t, out.String(), "1 passed, 1 failed, 2 total")
}

func TestTest_JSONOutput(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"wrong_expectation.yaml": failingScenario})
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "json"}}
	err := runTests(opts, dir, cmd)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTest_FilterSelectsScenarios(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"presence_pass.yaml":     passingScenario,
		"wrong_expectation.yaml": failingScenario,
	})
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}, Filter: "presence*"}
	err := runTests(opts, dir, cmd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "1 passed, 0 failed, 1 total")
}

func TestTest_MalformedScenarioFails(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"broken.yaml": "name: broken\n"})
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runTests(opts, dir, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "Load error")
}

func TestTest_MissingDirectory(t *testing.T) {
	cmd, _, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runTests(opts, filepath.Join(t.TempDir(), "nowhere"), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_EmptyDirectory(t *testing.T) {
	cmd, out, _ := newCaptureCommand()

	opts := &TestOptions{RootOptions: &RootOptions{Format: "text"}}
	err := runTests(opts, t.TempDir(), cmd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No scenarios found.")
}
