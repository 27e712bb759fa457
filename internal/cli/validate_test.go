package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workload.cue")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validWorkload = `workload: {
	database:  "test"
	host:      "test.localhost"
	statement: "SELECT 1"
	ok_status: 200
	policies: {
		presence:   {class: "empty", probability: 0.1, reject_status: 400}
		corruption: {class: "fuzzed", probability: 0.1, noise: "FUZZ FUZZ FUZZ", reject_status: 400}
	}
}
`

func TestValidate_ValidWorkload(t *testing.T) {
	path := writeWorkload(t, validWorkload)
	cmd, out, _ := newCaptureCommand()

	err := runValidate(&RootOptions{Format: "text"}, path, cmd)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "is valid")
	assert.Contains(t, out.String(), "presence")
}

func TestValidate_ValidWorkloadJSON(t *testing.T) {
	path := writeWorkload(t, validWorkload)
	cmd, out, _ := newCaptureCommand()

	err := runValidate(&RootOptions{Format: "json"}, path, cmd)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, data["valid"])
	assert.ElementsMatch(t, []interface{}{"corruption", "presence"}, data["policies"])
}

func TestValidate_InvalidWorkload(t *testing.T) {
	path := writeWorkload(t, `workload: {
	database: "test"
	host:     "test.localhost"
	policies: presence: {class: "empty", probability: 0.1}
}
`)
	cmd, out, _ := newCaptureCommand()

	err := runValidate(&RootOptions{Format: "text"}, path, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.String(), "workload is invalid")
}

func TestValidate_InvalidWorkloadJSONIssueField(t *testing.T) {
	path := writeWorkload(t, `workload: {
	database:  "test"
	host:      "test.localhost"
	statement: "SELECT 1"
	policies: presence: {class: "empty", probability: 3.0}
}
`)
	cmd, out, _ := newCaptureCommand()

	err := runValidate(&RootOptions{Format: "json"}, path, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E002", resp.Error.Code)
}

func TestValidate_MissingFile(t *testing.T) {
	cmd, _, _ := newCaptureCommand()

	err := runValidate(&RootOptions{Format: "text"}, filepath.Join(t.TempDir(), "nowhere.cue"), cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
