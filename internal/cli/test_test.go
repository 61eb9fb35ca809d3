package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const syncScenario = `name: cli_sync
description: "A client joins and adopts the host's document"
config:
  heartbeat: { interval: 1h, timeout: 2h }
nodes:
  - { name: host, document: { "1.1.1": "Mature" } }
  - { name: client }
steps:
  - { node: host, action: host, code: AB12CD }
  - wait: { node: host, state: host }
  - { node: client, action: join, code: AB12CD }
  - wait: { node: client, state: client, document: { "1.1.1": "Mature" } }
assertions:
  - { type: document, node: client, document: { "1.1.1": "Mature" } }
  - { type: participants, node: host, count: 2 }
`

const failingScenario = `name: cli_fail
description: "Expects more participants than ever join"
settle: 100ms
nodes:
  - { name: host }
steps:
  - { node: host, action: host, code: FA11ED }
  - wait: { node: host, state: host }
assertions:
  - { type: participants, node: host, count: 3 }
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "", "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_NonexistentDir(t *testing.T) {
	_, err := execute(t, "", "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "", "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")

	out, err = execute(t, "", "--format", "json", "test", dir)
	require.NoError(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "relay_basic.yaml", "name: a")
	writeScenario(t, dir, "relay_lock.yml", "name: b")
	writeScenario(t, dir, "resume.yaml", "name: c")
	writeScenario(t, dir, "notes.txt", "not a scenario")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0o755))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	files, err = findScenarioFiles(dir, "relay*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "relay_basic.yaml"),
		filepath.Join(dir, "relay_lock.yml"),
	}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "basic.golden"),
		goldenFilePath(filepath.Join("scenarios", "basic.yaml")))
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "cli_sync.yaml", syncScenario)

	out, err := execute(t, "", "test", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ cli_sync (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "cli_sync.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario": "cli_sync"`)

	out, err = execute(t, "", "test", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ cli_sync")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "cli_sync.yaml", syncScenario)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "cli_sync.golden"), []byte("{}\n"), 0o644))

	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "cli_fail.yaml", failingScenario)

	out, err := execute(t, "", "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	require.NotEmpty(t, resp.Data.Scenarios[0].Errors)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "participants on host")
	assert.NotContains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_BadScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken.yaml", "name: [unclosed")

	out, err := execute(t, "", "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
