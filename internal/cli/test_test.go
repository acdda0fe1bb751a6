package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessTestdata = filepath.Join("..", "harness", "testdata")

const fillScenario = `name: fill
description: A start push opens the valve
application: tank.yaml
program: tank.star
stop_after: 2
pins:
  - cycle: 1
    set: {"17": true}
expect:
  - cycle: 1
    outputs:
      valve: {state: VALVE}
`

func writeScenario(t *testing.T, dir, valve string) string {
	t.Helper()
	return writeFile(t, dir, "fill.scenario.yaml", strings.ReplaceAll(fillScenario, "VALVE", valve))
}

func TestTest_HarnessScenarios(t *testing.T) {
	out, _, err := execute(t, "test", harnessTestdata)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ tank_fill (stopped after 5 cycles)")
	assert.Contains(t, out, "✓ tank_emergency (emergency after 3 cycles)")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTest_Filter(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", harnessTestdata, "--filter", "tank_fill*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 2, resp.Data.Passed)
	for _, s := range resp.Data.Scenarios {
		assert.Contains(t, []string{"tank_fill", "tank_fill_cue"}, s.Name)
	}
}

func TestTest_InvalidFilter(t *testing.T) {
	_, _, err := execute(t, "test", harnessTestdata, "--filter", "[")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_NoScenarios(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTest_PathNotFound(t *testing.T) {
	_, _, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestTest_FailingScenario(t *testing.T) {
	dir, _, _ := writeTank(t)
	writeScenario(t, dir, "false")

	out, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ fill")
	assert.Contains(t, out, "cycle 1: outputs.valve state false")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTest_BrokenScenarioFile(t *testing.T) {
	dir, _, _ := writeTank(t)
	writeFile(t, dir, "broken.scenario.yaml", "name: broken\nunknown: 1\n")

	out, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "broken.scenario.yaml", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestTest_UpdateThenCompareGolden(t *testing.T) {
	dir, _, _ := writeTank(t)
	writeScenario(t, dir, "true")
	golden := filepath.Join(dir, "golden", "fill.golden")

	out, _, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario":"fill"`)

	_, _, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario":"fill"}`), 0644))
	out, _, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}
