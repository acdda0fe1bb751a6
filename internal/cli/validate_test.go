package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidApplication(t *testing.T) {
	_, app, _ := writeTank(t)

	out, _, err := execute(t, "validate", app)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tank valid (3 inputs, 1 outputs, 1 steps)")
}

func TestValidate_ValidApplicationJSON(t *testing.T) {
	_, app, _ := writeTank(t)

	out, _, err := execute(t, "--format", "json", "validate", app)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "tank", resp.Data.Application)
	assert.Equal(t, 3, resp.Data.Inputs)
	assert.Equal(t, 1, resp.Data.Outputs)
	assert.Equal(t, 1, resp.Data.Steps)
}

func TestValidate_CUEApplication(t *testing.T) {
	dir := t.TempDir()
	app := writeFile(t, dir, "tank.cue", `name: "tank"
inputs: start: pin: "17"
outputs: valve: pin: "22"
steps: filling: {}
`)

	out, _, err := execute(t, "validate", app)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ tank valid (1 inputs, 1 outputs, 1 steps)")
}

func TestValidate_WithProgram(t *testing.T) {
	_, app, program := writeTank(t)

	_, _, err := execute(t, "validate", app, "--program", program)
	require.NoError(t, err)
}

func TestValidate_ProgramErrors(t *testing.T) {
	tests := []struct {
		name    string
		program string
		want    string
	}{
		{"syntax", "def control(:\n    pass\n", "failed to load script"},
		{"no_control", "def on_exit():\n    pass\n", "control() is not defined"},
		{"unknown_input", "x = input(\"missing\")\ndef control():\n    pass\n", "missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, app, _ := writeTank(t)
			program := writeFile(t, dir, "bad.star", tt.program)

			out, _, err := execute(t, "validate", app, "--program", program)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Contains(t, out, ErrCodeProgram)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestValidate_NotFound(t *testing.T) {
	out, _, err := execute(t, "validate", "/nonexistent/tank.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidate_UnsupportedExtension(t *testing.T) {
	app := writeFile(t, t.TempDir(), "tank.txt", tankApp)

	_, _, err := execute(t, "validate", app)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeUnsupported)
}

func TestValidate_SyntaxError(t *testing.T) {
	app := writeFile(t, t.TempDir(), "tank.yaml", "name: [tank\n")

	out, _, err := execute(t, "validate", app)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, ErrCodeSyntax)
}

func TestValidate_ReportsEveryIssue(t *testing.T) {
	app := writeFile(t, t.TempDir(), "tank.yaml", `name: tank
inputs:
  - name: start
    pin: "17"
  - name: start
    pin: "18"
outputs:
  - name: valve
    pin: "17"
`)

	out, _, err := execute(t, "--format", "json", "validate", app)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Issues, 2)

	assert.Equal(t, ErrCodeInvalid, resp.Data.Issues[0].Code)
	assert.Equal(t, "start", resp.Data.Issues[0].Field)
	assert.Contains(t, resp.Data.Issues[0].Message, "duplicate input")

	assert.Equal(t, "valve", resp.Data.Issues[1].Field)
	assert.Contains(t, resp.Data.Issues[1].Message, "pin 17 already used by start")

	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
}

func TestValidate_UnknownField(t *testing.T) {
	app := writeFile(t, t.TempDir(), "tank.yaml", "name: tank\ninptus: []\n")

	out, _, err := execute(t, "validate", app)
	require.Error(t, err)
	assert.Contains(t, out, "inptus")
}

func TestValidate_Warnings(t *testing.T) {
	app := writeFile(t, t.TempDir(), "steps.yaml", "steps:\n  - name: idle\n")

	out, _, err := execute(t, "validate", app)
	require.NoError(t, err)
	assert.Contains(t, out, "warning: application has no name")
	assert.Contains(t, out, "warning: no outputs declared")
}
