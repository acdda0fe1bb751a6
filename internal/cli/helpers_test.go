package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const tankApp = `name: tank
inputs:
  - name: start
    pin: "17"
  - name: full
    pin: "23"
  - name: high
    pin: "24"
outputs:
  - name: valve
    pin: "22"
steps:
  - name: filling
`

const tankProgram = `
def control():
    if input("high").active:
        emergency("high level")

    filling = step("filling")
    if input("full").active:
        if filling.active:
            filling.deactivate()
    elif input("start").rising_edge and not filling.active:
        filling.activate()

    valve = output("valve")
    if valve.active != filling.active:
        if filling.active:
            valve.activate()
        else:
            valve.deactivate()

def on_exit():
    output("valve").deactivate()

def on_emergency():
    output("valve").deactivate()
`

// writeFile writes content to dir/name and returns the path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// writeTank writes the tank application and program into a fresh directory.
func writeTank(t *testing.T) (dir, app, program string) {
	t.Helper()
	dir = t.TempDir()
	return dir, writeFile(t, dir, "tank.yaml", tankApp), writeFile(t, dir, "tank.star", tankProgram)
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}
