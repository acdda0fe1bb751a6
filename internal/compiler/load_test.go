package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadApplicationByExtension(t *testing.T) {
	dir := t.TempDir()

	cuePath := filepath.Join(dir, "tank.cue")
	require.NoError(t, os.WriteFile(cuePath, []byte(tankCUE), 0o644))

	yamlPath := filepath.Join(dir, "tank.yaml")
	yamlSrc := "name: tank\ninputs:\n  - name: start\n    pin: \"17\"\n"
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlSrc), 0o644))

	fromCUE, err := LoadApplication(cuePath)
	require.NoError(t, err)
	assert.Equal(t, "tank", fromCUE.Name)
	assert.Len(t, fromCUE.Inputs, 2)

	fromYAML, err := LoadApplication(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "tank", fromYAML.Name)
	assert.Len(t, fromYAML.Inputs, 1)
}

func TestLoadApplicationYAMLIsNotCUE(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tank.yml")
	require.NoError(t, os.WriteFile(path, []byte(tankCUE), 0o644))

	_, err := LoadApplication(path)
	assert.Error(t, err)
}
