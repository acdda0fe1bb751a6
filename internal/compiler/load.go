package compiler

import (
	"path/filepath"
	"strings"

	"github.com/roach88/plc/internal/config"
)

// LoadApplication reads an application file. Files ending in .cue are
// compiled with CompileFile, anything else is parsed as YAML.
func LoadApplication(path string) (*config.Application, error) {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return CompileFile(path)
	}
	return config.LoadFile(path)
}
