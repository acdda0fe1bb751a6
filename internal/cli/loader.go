package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/plc/internal/compiler"
	"github.com/roach88/plc/internal/config"
	"github.com/roach88/plc/internal/fault"
)

// Error codes reported by validate and by load failures in other commands.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeNotFound    = "E002"
	ErrCodeUnsupported = "E003"
	ErrCodeSyntax      = "E004"
	ErrCodeInvalid     = "E005"
	ErrCodeProgram     = "E006"
	ErrCodeDatabase    = "E007"
)

// applicationExts are the file extensions accepted for applications.
var applicationExts = []string{".yaml", ".yml", ".cue"}

// Issue is one problem found in an application file.
type Issue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (i Issue) String() string {
	var b strings.Builder
	if i.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", i.Line)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, "%s: ", i.Field)
	}
	fmt.Fprintf(&b, "%s: %s", i.Code, i.Message)
	return b.String()
}

// LoadError is returned when an application cannot be loaded. It holds every
// issue found; the first one names the error code.
type LoadError struct {
	Path   string
	Issues []Issue
}

func (e *LoadError) Error() string {
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: %s: cannot load application", ErrCodeGeneric, e.Path)
	}
	first := e.Issues[0]
	msg := fmt.Sprintf("%s: %s: %s", first.Code, e.Path, first.Message)
	if n := len(e.Issues) - 1; n > 0 {
		msg += fmt.Sprintf(" (and %d more)", n)
	}
	return msg
}

// Code returns the code of the first issue.
func (e *LoadError) Code() string {
	if len(e.Issues) == 0 {
		return ErrCodeGeneric
	}
	return e.Issues[0].Code
}

// LoadApplication loads a YAML or CUE application. Failures are returned as
// *LoadError.
func LoadApplication(path string) (*config.Application, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Path: path, Issues: []Issue{{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("application file not found: %s", path),
		}}}
	}
	if err != nil {
		return nil, &LoadError{Path: path, Issues: []Issue{{Code: ErrCodeNotFound, Message: err.Error()}}}
	}
	if info.IsDir() {
		return nil, &LoadError{Path: path, Issues: []Issue{{
			Code:    ErrCodeNotFound,
			Message: fmt.Sprintf("not a file: %s", path),
		}}}
	}
	if !supportedExt(path) {
		return nil, &LoadError{Path: path, Issues: []Issue{{
			Code:    ErrCodeUnsupported,
			Message: fmt.Sprintf("unsupported extension %q (want one of %v)", filepath.Ext(path), applicationExts),
		}}}
	}

	app, err := compiler.LoadApplication(path)
	if err != nil {
		return nil, &LoadError{Path: path, Issues: issues(err)}
	}
	return app, nil
}

func supportedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range applicationExts {
		if ext == e {
			return true
		}
	}
	return false
}

// issues flattens an error tree into one issue per leaf. Validation errors
// are joined, so every configuration problem gets its own issue.
func issues(err error) []Issue {
	if multi := findMulti(err); multi != nil {
		var out []Issue
		for _, e := range multi.Unwrap() {
			out = append(out, issues(e)...)
		}
		return out
	}

	var fe *fault.Error
	if errors.As(err, &fe) && fe.Code == fault.CodeConfiguration {
		return []Issue{{Code: ErrCodeInvalid, Field: fe.Name, Message: fe.Message}}
	}

	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		issue := Issue{Code: mapCompileErrorToCode(ce.Field), Field: ce.Field, Message: ce.Message}
		if ce.Pos.IsValid() {
			issue.Line = ce.Pos.Line()
		}
		return []Issue{issue}
	}

	if strings.Contains(err.Error(), "failed to parse YAML") {
		return []Issue{{Code: ErrCodeSyntax, Message: err.Error()}}
	}
	return []Issue{{Code: ErrCodeGeneric, Message: err.Error()}}
}

type multiError interface {
	Unwrap() []error
}

// findMulti returns the first joined error in err's single-wrap chain.
func findMulti(err error) multiError {
	for err != nil {
		if m, ok := err.(multiError); ok {
			return m
		}
		err = errors.Unwrap(err)
	}
	return nil
}

// mapCompileErrorToCode maps a CUE compile error field to an error code.
func mapCompileErrorToCode(field string) string {
	if field == "cue" {
		return ErrCodeSyntax
	}
	return ErrCodeInvalid
}
