package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plc/internal/engine"
)

// Scenario defines a simulated PLC run: an application and a control script
// driven by scripted pin levels, checked against expected registry states.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Application is the application file (YAML or CUE).
	// Relative paths resolve against the scenario file directory.
	Application string `yaml:"application"`

	// Program is the Starlark control script.
	// Relative paths resolve against the scenario file directory.
	Program string `yaml:"program"`

	// RunID is the fixed run identifier. Defaults to DefaultRunID.
	RunID string `yaml:"run_id,omitempty"`

	// StopAfter requests a stop once this cycle completed. Zero means the
	// run must end on its own (emergency or failure) within MaxCycles.
	StopAfter int64 `yaml:"stop_after,omitempty"`

	// Pins sets pin levels and faults before the given cycles.
	Pins []PinStep `yaml:"pins,omitempty"`

	// Expect lists registry states to check after the given cycles.
	Expect []CycleExpect `yaml:"expect,omitempty"`

	// Outcome is the expected run outcome (stopped, emergency,
	// communication_failure, control_error). Defaults to stopped.
	Outcome string `yaml:"outcome,omitempty"`

	// Levels are the expected pin levels once the run ended.
	Levels map[string]bool `yaml:"levels,omitempty"`
}

// PinStep is applied at the start of a cycle, before the input phase.
type PinStep struct {
	Cycle int64 `yaml:"cycle"`

	// Set drives input pins to the given levels.
	Set map[string]bool `yaml:"set,omitempty"`

	// FailRead and FailWrite inject a hardware fault on each listed pin.
	FailRead  []string `yaml:"fail_read,omitempty"`
	FailWrite []string `yaml:"fail_write,omitempty"`

	// Clear removes injected faults from each listed pin.
	Clear []string `yaml:"clear,omitempty"`
}

// CycleExpect is a subset match on the registries after a cycle. Only the
// listed variables and fields are compared.
type CycleExpect struct {
	Cycle   int64                `yaml:"cycle"`
	Inputs  map[string]VarExpect `yaml:"inputs,omitempty"`
	Outputs map[string]VarExpect `yaml:"outputs,omitempty"`
	Steps   map[string]VarExpect `yaml:"steps,omitempty"`
}

// VarExpect is the expected state of one variable. Nil fields are not
// checked. State accepts booleans, integers and floats.
type VarExpect struct {
	State   any   `yaml:"state,omitempty"`
	Rising  *bool `yaml:"rising,omitempty"`
	Falling *bool `yaml:"falling,omitempty"`
}

// DefaultRunID is the run identifier of scenarios that set none.
const DefaultRunID = "scenario-run"

// MaxCycles bounds a scenario run. A stop is requested once it is reached.
const MaxCycles = 1000

var outcomes = map[string]bool{
	string(engine.OutcomeStopped):              true,
	string(engine.OutcomeEmergency):            true,
	string(engine.OutcomeCommunicationFailure): true,
	string(engine.OutcomeControlError):         true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// Application and program paths are resolved against the scenario file
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict fields catch typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Application = resolve(base, scenario.Application)
	scenario.Program = resolve(base, scenario.Program)

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Application == "" {
		return fmt.Errorf("application is required")
	}
	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	for _, path := range []string{s.Application, s.Program} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
	}

	if s.Outcome != "" && !outcomes[s.Outcome] {
		return fmt.Errorf("unknown outcome %q", s.Outcome)
	}
	if s.StopAfter < 0 {
		return fmt.Errorf("stop_after must be non-negative")
	}
	if s.StopAfter > MaxCycles {
		return fmt.Errorf("stop_after %d exceeds %d cycles", s.StopAfter, MaxCycles)
	}

	for i, p := range s.Pins {
		if p.Cycle < 1 {
			return fmt.Errorf("pins[%d]: cycle must be at least 1", i)
		}
		if len(p.Set) == 0 && len(p.FailRead) == 0 && len(p.FailWrite) == 0 && len(p.Clear) == 0 {
			return fmt.Errorf("pins[%d]: nothing to apply", i)
		}
	}

	for i, e := range s.Expect {
		if e.Cycle < 1 {
			return fmt.Errorf("expect[%d]: cycle must be at least 1", i)
		}
		if len(e.Inputs)+len(e.Outputs)+len(e.Steps) == 0 {
			return fmt.Errorf("expect[%d]: no variables listed", i)
		}
		for _, group := range []map[string]VarExpect{e.Inputs, e.Outputs, e.Steps} {
			for name, v := range group {
				if v.State == nil && v.Rising == nil && v.Falling == nil {
					return fmt.Errorf("expect[%d].%s: state, rising or falling is required", i, name)
				}
				if _, err := expectedNumber(v.State); v.State != nil && err != nil {
					return fmt.Errorf("expect[%d].%s: %w", i, name, err)
				}
			}
		}
	}
	return nil
}
