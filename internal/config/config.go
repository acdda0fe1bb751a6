// Package config describes a PLC application: its pins, steps, cycle period
// and alarm channels.
//
// Applications are written in YAML (LoadFile) or CUE (package compiler).
// Both produce an Application, which Apply registers on an engine in file
// order: digital inputs, digital outputs, PWM outputs, steps.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plc/internal/binding"
	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/memory"
)

// Application is a complete PLC configuration.
type Application struct {
	Name       string          `yaml:"name" json:"name"`
	CycleTime  time.Duration   `yaml:"cycle_time" json:"cycle_time"`
	Inputs     []DigitalInput  `yaml:"inputs" json:"inputs"`
	Outputs    []DigitalOutput `yaml:"outputs" json:"outputs"`
	PWMOutputs []PWMOutput     `yaml:"pwm_outputs" json:"pwm_outputs"`
	Steps      []Step          `yaml:"steps" json:"steps"`
	Notify     Notify          `yaml:"notify" json:"notify"`
}

// DigitalInput binds a contact to an input variable.
type DigitalInput struct {
	Name           string `yaml:"name" json:"name"`
	Pin            string `yaml:"pin" json:"pin"`
	NormallyClosed bool   `yaml:"normally_closed" json:"normally_closed"`
}

// DigitalOutput binds an on/off actuator to an output variable.
type DigitalOutput struct {
	Name string `yaml:"name" json:"name"`
	Pin  string `yaml:"pin" json:"pin"`
	Init bool   `yaml:"init" json:"init"`
}

// PWMOutput binds a pulse-width modulated actuator to an output variable.
// Zero mapping fields take the gpio.DefaultPWMConfig values.
type PWMOutput struct {
	Name           string `yaml:"name" json:"name"`
	Pin            string `yaml:"pin" json:"pin"`
	gpio.PWMConfig `yaml:",inline"`
}

// Step declares an internal sequence flag.
type Step struct {
	Name string   `yaml:"name" json:"name"`
	Init StepInit `yaml:"init" json:"init"`
}

// StepInit is a step's initial value. YAML accepts a bool or a stage
// number; true reads as 1.
type StepInit int64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StepInit) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := memory.FromAny(raw)
	if err != nil || v.Kind() == memory.KindFloat {
		return fmt.Errorf("line %d: step init must be a bool or an integer, got %q", node.Line, node.Value)
	}
	*s = StepInit(v.AsInt())
	return nil
}

// Value returns the initial value as a memory.Value.
func (s StepInit) Value() memory.Value {
	return memory.Int(int64(s))
}

// Notify selects alarm channels. Email recipients need the PLC_SMTP_*
// environment (see SMTPFromEnv).
type Notify struct {
	Log   bool     `yaml:"log" json:"log"`
	Email []string `yaml:"email" json:"email"`
}

// Config returns the PWM mapping with defaults applied.
func (p PWMOutput) Config() gpio.PWMConfig {
	def := gpio.DefaultPWMConfig()
	cfg := p.PWMConfig
	if cfg.FrameWidth == 0 {
		cfg.FrameWidth = def.FrameWidth
	}
	if cfg.MinPulseWidth == 0 && cfg.MaxPulseWidth == 0 {
		cfg.MinPulseWidth, cfg.MaxPulseWidth = def.MinPulseWidth, def.MaxPulseWidth
	}
	if cfg.MinValue == 0 && cfg.MaxValue == 0 {
		cfg.MinValue, cfg.MaxValue = def.MinValue, def.MaxValue
	}
	return cfg
}

// LoadFile reads and parses a YAML application file.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or fails validation.
func LoadFile(path string) (*Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read application file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a YAML application.
func Parse(data []byte) (*Application, error) {
	var app Application
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&app); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application: %w", err)
	}
	return &app, nil
}

// Validate reports every problem found, joined.
//
// Names must be non-empty and unique within their registry. An output
// reserves the input name `<output>_status` for its read-back.
func (a *Application) Validate() error {
	var errs []error
	if a.CycleTime < 0 {
		errs = append(errs, fault.Configuration("cycle_time", "must not be negative"))
	}

	inputs := map[string]bool{}
	outputs := map[string]bool{}
	steps := map[string]bool{}
	pins := map[string]string{}

	claim := func(seen map[string]bool, kind, name string) {
		switch {
		case name == "":
			errs = append(errs, fault.Configuration("", "%s name is required", kind))
		case seen[name]:
			errs = append(errs, fault.Configuration(name, "duplicate %s", kind))
		default:
			seen[name] = true
		}
	}
	claimPin := func(name, pin string) {
		if pin == "" {
			errs = append(errs, fault.Configuration(name, "pin is required"))
			return
		}
		if owner, ok := pins[pin]; ok {
			errs = append(errs, fault.Configuration(name, "pin %s already used by %s", pin, owner))
			return
		}
		pins[pin] = name
	}

	for _, in := range a.Inputs {
		claim(inputs, "input", in.Name)
		claimPin(in.Name, in.Pin)
	}
	for _, out := range a.Outputs {
		claim(outputs, "output", out.Name)
		claim(inputs, "input", binding.StatusName(out.Name))
		claimPin(out.Name, out.Pin)
	}
	for _, out := range a.PWMOutputs {
		claim(outputs, "output", out.Name)
		claim(inputs, "input", binding.StatusName(out.Name))
		claimPin(out.Name, out.Pin)
		if err := out.Config().Validate(); err != nil {
			errs = append(errs, fault.Configuration(out.Name, "%v", err))
		}
	}
	for _, st := range a.Steps {
		claim(steps, "step", st.Name)
	}

	return errors.Join(errs...)
}

// Apply registers every pin and step on the engine and returns the first
// registration error.
func (a *Application) Apply(eng *engine.Engine) error {
	for _, in := range a.Inputs {
		if _, err := eng.AddDigitalInput(in.Pin, in.Name, in.NormallyClosed); err != nil {
			return err
		}
	}
	for _, out := range a.Outputs {
		if _, _, err := eng.AddDigitalOutput(out.Pin, out.Name, out.Init); err != nil {
			return err
		}
	}
	for _, out := range a.PWMOutputs {
		if _, _, err := eng.AddPWMOutput(out.Pin, out.Name, out.Config()); err != nil {
			return err
		}
	}
	for _, st := range a.Steps {
		if _, err := eng.AddStep(st.Name, st.Init.Value()); err != nil {
			return err
		}
	}
	return nil
}
