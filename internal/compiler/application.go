// Package compiler turns CUE application files into config.Application.
//
// A CUE application keys every pin and step by name, so declaration order is
// registration order:
//
//	name:       "tank"
//	cycle_time: "50ms"
//	inputs: start: pin: "17"
//	inputs: stop: {pin: "27", normally_closed: true}
//	outputs: valve: pin: "22"
//	pwm_outputs: fan: {pin: "18", max_value: 100}
//	steps: filling: {}
//	notify: email: ["ops@example.com"]
package compiler

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/plc/internal/config"
	"github.com/roach88/plc/internal/gpio"
)

var (
	applicationFields = []string{"name", "cycle_time", "inputs", "outputs", "pwm_outputs", "steps", "notify"}
	inputFields       = []string{"pin", "normally_closed"}
	outputFields      = []string{"pin", "init"}
	pwmFields         = []string{
		"pin", "init", "frame_width", "min_pulse_width", "max_pulse_width",
		"min_value", "max_value", "status_precision",
	}
	stepFields   = []string{"init"}
	notifyFields = []string{"log", "email"}
)

// CompileFile compiles and validates a CUE application file.
func CompileFile(path string) (*config.Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read application file: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(path))
	app, err := CompileApplication(v)
	if err != nil {
		return nil, err
	}
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application: %w", err)
	}
	return app, nil
}

// CompileApplication converts a CUE value into an Application.
// Uses the CUE SDK's Go API directly (not a CLI subprocess).
//
// The result is not validated; callers run Application.Validate.
func CompileApplication(v cue.Value) (*config.Application, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := checkFields(v, "", applicationFields); err != nil {
		return nil, err
	}

	app := &config.Application{}
	var err error

	if app.Name, err = optionalString(v, "name"); err != nil {
		return nil, err
	}
	if app.CycleTime, err = optionalDuration(v, "cycle_time"); err != nil {
		return nil, err
	}

	err = eachEntry(v, "inputs", inputFields, func(name string, e cue.Value) error {
		in := config.DigitalInput{Name: name}
		if in.Pin, err = requiredString(e, "pin", "inputs."+name); err != nil {
			return err
		}
		if in.NormallyClosed, err = optionalBool(e, "normally_closed"); err != nil {
			return err
		}
		app.Inputs = append(app.Inputs, in)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachEntry(v, "outputs", outputFields, func(name string, e cue.Value) error {
		out := config.DigitalOutput{Name: name}
		if out.Pin, err = requiredString(e, "pin", "outputs."+name); err != nil {
			return err
		}
		if out.Init, err = optionalBool(e, "init"); err != nil {
			return err
		}
		app.Outputs = append(app.Outputs, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachEntry(v, "pwm_outputs", pwmFields, func(name string, e cue.Value) error {
		out := config.PWMOutput{Name: name}
		if out.Pin, err = requiredString(e, "pin", "pwm_outputs."+name); err != nil {
			return err
		}
		cfg, err := parsePWMConfig(e)
		if err != nil {
			return err
		}
		out.PWMConfig = cfg
		app.PWMOutputs = append(app.PWMOutputs, out)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = eachEntry(v, "steps", stepFields, func(name string, e cue.Value) error {
		st := config.Step{Name: name}
		if st.Init, err = optionalStepInit(e, "init"); err != nil {
			return err
		}
		app.Steps = append(app.Steps, st)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if app.Notify, err = parseNotify(v); err != nil {
		return nil, err
	}

	return app, nil
}

func parsePWMConfig(v cue.Value) (gpio.PWMConfig, error) {
	var cfg gpio.PWMConfig
	floats := []struct {
		field string
		dst   *float64
	}{
		{"init", &cfg.Init},
		{"frame_width", &cfg.FrameWidth},
		{"min_pulse_width", &cfg.MinPulseWidth},
		{"max_pulse_width", &cfg.MaxPulseWidth},
		{"min_value", &cfg.MinValue},
		{"max_value", &cfg.MaxValue},
	}
	for _, f := range floats {
		val := v.LookupPath(cue.ParsePath(f.field))
		if !val.Exists() {
			continue
		}
		n, err := val.Float64()
		if err != nil {
			return cfg, formatCUEError(err)
		}
		*f.dst = n
	}

	precision := v.LookupPath(cue.ParsePath("status_precision"))
	if precision.Exists() {
		n, err := precision.Int64()
		if err != nil {
			return cfg, formatCUEError(err)
		}
		cfg.StatusPrecision = int(n)
	}
	return cfg, nil
}

func parseNotify(v cue.Value) (config.Notify, error) {
	var n config.Notify
	nv := v.LookupPath(cue.ParsePath("notify"))
	if !nv.Exists() {
		return n, nil
	}
	if err := checkFields(nv, "notify", notifyFields); err != nil {
		return n, err
	}

	var err error
	if n.Log, err = optionalBool(nv, "log"); err != nil {
		return n, err
	}

	email := nv.LookupPath(cue.ParsePath("email"))
	if !email.Exists() {
		return n, nil
	}
	iter, err := email.List()
	if err != nil {
		return n, formatCUEError(err)
	}
	for iter.Next() {
		addr, err := iter.Value().String()
		if err != nil {
			return n, formatCUEError(err)
		}
		n.Email = append(n.Email, addr)
	}
	return n, nil
}

// eachEntry walks a name-keyed struct in declaration order.
func eachEntry(v cue.Value, field string, allowed []string, fn func(name string, e cue.Value) error) error {
	sv := v.LookupPath(cue.ParsePath(field))
	if !sv.Exists() {
		return nil
	}

	iter, err := sv.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		if err := checkFields(iter.Value(), field+"."+name, allowed); err != nil {
			return err
		}
		if err := fn(name, iter.Value()); err != nil {
			return err
		}
	}
	return nil
}

// checkFields rejects unknown fields (typos like "normaly_closed").
func checkFields(v cue.Value, path string, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !contains(allowed, label) {
			field := label
			if path != "" {
				field = path + "." + label
			}
			return &CompileError{
				Field:   field,
				Message: "unknown field",
				Pos:     iter.Value().Pos(),
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func requiredString(v cue.Value, field, path string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", &CompileError{
			Field:   path + "." + field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return "", nil
	}
	s, err := val.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string) (bool, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return false, nil
	}
	b, err := val.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

// optionalStepInit accepts a bool or an integer stage number.
func optionalStepInit(v cue.Value, field string) (config.StepInit, error) {
	val := v.LookupPath(cue.ParsePath(field))
	if !val.Exists() {
		return 0, nil
	}
	if val.IncompleteKind() == cue.BoolKind {
		b, err := val.Bool()
		if err != nil {
			return 0, formatCUEError(err)
		}
		if b {
			return 1, nil
		}
		return 0, nil
	}
	n, err := val.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return config.StepInit(n), nil
}

func optionalDuration(v cue.Value, field string) (time.Duration, error) {
	s, err := optionalString(v, field)
	if err != nil || s == "" {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, &CompileError{
			Field:   field,
			Message: err.Error(),
			Pos:     v.LookupPath(cue.ParsePath(field)).Pos(),
		}
	}
	return d, nil
}
