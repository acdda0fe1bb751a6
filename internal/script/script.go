// Package script runs PLC control logic written in Starlark.
//
// A script defines control() and, optionally, on_exit() and on_emergency():
//
//	def control():
//	    if input("start").rising_edge:
//	        output("valve").activate()
//	    if input("overpressure").active:
//	        emergency("overpressure")
//
//	def on_emergency():
//	    output("valve").deactivate()
//
// Builtins reach the engine registries and bindings: input, output, step,
// read_digital_input, write_digital_output, write_pwm_output, emergency,
// log and cycle. Top-level script values are frozen after loading; state
// that must survive a cycle lives in step variables.
package script

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/memory"
	"github.com/roach88/plc/internal/registry"
)

// DefaultMaxSteps bounds the Starlark computation steps of one callback, so
// a runaway loop fails the cycle instead of hanging the scan.
const DefaultMaxSteps = 1_000_000

// Program is an engine.Program backed by a Starlark script.
type Program struct {
	eng      *engine.Engine
	logger   *slog.Logger
	filename string
	maxSteps uint64

	control     starlark.Callable
	onExit      starlark.Callable
	onEmergency starlark.Callable

	// emergency is set by the emergency builtin during a callback.
	emergency error
}

var _ engine.Program = (*Program)(nil)

// Option configures a Program.
type Option func(*Program)

// WithMaxSteps overrides DefaultMaxSteps. Zero means unlimited.
func WithMaxSteps(n uint64) Option {
	return func(p *Program) {
		p.maxSteps = n
	}
}

// WithLogger sets the logger used by log() and print(). Default: the
// engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Program) {
		p.logger = logger
	}
}

// Load reads and executes a script file.
func Load(path string, eng *engine.Engine, opts ...Option) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return LoadSource(path, src, eng, opts...)
}

// LoadSource executes script source and resolves its callbacks.
func LoadSource(filename string, src []byte, eng *engine.Engine, opts ...Option) (*Program, error) {
	p := &Program{
		eng:      eng,
		logger:   eng.Logger(),
		filename: filename,
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(p)
	}

	thread := p.newThread("load")
	fileOpts := &syntax.FileOptions{
		While:           true,
		TopLevelControl: true,
		GlobalReassign:  true,
	}
	globals, err := starlark.ExecFileOptions(fileOpts, thread, filename, src, p.builtins())
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", filename, err)
	}

	if p.control, err = callback(globals, "control", true); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if p.onExit, err = callback(globals, "on_exit", false); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if p.onEmergency, err = callback(globals, "on_emergency", false); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

func callback(globals starlark.StringDict, name string, required bool) (starlark.Callable, error) {
	v, ok := globals[name]
	if !ok {
		if required {
			return nil, fmt.Errorf("%s() is not defined", name)
		}
		return nil, nil
	}
	fn, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is a %s, not a function", name, v.Type())
	}
	return fn, nil
}

// Control implements engine.Program.
func (p *Program) Control() error {
	return p.call("control", p.control)
}

// OnExit implements engine.Program.
func (p *Program) OnExit() error {
	return p.call("on_exit", p.onExit)
}

// OnEmergency implements engine.Program.
func (p *Program) OnEmergency() error {
	return p.call("on_emergency", p.onEmergency)
}

// call runs a callback. An emergency raised through the builtin is returned
// as the bare fault.Emergency error, not the Starlark error wrapping it.
func (p *Program) call(name string, fn starlark.Callable) error {
	if fn == nil {
		return nil
	}
	p.emergency = nil

	_, err := starlark.Call(p.newThread(name), fn, nil, nil)
	if p.emergency != nil {
		return p.emergency
	}
	if err == nil {
		return nil
	}

	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		p.logger.Debug("script error", "callback", name, "backtrace", evalErr.Backtrace())
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (p *Program) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			p.logger.Info(msg, "script", p.filename)
		},
	}
	if p.maxSteps > 0 {
		thread.SetMaxExecutionSteps(p.maxSteps)
	}
	return thread
}

func (p *Program) builtins() starlark.StringDict {
	return starlark.StringDict{
		"input":                starlark.NewBuiltin("input", p.lookup(registry.KindInput, p.eng.Input)),
		"output":               starlark.NewBuiltin("output", p.lookup(registry.KindOutput, p.eng.Output)),
		"step":                 starlark.NewBuiltin("step", p.lookup(registry.KindStep, p.eng.Step)),
		"read_digital_input":   starlark.NewBuiltin("read_digital_input", p.readDigitalInput),
		"write_digital_output": starlark.NewBuiltin("write_digital_output", p.writeDigitalOutput),
		"write_pwm_output":     starlark.NewBuiltin("write_pwm_output", p.writePWMOutput),
		"emergency":            starlark.NewBuiltin("emergency", p.raiseEmergency),
		"log":                  starlark.NewBuiltin("log", p.log),
		"cycle":                starlark.NewBuiltin("cycle", p.cycle),
	}
}

type builtinFunc func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

func (p *Program) lookup(kind registry.Kind, get func(string) (*memory.Variable, error)) builtinFunc {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
			return nil, err
		}
		v, err := get(name)
		if err != nil {
			return nil, err
		}
		return &Var{kind: kind, name: name, v: v}, nil
	}
}

func (p *Program) readDigitalInput(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	on, err := p.eng.ReadDigitalInput(name)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(on), nil
}

func (p *Program) writeDigitalOutput(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value bool
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &value); err != nil {
		return nil, err
	}
	if err := p.eng.WriteDigitalOutput(name, value); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (p *Program) writePWMOutput(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &name, &value); err != nil {
		return nil, err
	}
	f, ok := starlark.AsFloat(value)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want number", b.Name(), value.Type())
	}
	if err := p.eng.WritePWMOutput(name, f); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (p *Program) raiseEmergency(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reason := "emergency"
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &reason); err != nil {
		return nil, err
	}
	p.emergency = fault.Emergency(reason)
	return nil, p.emergency
}

func (p *Program) log(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &msg); err != nil {
		return nil, err
	}
	p.logger.Info(msg, "script", p.filename, "cycle", p.eng.Cycle())
	return starlark.None, nil
}

func (p *Program) cycle(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return starlark.MakeInt64(p.eng.Cycle()), nil
}
