// Package memory implements the dual-state memory variables of the PLC.
//
// A Variable holds its value in the current scan cycle and remembers the
// value it had before the most recent Update, which is what edge detection
// compares against. Variables are owned by the engine goroutine; they are
// not safe for concurrent use.
package memory

import (
	"github.com/roach88/plc/internal/fault"
)

// DefaultPrecision is the number of decimals State rounds floats to.
const DefaultPrecision = 3

// Variable is a single-slot value holder with a memory of its previous state.
//
// INVARIANTS:
//   - previous is only written by Update (Activate/Deactivate go through it)
//   - bit operations require a single-bit variable
type Variable struct {
	current   Value
	previous  Value
	singleBit bool
	precision int
}

// Option configures a Variable at construction.
type Option func(*Variable)

// WithSingleBit sets whether the variable is treated as a single bit.
// Default: true.
func WithSingleBit(singleBit bool) Option {
	return func(v *Variable) {
		v.singleBit = singleBit
	}
}

// WithPrecision sets the decimal precision used by State for float payloads.
// Default: 3 (DefaultPrecision).
func WithPrecision(decimals int) Option {
	return func(v *Variable) {
		v.precision = decimals
	}
}

// New creates a variable whose current and previous values are both init.
func New(init Value, opts ...Option) *Variable {
	v := &Variable{
		current:   init,
		previous:  init,
		singleBit: true,
		precision: DefaultPrecision,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Update stores the current value as previous, then sets current to value.
// Must be called once per scan phase even when the value does not change,
// otherwise an edge would be reported for more than one cycle.
func (v *Variable) Update(value Value) {
	v.previous = v.current
	v.current = value
}

// Activate sets the variable to 1. Only valid for single-bit variables.
func (v *Variable) Activate() error {
	if !v.singleBit {
		return errNotSingleBit("activate")
	}
	v.Update(Int(1))
	return nil
}

// Deactivate sets the variable to 0. Only valid for single-bit variables.
func (v *Variable) Deactivate() error {
	if !v.singleBit {
		return errNotSingleBit("deactivate")
	}
	v.Update(Int(0))
	return nil
}

// Active reports whether the current value is truthy.
func (v *Variable) Active() bool {
	return v.current.Truthy()
}

// RisingEdge reports a transition from falsy to truthy across the last Update.
func (v *Variable) RisingEdge() (bool, error) {
	if !v.singleBit {
		return false, errNotSingleBit("rising edge")
	}
	return v.current.Truthy() && !v.previous.Truthy(), nil
}

// FallingEdge reports a transition from truthy to falsy across the last Update.
func (v *Variable) FallingEdge() (bool, error) {
	if !v.singleBit {
		return false, errNotSingleBit("falling edge")
	}
	return v.previous.Truthy() && !v.current.Truthy(), nil
}

// State returns the current value, rounded to the variable's precision when
// it is a float.
func (v *Variable) State() Value {
	return v.current.Round(v.precision)
}

// Current returns the raw current value.
func (v *Variable) Current() Value {
	return v.current
}

// Previous returns the value current held before the last Update.
func (v *Variable) Previous() Value {
	return v.previous
}

// SingleBit reports whether bit operations are allowed.
func (v *Variable) SingleBit() bool {
	return v.singleBit
}

// Precision returns the decimal precision used by State.
func (v *Variable) Precision() int {
	return v.precision
}

func errNotSingleBit(op string) error {
	return fault.TypeMismatch("%s: memory variable is not single bit", op)
}
