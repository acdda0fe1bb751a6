// Package binding maps registry names to the collaborators that own the
// physical state behind them.
//
// The engine uses the table to move data between the registries and the
// hardware: inputs are read in the input phase, outputs are read back into
// their `<name>_status` entry and written in the output phase.
package binding

import (
	"iter"

	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/memory"
)

// StatusSuffix is appended to an output name to form the input-registry
// entry that holds its read-back value.
const StatusSuffix = "_status"

// StatusName returns the read-back registry name for an output.
func StatusName(output string) string {
	return output + StatusSuffix
}

// Reader samples a physical input. Implementations return a COMMUNICATION
// error when the hardware cannot be read.
type Reader interface {
	Read() (memory.Value, error)
}

// Writer drives a physical output. Implementations return a COMMUNICATION
// error when the hardware cannot be written.
type Writer interface {
	Write(memory.Value) error
}

// Device is an output that can also be read back.
type Device interface {
	Reader
	Writer
}

// Table is the ordered set of input and output bindings.
//
// The table is filled at configuration time and only read afterwards.
type Table struct {
	inputNames  []string
	inputs      map[string]Reader
	outputNames []string
	outputs     map[string]Device
}

// NewTable creates an empty binding table.
func NewTable() *Table {
	return &Table{
		inputs:  make(map[string]Reader),
		outputs: make(map[string]Device),
	}
}

// BindInput binds a physical input to name.
func (t *Table) BindInput(name string, r Reader) error {
	if _, ok := t.inputs[name]; ok {
		return fault.Configuration(name, "duplicate input binding")
	}
	t.inputNames = append(t.inputNames, name)
	t.inputs[name] = r
	return nil
}

// BindOutput binds a physical output to name.
func (t *Table) BindOutput(name string, d Device) error {
	if _, ok := t.outputs[name]; ok {
		return fault.Configuration(name, "duplicate output binding")
	}
	t.outputNames = append(t.outputNames, name)
	t.outputs[name] = d
	return nil
}

// Input returns the reader bound to name, or a CONFIGURATION error.
func (t *Table) Input(name string) (Reader, error) {
	r, ok := t.inputs[name]
	if !ok {
		return nil, fault.Configuration(name, "unknown input binding")
	}
	return r, nil
}

// Output returns the device bound to name, or a CONFIGURATION error.
func (t *Table) Output(name string) (Device, error) {
	d, ok := t.outputs[name]
	if !ok {
		return nil, fault.Configuration(name, "unknown output binding")
	}
	return d, nil
}

// Inputs iterates input bindings in binding order.
func (t *Table) Inputs() iter.Seq2[string, Reader] {
	return func(yield func(string, Reader) bool) {
		for _, name := range t.inputNames {
			if !yield(name, t.inputs[name]) {
				return
			}
		}
	}
}

// Outputs iterates output bindings in binding order.
func (t *Table) Outputs() iter.Seq2[string, Device] {
	return func(yield func(string, Device) bool) {
		for _, name := range t.outputNames {
			if !yield(name, t.outputs[name]) {
				return
			}
		}
	}
}

// Len returns the number of input and output bindings.
func (t *Table) Len() (inputs, outputs int) {
	return len(t.inputNames), len(t.outputNames)
}
