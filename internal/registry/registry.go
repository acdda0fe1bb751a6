// Package registry holds the named memory variables of a PLC application.
//
// An application has three registries: inputs, outputs and step markers.
// Names are bound at configuration time and never change during a run.
// Iteration follows registration order so scans are deterministic.
package registry

import (
	"fmt"
	"iter"

	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/memory"
)

// Kind names what a registry holds. It only affects error messages and
// snapshots.
type Kind string

const (
	KindInput  Kind = "input"
	KindOutput Kind = "output"
	KindStep   Kind = "step"
)

// Registry maps unique names to memory variables.
//
// INVARIANTS:
//   - names are unique
//   - order never changes after registration
//   - no registration once sealed
type Registry struct {
	kind   Kind
	names  []string
	vars   map[string]*memory.Variable
	sealed bool
}

// New creates an empty registry of the given kind.
func New(kind Kind) *Registry {
	return &Registry{
		kind: kind,
		vars: make(map[string]*memory.Variable),
	}
}

// Kind returns the registry kind.
func (r *Registry) Kind() Kind {
	return r.kind
}

// Register binds name to v. Fails with a CONFIGURATION error when the name
// is empty, already taken, or the registry is sealed.
func (r *Registry) Register(name string, v *memory.Variable) error {
	if r.sealed {
		return fault.Configuration(name, "cannot register %s after the run loop started", r.kind)
	}
	if name == "" {
		return fault.Configuration(name, "%s name must not be empty", r.kind)
	}
	if _, exists := r.vars[name]; exists {
		return fault.Configuration(name, "duplicate %s", r.kind)
	}
	r.names = append(r.names, name)
	r.vars[name] = v
	return nil
}

// Get returns the variable registered under name, or a CONFIGURATION error.
func (r *Registry) Get(name string) (*memory.Variable, error) {
	v, ok := r.vars[name]
	if !ok {
		return nil, fault.Configuration(name, "unknown %s", r.kind)
	}
	return v, nil
}

// MustGet returns the variable registered under name.
//
// Panics if name is not registered. Only for names whose registration is
// guaranteed by construction (the engine's bound inputs and outputs).
func (r *Registry) MustGet(name string) *memory.Variable {
	v, ok := r.vars[name]
	if !ok {
		panic(fmt.Sprintf("registry: %s %q not registered", r.kind, name))
	}
	return v
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.vars[name]
	return ok
}

// Len returns the number of registered variables.
func (r *Registry) Len() int {
	return len(r.names)
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All iterates name/variable pairs in registration order.
func (r *Registry) All() iter.Seq2[string, *memory.Variable] {
	return func(yield func(string, *memory.Variable) bool) {
		for _, name := range r.names {
			if !yield(name, r.vars[name]) {
				return
			}
		}
	}
}

// Seal rejects any further registration.
func (r *Registry) Seal() {
	r.sealed = true
}

// Advance re-stamps every variable with its own current value, so edge
// queries made later in the cycle compare against this cycle's start.
func (r *Registry) Advance() {
	for _, name := range r.names {
		v := r.vars[name]
		v.Update(v.Current())
	}
}
