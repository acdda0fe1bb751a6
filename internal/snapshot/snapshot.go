// Package snapshot captures the registries of a running PLC at the end of a
// scan cycle and renders them as canonical JSON.
//
// Snapshots are plain values: once taken they share nothing with the
// engine, so they can be handed to other goroutines (monitor, store).
package snapshot

import (
	"github.com/roach88/plc/internal/memory"
	"github.com/roach88/plc/internal/registry"
)

// Var is the captured state of one memory variable.
type Var struct {
	Registry  registry.Kind
	Name      string
	Current   memory.Value
	Previous  memory.Value
	SingleBit bool
	Precision int
}

// Capture copies a variable.
func Capture(kind registry.Kind, name string, v *memory.Variable) Var {
	return Var{
		Registry:  kind,
		Name:      name,
		Current:   v.Current(),
		Previous:  v.Previous(),
		SingleBit: v.SingleBit(),
		Precision: v.Precision(),
	}
}

// State returns the current value rounded to the variable precision.
func (v Var) State() memory.Value {
	return v.Current.Round(v.Precision)
}

// Rising reports a rising edge. Always false for non-bit variables.
func (v Var) Rising() bool {
	return v.SingleBit && v.Current.Truthy() && !v.Previous.Truthy()
}

// Falling reports a falling edge. Always false for non-bit variables.
func (v Var) Falling() bool {
	return v.SingleBit && v.Previous.Truthy() && !v.Current.Truthy()
}

// Snapshot is the state of every registry after one scan cycle.
type Snapshot struct {
	RunID string
	Cycle int64
	Vars  []Var
}

// Get returns the captured variable of the given registry and name.
func (s Snapshot) Get(kind registry.Kind, name string) (Var, bool) {
	for _, v := range s.Vars {
		if v.Registry == kind && v.Name == name {
			return v, true
		}
	}
	return Var{}, false
}

// Map renders the snapshot as nested maps:
//
//	{"cycle": 3, "inputs": {"start": {"state": 1, "rising": true, ...}}, ...}
//
// Edge flags are only present for single-bit variables. The run ID is not
// included so that traces of different runs compare equal.
func (s Snapshot) Map() map[string]any {
	groups := map[string]any{}
	for _, v := range s.Vars {
		key := groupKey(v.Registry)
		group, ok := groups[key].(map[string]any)
		if !ok {
			group = map[string]any{}
			groups[key] = group
		}
		entry := map[string]any{
			"state": v.State().Any(),
		}
		if v.SingleBit {
			entry["rising"] = v.Rising()
			entry["falling"] = v.Falling()
		}
		group[v.Name] = entry
	}
	groups["cycle"] = s.Cycle
	return groups
}

// Canonical returns the canonical JSON encoding of Map.
func (s Snapshot) Canonical() ([]byte, error) {
	return MarshalCanonical(s.Map())
}

func groupKey(kind registry.Kind) string {
	return string(kind) + "s"
}
