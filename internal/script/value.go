package script

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/roach88/plc/internal/memory"
	"github.com/roach88/plc/internal/registry"
)

// Var exposes a memory variable to scripts.
//
//	start = input("start")
//	if start.rising_edge:
//	    output("valve").activate()
type Var struct {
	kind registry.Kind
	name string
	v    *memory.Variable
}

var (
	_ starlark.Value    = (*Var)(nil)
	_ starlark.HasAttrs = (*Var)(nil)
)

func (x *Var) String() string {
	return fmt.Sprintf("%s(%q, %s)", x.kind, x.name, x.v.Current())
}

// Type implements starlark.Value.
func (x *Var) Type() string { return "variable" }

// Freeze implements starlark.Value. Variables stay writable: they are
// engine state, not script values.
func (x *Var) Freeze() {}

// Truth reports whether the variable is active.
func (x *Var) Truth() starlark.Bool { return starlark.Bool(x.v.Active()) }

// Hash implements starlark.Value.
func (x *Var) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: variable")
}

// Sorted, as starlark.HasAttrs requires.
var varAttrs = []string{
	"activate", "active", "deactivate", "falling_edge", "name",
	"previous", "rising_edge", "state", "update",
}

// AttrNames implements starlark.HasAttrs.
func (x *Var) AttrNames() []string {
	return append([]string(nil), varAttrs...)
}

// Attr implements starlark.HasAttrs.
func (x *Var) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(x.name), nil
	case "active":
		return starlark.Bool(x.v.Active()), nil
	case "rising_edge":
		edge, err := x.v.RisingEdge()
		if err != nil {
			return nil, err
		}
		return starlark.Bool(edge), nil
	case "falling_edge":
		edge, err := x.v.FallingEdge()
		if err != nil {
			return nil, err
		}
		return starlark.Bool(edge), nil
	case "state":
		return toStarlark(x.v.State()), nil
	case "previous":
		return toStarlark(x.v.Previous()), nil
	case "update":
		return starlark.NewBuiltin("update", x.update).BindReceiver(x), nil
	case "activate":
		return starlark.NewBuiltin("activate", x.activate).BindReceiver(x), nil
	case "deactivate":
		return starlark.NewBuiltin("deactivate", x.deactivate).BindReceiver(x), nil
	}
	return nil, nil
}

func (x *Var) update(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &value); err != nil {
		return nil, err
	}
	v, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	x.v.Update(v)
	return starlark.None, nil
}

func (x *Var) activate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := x.v.Activate(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (x *Var) deactivate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	if err := x.v.Deactivate(); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func toStarlark(v memory.Value) starlark.Value {
	switch v.Kind() {
	case memory.KindBool:
		return starlark.Bool(v.AsBool())
	case memory.KindFloat:
		return starlark.Float(v.AsFloat())
	default:
		return starlark.MakeInt64(v.AsInt())
	}
}

func fromStarlark(x starlark.Value) (memory.Value, error) {
	switch x := x.(type) {
	case starlark.Bool:
		return memory.Bool(bool(x)), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return memory.Value{}, fmt.Errorf("integer %s out of range", x)
		}
		return memory.Int(i), nil
	case starlark.Float:
		return memory.Float(float64(x)), nil
	default:
		return memory.Value{}, fmt.Errorf("got %s, want bool, int or float", x.Type())
	}
}
