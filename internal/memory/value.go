package memory

import (
	"fmt"
	"math"
	"strconv"
)

// Kind is the discriminant of a Value.
type Kind uint8

const (
	// KindBool is a boolean payload.
	KindBool Kind = iota
	// KindInt is an integer payload. Single-bit variables hold 0 or 1.
	KindInt
	// KindFloat is a floating-point payload (PWM duty values, analog readings).
	KindFloat
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged union over the payloads a memory variable can hold.
// The zero Value is Int(0).
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
}

// Bool creates a boolean Value.
func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// Int creates an integer Value.
func Int(i int64) Value {
	return Value{kind: KindInt, i: i}
}

// Float creates a floating-point Value.
func Float(f float64) Value {
	return Value{kind: KindFloat, f: f}
}

// Bit returns Int(1) for true and Int(0) for false.
func Bit(on bool) Value {
	if on {
		return Int(1)
	}
	return Int(0)
}

// Kind returns the discriminant.
func (v Value) Kind() Kind {
	return v.kind
}

// Truthy reports whether the value is non-zero / true.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindFloat:
		return v.f != 0
	default:
		return v.i != 0
	}
}

// AsBool returns the truthiness of the value.
func (v Value) AsBool() bool {
	return v.Truthy()
}

// AsInt converts the payload to an integer. Floats are truncated.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindBool:
		if v.b {
			return 1
		}
		return 0
	case KindFloat:
		return int64(v.f)
	default:
		return v.i
	}
}

// AsFloat converts the payload to a float.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindFloat:
		return v.f
	default:
		return float64(v.AsInt())
	}
}

// Equal reports whether both values have the same kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindFloat:
		return v.f == o.f
	default:
		return v.i == o.i
	}
}

// Round returns the value rounded to the given number of decimals when the
// payload is a float. Other kinds are returned unchanged.
func (v Value) Round(decimals int) Value {
	if v.kind != KindFloat || decimals < 0 {
		return v
	}
	if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
		return v
	}
	p := math.Pow10(decimals)
	return Float(math.Round(v.f*p) / p)
}

// Any returns the payload as a plain Go value (bool, int64 or float64).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindFloat:
		return v.f
	default:
		return v.i
	}
}

// String formats the payload.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return strconv.FormatInt(v.i, 10)
	}
}

// FromAny converts a decoded YAML/JSON scalar into a Value.
// Supported inputs are bool, the integer types, float32/float64 and Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Int(int64(t)), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Int(int64(t)), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", x)
	}
}
