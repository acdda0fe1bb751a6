package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plc/internal/fault"
)

func TestNew_Defaults(t *testing.T) {
	v := New(Int(0))

	assert.True(t, v.SingleBit())
	assert.Equal(t, DefaultPrecision, v.Precision())
	assert.True(t, v.Current().Equal(Int(0)))
	assert.True(t, v.Previous().Equal(Int(0)))
	assert.False(t, v.Active())
}

func TestNew_InitSetsBothStates(t *testing.T) {
	v := New(Int(1))

	assert.True(t, v.Current().Equal(Int(1)))
	assert.True(t, v.Previous().Equal(Int(1)))

	rising, err := v.RisingEdge()
	require.NoError(t, err)
	assert.False(t, rising, "no edge before any update")
}

func TestUpdate_ShiftsCurrentIntoPrevious(t *testing.T) {
	values := []Value{Int(1), Int(0), Bool(true), Float(0.5), Int(7)}

	v := New(Int(0), WithSingleBit(false))
	for _, next := range values {
		before := v.Current()
		v.Update(next)
		assert.True(t, v.Previous().Equal(before), "previous after Update(%v)", next)
		assert.True(t, v.Current().Equal(next), "current after Update(%v)", next)
	}
}

func TestEdges(t *testing.T) {
	tests := []struct {
		name    string
		from    Value
		to      Value
		rising  bool
		falling bool
	}{
		{"low to high", Int(0), Int(1), true, false},
		{"high to low", Int(1), Int(0), false, true},
		{"stay low", Int(0), Int(0), false, false},
		{"stay high", Int(1), Int(1), false, false},
		{"bool false to true", Bool(false), Bool(true), true, false},
		{"bool true to false", Bool(true), Bool(false), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.from)
			v.Update(tt.to)

			rising, err := v.RisingEdge()
			require.NoError(t, err)
			falling, err := v.FallingEdge()
			require.NoError(t, err)

			assert.Equal(t, tt.rising, rising)
			assert.Equal(t, tt.falling, falling)
		})
	}
}

func TestEdges_ClearedByRepeatedUpdate(t *testing.T) {
	v := New(Int(0))
	v.Update(Int(1))

	rising, err := v.RisingEdge()
	require.NoError(t, err)
	assert.True(t, rising)

	for i := 0; i < 3; i++ {
		v.Update(v.Current())

		rising, err = v.RisingEdge()
		require.NoError(t, err)
		falling, err := v.FallingEdge()
		require.NoError(t, err)
		assert.False(t, rising, "iteration %d", i)
		assert.False(t, falling, "iteration %d", i)
	}
}

func TestActivateDeactivate(t *testing.T) {
	v := New(Int(0))

	require.NoError(t, v.Activate())
	assert.True(t, v.Active())
	assert.True(t, v.Current().Equal(Int(1)))
	rising, _ := v.RisingEdge()
	assert.True(t, rising)

	require.NoError(t, v.Deactivate())
	assert.False(t, v.Active())
	assert.True(t, v.Current().Equal(Int(0)))
	falling, _ := v.FallingEdge()
	assert.True(t, falling)
}

func TestBitOperations_RejectNonBit(t *testing.T) {
	v := New(Float(0), WithSingleBit(false))

	ops := map[string]func() error{
		"activate":   v.Activate,
		"deactivate": v.Deactivate,
		"rising_edge": func() error {
			_, err := v.RisingEdge()
			return err
		},
		"falling_edge": func() error {
			_, err := v.FallingEdge()
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			require.Error(t, err)
			assert.True(t, fault.IsTypeMismatch(err))
		})
	}

	assert.True(t, v.Current().Equal(Float(0)), "rejected operations must not change state")
	assert.True(t, v.Previous().Equal(Float(0)))
}

func TestState_RoundsFloats(t *testing.T) {
	v := New(Float(0), WithSingleBit(false), WithPrecision(2))
	v.Update(Float(1.2345))

	assert.Equal(t, 1.23, v.State().AsFloat())
	assert.Equal(t, KindFloat, v.State().Kind())
	assert.Equal(t, 1.2345, v.Current().AsFloat(), "raw value is untouched")
}

func TestState_DefaultPrecision(t *testing.T) {
	v := New(Float(0.12345), WithSingleBit(false))

	assert.Equal(t, 0.123, v.State().AsFloat())
}

func TestState_NonFloatUnchanged(t *testing.T) {
	v := New(Int(42), WithSingleBit(false), WithPrecision(0))
	assert.True(t, v.State().Equal(Int(42)))

	b := New(Bool(true))
	assert.True(t, b.State().Equal(Bool(true)))
}

func TestState_ZeroPrecision(t *testing.T) {
	v := New(Float(0.6), WithSingleBit(false), WithPrecision(0))

	assert.Equal(t, 1.0, v.State().AsFloat())
}
