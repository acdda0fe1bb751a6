package binding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/memory"
)

type constReader struct{ v memory.Value }

func (c constReader) Read() (memory.Value, error) { return c.v, nil }

type nopDevice struct{ last memory.Value }

func (d *nopDevice) Read() (memory.Value, error) { return d.last, nil }
func (d *nopDevice) Write(v memory.Value) error  { d.last = v; return nil }

func TestStatusName(t *testing.T) {
	assert.Equal(t, "valve_status", StatusName("valve"))
}

func TestTable_BindAndLookup(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.BindInput("start", constReader{memory.Bool(true)}))
	dev := &nopDevice{}
	require.NoError(t, tbl.BindOutput("valve", dev))

	r, err := tbl.Input("start")
	require.NoError(t, err)
	v, err := r.Read()
	require.NoError(t, err)
	assert.True(t, v.Truthy())

	d, err := tbl.Output("valve")
	require.NoError(t, err)
	assert.Same(t, dev, d)

	in, out := tbl.Len()
	assert.Equal(t, 1, in)
	assert.Equal(t, 1, out)
}

func TestTable_UnknownBinding(t *testing.T) {
	tbl := NewTable()

	_, err := tbl.Input("nope")
	assert.True(t, fault.IsConfigurationError(err))

	_, err = tbl.Output("nope")
	assert.True(t, fault.IsConfigurationError(err))
}

func TestTable_Duplicate(t *testing.T) {
	tbl := NewTable()
	require.NoError(t, tbl.BindOutput("valve", &nopDevice{}))

	err := tbl.BindOutput("valve", &nopDevice{})
	assert.True(t, fault.IsConfigurationError(err))
}

func TestTable_OrderedIteration(t *testing.T) {
	tbl := NewTable()
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, tbl.BindOutput(name, &nopDevice{}))
	}

	var names []string
	for name := range tbl.Outputs() {
		names = append(names, name)
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}
