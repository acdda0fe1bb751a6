package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/testutil"
)

// scrape renders the collector registry in the text exposition format.
func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}).
		ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_CountsCycles(t *testing.T) {
	c := New()
	e := testutil.NewEngine(t, gpio.NewSimDriver(), &testutil.Alarms{}, c, testutil.StopAfter(4))

	valve, _, err := e.AddDigitalOutput("22", "valve", false)
	require.NoError(t, err)
	_, _, err = e.AddPWMOutput("18", "pump", gpio.DefaultPWMConfig())
	require.NoError(t, err)

	prog := engine.ProgramFuncs{ControlFunc: func() error {
		return valve.Activate()
	}}
	require.NoError(t, e.Run(context.Background(), prog))

	out := scrape(t, c)
	assert.Contains(t, out, "plc_cycles_total 4")
	assert.Contains(t, out, "plc_cycle_duration_seconds_count 4")
	assert.Contains(t, out, `plc_output_value{name="valve"} 1`)
	assert.Contains(t, out, `plc_output_value{name="pump"} 0`)
	assert.Contains(t, out, "plc_run_state 4")
	assert.NotContains(t, out, "plc_faults_total{")
}

func TestCollector_CountsFaultsByCode(t *testing.T) {
	tests := []struct {
		name    string
		control func() error
		setup   func(*gpio.SimDriver)
		want    string
	}{
		{
			name:    "emergency",
			control: func() error { return fault.Emergency("tank overflow") },
			want:    `plc_faults_total{code="EMERGENCY"} 1`,
		},
		{
			name:    "communication",
			control: func() error { return nil },
			setup: func(sim *gpio.SimDriver) {
				sim.FailRead("17", errors.New("bus error"))
			},
			want: `plc_faults_total{code="COMMUNICATION"} 1`,
		},
		{
			name:    "unhandled control error",
			control: func() error { return errors.New("boom") },
			want:    `plc_faults_total{code="UNHANDLED"} 1`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := gpio.NewSimDriver()
			c := New()
			e := testutil.NewEngine(t, sim, &testutil.Alarms{}, c)
			_, err := e.AddDigitalInput("17", "start", false)
			require.NoError(t, err)
			if tt.setup != nil {
				tt.setup(sim)
			}

			_ = e.Run(context.Background(), engine.ProgramFuncs{ControlFunc: tt.control})

			out := scrape(t, c)
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, "plc_cycles_total 0")
		})
	}
}

func TestCollector_PrivateRegistry(t *testing.T) {
	// Two collectors must not clash on registration.
	a, b := New(), New()
	assert.NotSame(t, a.Registry(), b.Registry())
}
