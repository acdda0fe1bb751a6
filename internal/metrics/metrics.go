// Package metrics exports scan-loop metrics to Prometheus.
//
// Collectors are registered on a private registry so several engines (and
// tests) never collide on the global default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/registry"
)

// codeUnhandled labels faults that carry no fault code (an arbitrary error
// returned by control logic).
const codeUnhandled = "UNHANDLED"

// Collector is an engine hook that updates Prometheus collectors.
type Collector struct {
	reg *prometheus.Registry

	cycles   prometheus.Counter
	duration prometheus.Histogram
	faults   *prometheus.CounterVec
	outputs  *prometheus.GaugeVec
	state    prometheus.Gauge
}

var _ engine.Hook = (*Collector)(nil)

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "plc_cycles_total",
			Help: "Total number of completed scan cycles",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "plc_cycle_duration_seconds",
			Help:    "Time spent in the read, control and write phases of a cycle",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		faults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plc_faults_total",
				Help: "Runs ended by an emergency or a failure, by fault code",
			},
			[]string{"code"},
		),
		outputs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "plc_output_value",
				Help: "Value of each output variable after the last cycle",
			},
			[]string{"name"},
		),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plc_run_state",
			Help: "Engine run state (0 configuring, 1 running, 2 stop requested, 3 emergency, 4 stopped)",
		}),
	}
	c.reg.MustRegister(c.cycles, c.duration, c.faults, c.outputs, c.state)
	return c
}

// Registry returns the registry holding the collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

// Func implements engine.Hook.
func (c *Collector) Func(hc engine.HookCtx) {
	switch hc.Pos {
	case engine.HookPosAfterCycle:
		c.cycles.Inc()
		c.duration.Observe(hc.Duration.Seconds())
		c.observeOutputs(hc.Engine)

	case engine.HookPosEmergency:
		c.faults.WithLabelValues(string(fault.CodeEmergency)).Inc()
		c.observeOutputs(hc.Engine)

	case engine.HookPosFault:
		code := string(fault.CodeOf(hc.Err))
		if code == "" {
			code = codeUnhandled
		}
		c.faults.WithLabelValues(code).Inc()

	case engine.HookPosStop:
		c.observeOutputs(hc.Engine)
	}
	c.state.Set(float64(hc.Engine.State()))
}

func (c *Collector) observeOutputs(e *engine.Engine) {
	for _, v := range e.Snapshot().Vars {
		if v.Registry != registry.KindOutput {
			continue
		}
		c.outputs.WithLabelValues(v.Name).Set(v.State().AsFloat())
	}
}
