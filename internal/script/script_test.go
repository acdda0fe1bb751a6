package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/memory"
)

func newEngine(t *testing.T, sim *gpio.SimDriver, opts ...engine.Option) *engine.Engine {
	t.Helper()
	base := []engine.Option{
		engine.WithLogger(logging.NewNop()),
		engine.WithRunIDGenerator(engine.NewFixedGenerator("run-1")),
		engine.WithTerminator(func(string) {}),
	}
	eng := engine.New(sim, append(base, opts...)...)

	_, err := eng.AddDigitalInput("17", "start", false)
	require.NoError(t, err)
	_, _, err = eng.AddDigitalOutput("22", "valve", false)
	require.NoError(t, err)
	_, _, err = eng.AddPWMOutput("18", "fan", gpio.DefaultPWMConfig())
	require.NoError(t, err)
	_, err = eng.AddStep("filling", memory.Int(0))
	require.NoError(t, err)
	return eng
}

func stopAfter(n int64) engine.Option {
	return engine.WithHook(engine.HookFunc(func(ctx engine.HookCtx) {
		if ctx.Pos == engine.HookPosAfterCycle && ctx.Cycle >= n {
			ctx.Engine.Stop()
		}
	}))
}

func TestLoadSource_RequiresControl(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())

	_, err := LoadSource("empty.star", []byte("x = 1\n"), eng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "control() is not defined")

	_, err = LoadSource("bad.star", []byte("control = 3\n"), eng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")

	_, err = LoadSource("syntax.star", []byte("def control(:\n"), eng)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load script")
}

func TestProgram_StartLatchesValve(t *testing.T) {
	sim := gpio.NewSimDriver()
	eng := newEngine(t, sim, stopAfter(3))
	sim.Set("17", true)

	src := `
def control():
    start = input("start")
    if start.rising_edge:
        output("valve").activate()
        step("filling").activate()
`
	prog, err := LoadSource("latch.star", []byte(src), eng)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), prog))
	assert.True(t, sim.Level("22"))

	filling, err := eng.Step("filling")
	require.NoError(t, err)
	assert.True(t, filling.Active())
}

func TestProgram_EmergencyBuiltin(t *testing.T) {
	sim := gpio.NewSimDriver()
	eng := newEngine(t, sim)

	src := `
def control():
    output("valve").activate()
    if cycle() == 3:
        emergency("overpressure")

def on_exit():
    fail("on_exit must not run")

def on_emergency():
    output("valve").deactivate()
`
	prog, err := LoadSource("em.star", []byte(src), eng)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), prog))
	assert.Equal(t, int64(3), eng.Cycle())
	assert.Equal(t, engine.OutcomeEmergency, eng.Outcome())
	require.True(t, fault.IsEmergency(eng.Emergency()))
	assert.Contains(t, eng.Emergency().Error(), "overpressure")
	assert.False(t, sim.Level("22"), "emergency routine output flushed")
}

func TestProgram_ExitRoutine(t *testing.T) {
	sim := gpio.NewSimDriver()
	eng := newEngine(t, sim, stopAfter(1))

	src := `
def control():
    output("valve").update(1)
    output("fan").update(0.5)

def on_exit():
    output("valve").deactivate()
    output("fan").update(0)
`
	prog, err := LoadSource("exit.star", []byte(src), eng)
	require.NoError(t, err)

	require.NoError(t, eng.Run(context.Background(), prog))
	assert.False(t, sim.Level("22"))
	assert.InDelta(t, 1.0, sim.Pulse("18"), 1e-9)
	assert.Equal(t, engine.OutcomeStopped, eng.Outcome())
}

func TestProgram_VariableAttributes(t *testing.T) {
	sim := gpio.NewSimDriver()
	eng := newEngine(t, sim, stopAfter(1))
	sim.Set("17", true)

	src := `
def control():
    s = input("start")
    if not s.active or not s.rising_edge or s.falling_edge:
        fail("unexpected edges")
    if s.state != 1 or s.previous != 0 or s.name != "start":
        fail("unexpected state")
    if not s:
        fail("truth")
    fan = output("fan")
    fan.update(0.25)
    if fan.state != 0.25:
        fail("fan state")
`
	prog, err := LoadSource("attrs.star", []byte(src), eng)
	require.NoError(t, err)
	require.NoError(t, eng.Run(context.Background(), prog))
}

func TestProgram_TypeMismatchPropagates(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())

	src := `
def control():
    output("fan").activate()
`
	prog, err := LoadSource("mismatch.star", []byte(src), eng)
	require.NoError(t, err)

	err = eng.Run(context.Background(), prog)
	require.Error(t, err)
	assert.True(t, fault.IsTypeMismatch(err))
	assert.Equal(t, engine.OutcomeControlError, eng.Outcome())
}

func TestProgram_UnknownNameIsConfigurationError(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())

	prog, err := LoadSource("unknown.star", []byte("def control():\n    input(\"nope\")\n"), eng)
	require.NoError(t, err)

	err = prog.Control()
	require.Error(t, err)
	assert.True(t, fault.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "control")
}

func TestProgram_DirectAccess(t *testing.T) {
	sim := gpio.NewSimDriver()
	eng := newEngine(t, sim)
	sim.Set("17", true)

	src := `
def control():
    if read_digital_input("start"):
        write_digital_output("valve", True)
        write_pwm_output("fan", 1)
`
	prog, err := LoadSource("direct.star", []byte(src), eng)
	require.NoError(t, err)

	require.NoError(t, prog.Control())
	assert.True(t, sim.Level("22"))
	assert.InDelta(t, 2.0, sim.Pulse("18"), 1e-9)
}

func TestProgram_MaxSteps(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())

	src := `
def control():
    while True:
        pass
`
	prog, err := LoadSource("loop.star", []byte(src), eng, WithMaxSteps(1000))
	require.NoError(t, err)

	err = prog.Control()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestProgram_OptionalCallbacks(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())

	prog, err := LoadSource("min.star", []byte("def control():\n    pass\n"), eng)
	require.NoError(t, err)
	assert.NoError(t, prog.OnExit())
	assert.NoError(t, prog.OnEmergency())
}

func TestLoad_File(t *testing.T) {
	eng := newEngine(t, gpio.NewSimDriver())
	path := filepath.Join(t.TempDir(), "prog.star")
	require.NoError(t, os.WriteFile(path, []byte("def control():\n    log(\"tick\")\n"), 0o644))

	prog, err := Load(path, eng)
	require.NoError(t, err)
	assert.NoError(t, prog.Control())

	_, err = Load(filepath.Join(t.TempDir(), "missing.star"), eng)
	require.Error(t, err)
}
