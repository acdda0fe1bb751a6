package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/plc/internal/binding"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/memory"
	"github.com/roach88/plc/internal/registry"
	"github.com/roach88/plc/internal/snapshot"
)

// Engine is the PLC scan engine.
//
// Thread-safety model:
//   - Add*(), Run(), accessors and hooks: engine goroutine only
//   - Stop(), State(), Cycle(), RunID(), LastSnapshot(), Outcome(): safe
//     from any goroutine
//
// INVARIANTS:
//   - Registry and binding order NEVER changes after registration
//   - Every output variable has a `<name>_status` entry in the input registry
//   - Registries are sealed once Run starts
type Engine struct {
	driver   gpio.Driver
	inputs   *registry.Registry
	outputs  *registry.Registry
	steps    *registry.Registry
	bindings *binding.Table

	clock     *Clock
	runIDGen  RunIDGenerator
	logger    *slog.Logger
	notifier  Notifier
	notifyTTL time.Duration
	terminate Terminator
	cycleTime time.Duration
	hooks     []Hook

	state         atomic.Int32
	stopRequested atomic.Bool
	stopCh        chan struct{}
	stopOnce      sync.Once

	mu        sync.Mutex // guards the fields below
	runID     string
	outcome   Outcome
	emergency error
	last      snapshot.Snapshot
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithNotifier sets the notifier alerted on communication failures.
// Default: none.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithNotifyTimeout bounds how long a communication failure waits for the
// notifier before terminating. Default: DefaultNotifyTimeout.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.notifyTTL = d
	}
}

// WithTerminator replaces the function that ends the process after a
// communication failure. Default: ExitTerminator.
func WithTerminator(t Terminator) Option {
	return func(e *Engine) {
		e.terminate = t
	}
}

// WithRunIDGenerator sets the run ID generator. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(e *Engine) {
		e.runIDGen = g
	}
}

// WithCycleTime sets a fixed cycle period. After each cycle the engine
// sleeps for the remainder of the period. Zero (the default) runs cycles
// back to back.
func WithCycleTime(d time.Duration) Option {
	return func(e *Engine) {
		e.cycleTime = d
	}
}

// WithHook registers a hook at construction time.
func WithHook(h Hook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, h)
	}
}

// New creates an engine driving the given GPIO driver.
func New(driver gpio.Driver, opts ...Option) *Engine {
	e := &Engine{
		driver:    driver,
		inputs:    registry.New(registry.KindInput),
		outputs:   registry.New(registry.KindOutput),
		steps:     registry.New(registry.KindStep),
		bindings:  binding.NewTable(),
		clock:     NewClock(),
		runIDGen:  UUIDv7Generator{},
		logger:    slog.Default(),
		notifyTTL: DefaultNotifyTimeout,
		terminate: ExitTerminator,
		stopCh:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// AddDigitalInput binds a digital input pin and registers its input
// variable. A normally-closed contact reads active when the pin is low and
// starts at 1, so an idle contact shows no edge on the first cycle.
func (e *Engine) AddDigitalInput(pin, name string, normallyClosed bool) (*memory.Variable, error) {
	if err := e.checkConfiguring(name); err != nil {
		return nil, err
	}
	if e.inputs.Has(name) {
		return nil, fault.Configuration(name, "input already registered")
	}

	in := gpio.NewDigitalInput(e.driver, pin, name, !normallyClosed)
	v := memory.New(memory.Bit(normallyClosed), memory.WithSingleBit(true))
	if err := e.bindings.BindInput(name, in); err != nil {
		return nil, err
	}
	if err := e.inputs.Register(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

// AddDigitalOutput binds a digital output pin, writes its initial value and
// registers the output variable and its read-back status input. The status
// starts at 0 until the first input phase reads the pin back.
func (e *Engine) AddDigitalOutput(pin, name string, init bool) (out, status *memory.Variable, err error) {
	if err := e.checkOutputName(name); err != nil {
		return nil, nil, err
	}

	dev, err := gpio.NewDigitalOutput(e.driver, pin, name, init)
	if err != nil {
		return nil, nil, err
	}
	out = memory.New(memory.Bit(init), memory.WithSingleBit(true))
	status = memory.New(memory.Int(0), memory.WithSingleBit(true))
	if err := e.bindOutput(name, dev, out, status); err != nil {
		return nil, nil, err
	}
	return out, status, nil
}

// AddPWMOutput binds a PWM output pin, writes its initial value and
// registers the output variable and its read-back status input.
func (e *Engine) AddPWMOutput(pin, name string, cfg gpio.PWMConfig) (out, status *memory.Variable, err error) {
	if err := e.checkOutputName(name); err != nil {
		return nil, nil, err
	}

	dev, err := gpio.NewPWMOutput(e.driver, pin, name, cfg)
	if err != nil {
		return nil, nil, err
	}
	out = memory.New(memory.Float(cfg.Init), memory.WithSingleBit(false))
	status = memory.New(memory.Float(0),
		memory.WithSingleBit(false),
		memory.WithPrecision(cfg.StatusPrecision),
	)
	if err := e.bindOutput(name, dev, out, status); err != nil {
		return nil, nil, err
	}
	return out, status, nil
}

// AddStep registers a single-bit internal step. init is a flag or a stage
// number; any non-zero value reads active.
func (e *Engine) AddStep(name string, init memory.Value) (*memory.Variable, error) {
	if err := e.checkConfiguring(name); err != nil {
		return nil, err
	}
	v := memory.New(init, memory.WithSingleBit(true))
	if err := e.steps.Register(name, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (e *Engine) checkConfiguring(name string) error {
	if e.State() != StateConfiguring {
		return fault.Configuration(name, "registration after the scan loop started")
	}
	return nil
}

func (e *Engine) checkOutputName(name string) error {
	if err := e.checkConfiguring(name); err != nil {
		return err
	}
	if e.outputs.Has(name) {
		return fault.Configuration(name, "output already registered")
	}
	if e.inputs.Has(binding.StatusName(name)) {
		return fault.Configuration(binding.StatusName(name), "input already registered")
	}
	return nil
}

func (e *Engine) bindOutput(name string, dev binding.Device, out, status *memory.Variable) error {
	if err := e.bindings.BindOutput(name, dev); err != nil {
		return err
	}
	if err := e.outputs.Register(name, out); err != nil {
		return err
	}
	return e.inputs.Register(binding.StatusName(name), status)
}

// Input returns the input variable with the given name, including the
// `<output>_status` read-back entries.
func (e *Engine) Input(name string) (*memory.Variable, error) {
	return e.inputs.Get(name)
}

// Output returns the output variable with the given name.
func (e *Engine) Output(name string) (*memory.Variable, error) {
	return e.outputs.Get(name)
}

// Step returns the step variable with the given name.
func (e *Engine) Step(name string) (*memory.Variable, error) {
	return e.steps.Get(name)
}

// ReadDigitalInput reads the input pin directly, bypassing the registry.
func (e *Engine) ReadDigitalInput(name string) (bool, error) {
	r, err := e.bindings.Input(name)
	if err != nil {
		return false, err
	}
	v, err := r.Read()
	if err != nil {
		return false, err
	}
	return v.Truthy(), nil
}

// WriteDigitalOutput writes the output pin directly, bypassing the registry.
// The next output phase overwrites the pin with the registry value.
func (e *Engine) WriteDigitalOutput(name string, value bool) error {
	d, err := e.bindings.Output(name)
	if err != nil {
		return err
	}
	return d.Write(memory.Bit(value))
}

// WritePWMOutput writes the PWM output directly, bypassing the registry.
func (e *Engine) WritePWMOutput(name string, value float64) error {
	d, err := e.bindings.Output(name)
	if err != nil {
		return err
	}
	return d.Write(memory.Float(value))
}

// Stop requests the scan loop to end. The cycle in progress completes; the
// exit routine runs at the next cycle boundary. Safe from any goroutine.
func (e *Engine) Stop() {
	e.stopRequested.Store(true)
	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopRequested))
	e.stopOnce.Do(func() { close(e.stopCh) })
}

// State returns the current run state.
func (e *Engine) State() RunState {
	return RunState(e.state.Load())
}

// Cycle returns the number of the current (or last) cycle. 0 before Run.
func (e *Engine) Cycle() int64 {
	return e.clock.Current()
}

// RunID returns the identifier of the current run, or "" before Run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// Outcome returns how the run ended, or OutcomeNone while it is running.
func (e *Engine) Outcome() Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Emergency returns the emergency error that ended the run, if any.
func (e *Engine) Emergency() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.emergency
}

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Snapshot captures every registry now. Engine goroutine only (hooks,
// control logic).
func (e *Engine) Snapshot() snapshot.Snapshot {
	s := snapshot.Snapshot{
		RunID: e.RunID(),
		Cycle: e.clock.Current(),
		Vars:  make([]snapshot.Var, 0, e.inputs.Len()+e.outputs.Len()+e.steps.Len()),
	}
	for _, r := range []*registry.Registry{e.inputs, e.outputs, e.steps} {
		for name, v := range r.All() {
			s.Vars = append(s.Vars, snapshot.Capture(r.Kind(), name, v))
		}
	}
	return s
}

// LastSnapshot returns the snapshot published after the last completed
// cycle. Safe from any goroutine.
func (e *Engine) LastSnapshot() snapshot.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) publish() {
	s := e.Snapshot()
	e.mu.Lock()
	e.last = s
	e.mu.Unlock()
}

func (e *Engine) finish(outcome Outcome, emergency error) {
	e.mu.Lock()
	e.outcome = outcome
	e.emergency = emergency
	e.mu.Unlock()
	e.state.Store(int32(StateStopped))
}

// stopping reports whether the loop should end at this cycle boundary.
func (e *Engine) stopping(ctx context.Context) bool {
	return e.stopRequested.Load() || ctx.Err() != nil
}
