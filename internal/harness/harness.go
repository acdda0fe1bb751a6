package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/plc/internal/compiler"
	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/script"
	"github.com/roach88/plc/internal/store"
)

// ErrInjected is the error returned by pins with an injected fault.
var ErrInjected = errors.New("injected fault")

// Harness holds the per-run state of a scenario.
type Harness struct {
	scenario *Scenario
	sim      *gpio.SimDriver
	store    *store.Store
	logger   *slog.Logger
	alarms   []string
}

// Option configures a scenario run.
type Option func(*Harness)

// WithLogger routes engine and script logs to logger. Default: discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario on a simulated pin bank and returns the result.
//
// Each scenario runs in a fresh in-memory trace store for isolation. The run
// ID is fixed and the trace is ordered by cycle number only, so the result
// is identical across runs.
//
// Execution flow:
//  1. Load the application and register it on a new engine
//  2. Load the control script
//  3. Run cycles, applying pin steps before each cycle
//  4. Read the trace back from the store
//  5. Evaluate expectations
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		scenario: scenario,
		sim:      gpio.NewSimDriver(),
		store:    st,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}

	app, err := compiler.LoadApplication(scenario.Application)
	if err != nil {
		return nil, fmt.Errorf("failed to load application: %w", err)
	}

	runID := scenario.RunID
	if runID == "" {
		runID = DefaultRunID
	}
	rec := store.NewRecorder(st, app.Name, h.logger)
	eng := engine.New(h.sim,
		engine.WithLogger(h.logger),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
		engine.WithNotifier(h),
		engine.WithTerminator(func(string) {}),
		engine.WithHook(engine.HookFunc(h.applyPins)),
		engine.WithHook(rec),
		engine.WithHook(engine.HookFunc(h.stopWhenDone)),
	)
	if err := app.Apply(eng); err != nil {
		return nil, fmt.Errorf("failed to configure engine: %w", err)
	}

	prog, err := script.Load(scenario.Program, eng, script.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load program: %w", err)
	}

	ctx := context.Background()
	runErr := eng.Run(ctx, prog)
	h.logger.Debug("scenario run ended", "scenario", scenario.Name, "outcome", eng.Outcome(), "err", runErr)
	if err := rec.Err(); err != nil {
		return nil, fmt.Errorf("failed to record trace: %w", err)
	}

	result := NewResult()
	result.Outcome = string(eng.Outcome())
	result.Cycles = eng.Cycle()
	result.Notifications = h.alarms
	if err := h.readTrace(ctx, runID, result); err != nil {
		return nil, err
	}

	for _, msg := range Evaluate(scenario, result, h.sim) {
		result.AddError(msg)
	}
	return result, nil
}

// Notify implements engine.Notifier.
func (h *Harness) Notify(_ context.Context, message string) error {
	h.alarms = append(h.alarms, message)
	return nil
}

// applyPins applies the pin steps of the cycle about to start.
func (h *Harness) applyPins(hc engine.HookCtx) {
	if hc.Pos != engine.HookPosBeforeCycle {
		return
	}
	for _, step := range h.scenario.Pins {
		if step.Cycle != hc.Cycle {
			continue
		}
		for _, pin := range step.Clear {
			h.sim.FailRead(pin, nil)
			h.sim.FailWrite(pin, nil)
		}
		for _, pin := range sortedPins(step.Set) {
			h.sim.Set(pin, step.Set[pin])
		}
		for _, pin := range step.FailRead {
			h.sim.FailRead(pin, fmt.Errorf("read pin %s: %w", pin, ErrInjected))
		}
		for _, pin := range step.FailWrite {
			h.sim.FailWrite(pin, fmt.Errorf("write pin %s: %w", pin, ErrInjected))
		}
	}
}

// stopWhenDone requests a stop after StopAfter (or MaxCycles) cycles.
func (h *Harness) stopWhenDone(hc engine.HookCtx) {
	if hc.Pos != engine.HookPosAfterCycle {
		return
	}
	limit := h.scenario.StopAfter
	if limit == 0 {
		limit = MaxCycles
	}
	if hc.Cycle >= limit {
		hc.Engine.Stop()
	}
}

// readTrace merges recorded cycles and events by seq. At equal seq the cycle
// comes first.
func (h *Harness) readTrace(ctx context.Context, runID string, result *Result) error {
	cycles, err := h.store.ReadCycles(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read cycles: %w", err)
	}
	events, err := h.store.ReadEvents(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}

	for _, c := range cycles {
		snap, err := decodeSnapshot(c.Snapshot)
		if err != nil {
			return fmt.Errorf("cycle %d: %w", c.Seq, err)
		}
		result.Trace = append(result.Trace, TraceEvent{Seq: c.Seq, Kind: KindCycle, Snapshot: snap})
	}
	for _, e := range events {
		result.Trace = append(result.Trace, TraceEvent{Seq: e.Seq, Kind: e.Kind, Message: e.Message})
	}
	sort.SliceStable(result.Trace, func(i, j int) bool {
		return result.Trace[i].Seq < result.Trace[j].Seq
	})
	return nil
}

// decodeSnapshot parses a stored snapshot, keeping integers as int64 so it
// re-encodes to the same canonical JSON.
func decodeSnapshot(data string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	out, err := convertNumbers(m)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func convertNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			return val.Int64()
		}
		return val.Float64()
	case map[string]any:
		for k, elem := range val {
			c, err := convertNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			val[k] = c
		}
		return val, nil
	case []any:
		for i, elem := range val {
			c, err := convertNumbers(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			val[i] = c
		}
		return val, nil
	default:
		return v, nil
	}
}

func sortedPins(m map[string]bool) []string {
	pins := make([]string, 0, len(m))
	for pin := range m {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	return pins
}
