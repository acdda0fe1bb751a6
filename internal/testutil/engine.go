// Package testutil provides engine helpers shared by package tests.
package testutil

import (
	"context"
	"sync"
	"testing"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
)

// RunID is the run identifier of every engine built by NewEngine.
const RunID = "run-1"

// StopAfter returns a hook requesting a stop once cycle n completed.
func StopAfter(n int64) engine.Hook {
	return engine.HookFunc(func(hc engine.HookCtx) {
		if hc.Pos == engine.HookPosAfterCycle && hc.Cycle >= n {
			hc.Engine.Stop()
		}
	})
}

// Alarms records terminations and operator notifications instead of exiting
// the process or sending mail.
//
// Thread-safety: all methods are safe for concurrent use.
type Alarms struct {
	mu           sync.Mutex
	terminations []string
	notes        []string
}

// Terminate implements engine.Terminator.
func (a *Alarms) Terminate(message string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.terminations = append(a.terminations, message)
}

// Notify implements engine.Notifier.
func (a *Alarms) Notify(_ context.Context, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notes = append(a.notes, message)
	return nil
}

// Terminations returns the messages passed to Terminate.
func (a *Alarms) Terminations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.terminations...)
}

// Notes returns the messages passed to Notify.
func (a *Alarms) Notes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.notes...)
}

// NewEngine builds an engine on sim with a silent logger, the fixed run ID
// RunID and alarms captured by a. Extra hooks run in the given order.
func NewEngine(t *testing.T, sim *gpio.SimDriver, a *Alarms, hooks ...engine.Hook) *engine.Engine {
	t.Helper()
	opts := []engine.Option{
		engine.WithLogger(logging.NewNop()),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(RunID)),
		engine.WithTerminator(a.Terminate),
		engine.WithNotifier(a),
	}
	for _, h := range hooks {
		opts = append(opts, engine.WithHook(h))
	}
	return engine.New(sim, opts...)
}
