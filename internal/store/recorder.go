package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/plc/internal/engine"
)

// Event kinds written by Recorder.
const (
	EventStop      = "stop"
	EventEmergency = "emergency"
	EventFault     = "fault"
)

// Recorder is an engine hook that persists a run trace: the run row at
// RunStart, one cycle row per AfterCycle and an event plus the final run
// outcome at Stop, Emergency and Fault.
//
// Write errors never stop the engine. They are logged, and the first one is
// kept for Err.
type Recorder struct {
	store       *Store
	application string
	logger      *slog.Logger

	mu  sync.Mutex
	err error
}

var _ engine.Hook = (*Recorder)(nil)

// NewRecorder creates a recorder writing to s.
func NewRecorder(s *Store, application string, logger *slog.Logger) *Recorder {
	return &Recorder{store: s, application: application, logger: logger}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Func implements engine.Hook.
func (r *Recorder) Func(hc engine.HookCtx) {
	ctx := context.Background()
	runID := hc.Engine.RunID()

	switch hc.Pos {
	case engine.HookPosRunStart:
		r.check(r.store.WriteRun(ctx, Run{ID: runID, Application: r.application}))

	case engine.HookPosAfterCycle:
		r.writeSnapshot(ctx, hc, runID)

	case engine.HookPosStop:
		r.finish(ctx, hc, runID, EventStop, "")

	case engine.HookPosEmergency:
		// The emergency cycle never reaches AfterCycle; its row holds the
		// registries after the emergency routine.
		r.writeSnapshot(ctx, hc, runID)
		r.finish(ctx, hc, runID, EventEmergency, errString(hc.Err))

	case engine.HookPosFault:
		r.finish(ctx, hc, runID, EventFault, errString(hc.Err))
	}
}

// writeSnapshot stores the registries at hook time as the row of the
// current cycle.
func (r *Recorder) writeSnapshot(ctx context.Context, hc engine.HookCtx, runID string) {
	if hc.Cycle == 0 {
		return
	}
	data, err := hc.Engine.Snapshot().Canonical()
	if err != nil {
		r.check(err)
		return
	}
	r.check(r.store.WriteCycle(ctx, Cycle{
		RunID:    runID,
		Seq:      hc.Cycle,
		Snapshot: string(data),
		Duration: hc.Duration,
	}))
}

func (r *Recorder) finish(ctx context.Context, hc engine.HookCtx, runID, kind, message string) {
	r.check(r.store.WriteEvent(ctx, Event{
		RunID:   runID,
		Seq:     hc.Cycle,
		Kind:    kind,
		Message: message,
	}))
	r.check(r.store.FinishRun(ctx, runID, string(hc.Engine.Outcome()), hc.Cycle, message))
}

func (r *Recorder) check(err error) {
	if err == nil {
		return
	}
	r.logger.Warn("trace write failed", "err", err)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
