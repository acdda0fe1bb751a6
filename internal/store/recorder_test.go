package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/gpio"
	"github.com/roach88/plc/internal/logging"
	"github.com/roach88/plc/internal/testutil"
)

func TestRecorder_StoppedRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sim := gpio.NewSimDriver()
	rec := NewRecorder(s, "tank", logging.NewNop())
	e := testutil.NewEngine(t, sim, &testutil.Alarms{}, rec, testutil.StopAfter(3))

	valve, _, err := e.AddDigitalOutput("22", "valve", false)
	if err != nil {
		t.Fatalf("AddDigitalOutput() failed: %v", err)
	}
	prog := engine.ProgramFuncs{ControlFunc: func() error {
		if e.Cycle() == 2 {
			return valve.Activate()
		}
		return nil
	}}

	if err := e.Run(ctx, prog); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if err := rec.Err(); err != nil {
		t.Fatalf("recorder error: %v", err)
	}

	run, err := s.ReadRun(ctx, testutil.RunID)
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Outcome != "stopped" || run.LastCycle != 3 || run.Application != "tank" {
		t.Errorf("run = %+v", run)
	}

	cycles, err := s.ReadCycles(ctx, testutil.RunID)
	if err != nil {
		t.Fatalf("ReadCycles() failed: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("stored %d cycles, want 3", len(cycles))
	}
	if !strings.HasPrefix(cycles[1].Snapshot, `{"cycle":2,`) {
		t.Errorf("cycles[1].Snapshot = %s", cycles[1].Snapshot)
	}
	if !strings.Contains(cycles[1].Snapshot, `"valve":{"falling":false,"rising":true,"state":1}`) {
		t.Errorf("cycles[1].Snapshot = %s, want a rising valve", cycles[1].Snapshot)
	}

	events, err := s.ReadEvents(ctx, testutil.RunID)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventStop || events[0].Seq != 3 {
		t.Errorf("events = %+v", events)
	}
}

func TestRecorder_EmergencyRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sim := gpio.NewSimDriver()
	rec := NewRecorder(s, "tank", logging.NewNop())
	e := testutil.NewEngine(t, sim, &testutil.Alarms{}, rec)

	prog := engine.ProgramFuncs{ControlFunc: func() error {
		if e.Cycle() == 2 {
			return fault.Emergency("level high")
		}
		return nil
	}}
	if err := e.Run(ctx, prog); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, testutil.RunID)
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Outcome != "emergency" || run.LastCycle != 2 {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(run.Detail, "level high") {
		t.Errorf("run.Detail = %q", run.Detail)
	}

	cycles, _ := s.ReadCycles(ctx, testutil.RunID)
	if len(cycles) != 2 {
		t.Errorf("stored %d cycles, want 2 (the emergency cycle included)", len(cycles))
	}

	events, _ := s.ReadEvents(ctx, testutil.RunID)
	if len(events) != 1 || events[0].Kind != EventEmergency {
		t.Errorf("events = %+v", events)
	}
}

func TestRecorder_CommunicationFailure(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sim := gpio.NewSimDriver()
	rec := NewRecorder(s, "tank", logging.NewNop())
	e := testutil.NewEngine(t, sim, &testutil.Alarms{}, rec)

	if _, err := e.AddDigitalInput("17", "start", false); err != nil {
		t.Fatalf("AddDigitalInput() failed: %v", err)
	}
	sim.FailRead("17", errors.New("bus error"))

	if err := e.Run(ctx, engine.ProgramFuncs{}); !fault.IsCommunicationError(err) {
		t.Fatalf("Run() error = %v, want communication error", err)
	}

	run, err := s.ReadRun(ctx, testutil.RunID)
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Outcome != "communication_failure" || run.LastCycle != 1 {
		t.Errorf("run = %+v", run)
	}
	if !strings.Contains(run.Detail, "bus error") {
		t.Errorf("run.Detail = %q", run.Detail)
	}

	cycles, _ := s.ReadCycles(ctx, testutil.RunID)
	if len(cycles) != 0 {
		t.Errorf("stored %d cycles for a failed first cycle", len(cycles))
	}
	events, _ := s.ReadEvents(ctx, testutil.RunID)
	if len(events) != 1 || events[0].Kind != EventFault {
		t.Errorf("events = %+v", events)
	}
}

func TestRecorder_KeepsFirstWriteError(t *testing.T) {
	s := createTestStore(t)
	rec := NewRecorder(s, "tank", logging.NewNop())
	e := testutil.NewEngine(t, gpio.NewSimDriver(), &testutil.Alarms{}, rec, testutil.StopAfter(1))

	// No run row can be written once the store is closed.
	s.Close()

	if err := e.Run(context.Background(), engine.ProgramFuncs{}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	err := rec.Err()
	if err == nil {
		t.Fatal("Err() = nil after writes to a closed store")
	}
	if !strings.Contains(err.Error(), "write run") {
		t.Errorf("Err() = %v, want the first failure (write run)", err)
	}
}
