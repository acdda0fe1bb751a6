package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new temp-dir store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&count); err != nil {
			t.Errorf("query failed: %v", err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	checks := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"busy_timeout": "5000",
		"foreign_keys": "1",
		"user_version": "1",
	}
	for name, want := range checks {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}
}

func TestOpen_RejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if _, err := s.db.Exec("PRAGMA user_version = 99"); err != nil {
		t.Fatalf("set user_version: %v", err)
	}
	s.Close()

	if _, err := Open(path); err == nil {
		t.Fatal("Open() accepted a newer schema version")
	}
}

func TestTrace_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.WriteRun(ctx, Run{ID: "run-1", Application: "tank"}); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}
	// Written out of order on purpose
	for _, seq := range []int64{2, 1, 3} {
		c := Cycle{RunID: "run-1", Seq: seq, Snapshot: fmt.Sprintf(`{"cycle":%d}`, seq), Duration: 1500 * time.Microsecond}
		if err := s.WriteCycle(ctx, c); err != nil {
			t.Fatalf("WriteCycle(%d) failed: %v", seq, err)
		}
	}
	if err := s.WriteEvent(ctx, Event{RunID: "run-1", Seq: 3, Kind: EventStop}); err != nil {
		t.Fatalf("WriteEvent() failed: %v", err)
	}
	if err := s.FinishRun(ctx, "run-1", "stopped", 3, ""); err != nil {
		t.Fatalf("FinishRun() failed: %v", err)
	}

	run, err := s.ReadRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadRun() failed: %v", err)
	}
	if run.Outcome != "stopped" || run.LastCycle != 3 || run.Application != "tank" {
		t.Errorf("ReadRun() = %+v", run)
	}

	cycles, err := s.ReadCycles(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadCycles() failed: %v", err)
	}
	if len(cycles) != 3 {
		t.Fatalf("ReadCycles() returned %d cycles, want 3", len(cycles))
	}
	for i, c := range cycles {
		if c.Seq != int64(i+1) {
			t.Errorf("cycles[%d].Seq = %d, want %d", i, c.Seq, i+1)
		}
		if c.Duration != 1500*time.Microsecond {
			t.Errorf("cycles[%d].Duration = %v", i, c.Duration)
		}
	}
	if cycles[0].Snapshot != `{"cycle":1}` {
		t.Errorf("cycles[0].Snapshot = %s", cycles[0].Snapshot)
	}

	events, err := s.ReadEvents(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != EventStop {
		t.Errorf("ReadEvents() = %+v", events)
	}
}

func TestTrace_WritesAreIdempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := s.WriteRun(ctx, Run{ID: "run-1", Application: "tank"}); err != nil {
			t.Fatalf("WriteRun() failed: %v", err)
		}
		if err := s.WriteCycle(ctx, Cycle{RunID: "run-1", Seq: 1, Snapshot: "{}"}); err != nil {
			t.Fatalf("WriteCycle() failed: %v", err)
		}
		if err := s.WriteEvent(ctx, Event{RunID: "run-1", Seq: 1, Kind: EventFault, Message: "x"}); err != nil {
			t.Fatalf("WriteEvent() failed: %v", err)
		}
	}

	runs, _ := s.ReadRuns(ctx)
	cycles, _ := s.ReadCycles(ctx, "run-1")
	events, _ := s.ReadEvents(ctx, "run-1")
	if len(runs) != 1 || len(cycles) != 1 || len(events) != 1 {
		t.Errorf("duplicates stored: runs=%d cycles=%d events=%d", len(runs), len(cycles), len(events))
	}
}

func TestTrace_ForeignKey(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteCycle(context.Background(), Cycle{RunID: "missing", Seq: 1, Snapshot: "{}"})
	if err == nil {
		t.Fatal("WriteCycle() accepted a cycle for an unknown run")
	}
}

func TestTrace_NotFound(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if _, err := s.ReadRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("ReadRun() error = %v, want ErrRunNotFound", err)
	}
	if err := s.FinishRun(ctx, "missing", "stopped", 0, ""); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun() error = %v, want ErrRunNotFound", err)
	}

	runs, err := s.ReadRuns(ctx)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	if runs == nil || len(runs) != 0 {
		t.Errorf("ReadRuns() = %#v, want empty slice", runs)
	}
}

func TestTrace_RunsSortByID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"0192-b", "0192-a", "0193-a"} {
		if err := s.WriteRun(ctx, Run{ID: id, Application: "tank"}); err != nil {
			t.Fatalf("WriteRun() failed: %v", err)
		}
	}
	runs, err := s.ReadRuns(ctx)
	if err != nil {
		t.Fatalf("ReadRuns() failed: %v", err)
	}
	want := []string{"0192-a", "0192-b", "0193-a"}
	for i, r := range runs {
		if r.ID != want[i] {
			t.Errorf("runs[%d].ID = %s, want %s", i, r.ID, want[i])
		}
	}
}
