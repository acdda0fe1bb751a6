package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrRunNotFound is returned by ReadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one engine run.
type Run struct {
	ID          string `json:"id"`
	Application string `json:"application"`
	Outcome     string `json:"outcome"`
	LastCycle   int64  `json:"last_cycle"`
	Detail      string `json:"detail,omitempty"`
}

// Cycle is the snapshot of one completed scan cycle.
type Cycle struct {
	RunID    string        `json:"run_id"`
	Seq      int64         `json:"seq"`
	Snapshot string        `json:"snapshot"`
	Duration time.Duration `json:"duration"`
}

// Event is a lifecycle event of a run.
type Event struct {
	RunID   string `json:"run_id"`
	Seq     int64  `json:"seq"`
	Kind    string `json:"kind"`
	Message string `json:"message,omitempty"`
}

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) WriteRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, application, outcome, last_cycle, detail)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.Application, run.Outcome, run.LastCycle, run.Detail)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun records how a run ended.
func (s *Store) FinishRun(ctx context.Context, id, outcome string, lastCycle int64, detail string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET outcome = ?, last_cycle = ?, detail = ?
		WHERE id = ?
	`, outcome, lastCycle, detail, id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// WriteCycle inserts a cycle snapshot.
// Uses ON CONFLICT DO NOTHING for idempotency.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) WriteCycle(ctx context.Context, c Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (run_id, seq, snapshot, duration_us)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, c.RunID, c.Seq, c.Snapshot, c.Duration.Microseconds())
	if err != nil {
		return fmt.Errorf("write cycle: %w", err)
	}
	return nil
}

// WriteEvent inserts a lifecycle event.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) WriteEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (run_id, seq, kind, message)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, e.RunID, e.Seq, e.Kind, e.Message)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// ReadRuns returns every run. UUIDv7 IDs sort by start time.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, application, outcome, last_cycle, detail
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Application, &r.Outcome, &r.LastCycle, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run, or ErrRunNotFound.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, application, outcome, last_cycle, detail
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.Application, &r.Outcome, &r.LastCycle, &r.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// ReadCycles returns the cycles of a run ordered by seq.
//
// Returns an empty slice (not nil) if the run has no cycles.
func (s *Store) ReadCycles(ctx context.Context, runID string) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, snapshot, duration_us
		FROM cycles
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	cycles := []Cycle{}
	for rows.Next() {
		var c Cycle
		var us int64
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Snapshot, &us); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.Duration = time.Duration(us) * time.Microsecond
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// ReadEvents returns the events of a run ordered by seq, then kind.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, kind, message
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC, kind COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Kind, &e.Message); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
