package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plc/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Edges    bool // text mode: list rising and falling edges per cycle
}

// TraceEvent is one row of a run timeline: a cycle or a lifecycle event.
type TraceEvent struct {
	Seq        int64           `json:"seq"`
	Kind       string          `json:"kind"`
	DurationUS int64           `json:"duration_us,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`
	Message    string          `json:"message,omitempty"`
}

// TraceResult holds the complete trace of one run.
type TraceResult struct {
	Run      store.Run    `json:"run"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats holds summary statistics for a run.
type TraceStats struct {
	Cycles      int   `json:"cycles"`
	Events      int   `json:"events"`
	MeanCycleUS int64 `json:"mean_cycle_us"`
	MaxCycleUS  int64 `json:"max_cycle_us"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [run-id]",
		Short: "Inspect recorded runs",
		Long: `Inspect runs recorded with 'plc run --db'.

Without a run ID, lists every run in the database with its outcome. With a
run ID, prints the run timeline: one row per completed cycle and one per
lifecycle event (stop, emergency, fault).

Examples:
  plc trace --db ./trace.db
  plc trace --db ./trace.db 01928c7e-... --edges
  plc trace --db ./trace.db 01928c7e-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runListRuns(opts, cmd)
			}
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite trace database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().BoolVar(&opts.Edges, "edges", false, "list edges per cycle in text output")

	return cmd
}

// openTraceStore opens an existing trace database. store.Open would create
// a missing one.
func openTraceStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s: database not found: %s", ErrCodeDatabase, path))
		}
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase+": failed to access database", err)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase+": failed to open database", err)
	}
	return st, nil
}

func runListRuns(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openTraceStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ReadRuns(context.Background())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	if formatter.JSON() {
		return formatter.Success(runs)
	}

	w := formatter.Writer
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		outcome := r.Outcome
		if outcome == "" {
			outcome = "unfinished"
		}
		fmt.Fprintf(w, "%s  %-16s %-22s %d cycles\n", r.ID, r.Application, outcome, r.LastCycle)
	}
	return nil
}

func runTrace(opts *TraceOptions, runID string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	st, err := openTraceStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrRunNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	cycles, err := st.ReadCycles(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycles", err)
	}
	events, err := st.ReadEvents(ctx, runID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := buildTrace(run, cycles, events)
	if formatter.JSON() {
		return formatter.encode(CLIResponse{Status: "ok", Data: result, RunID: run.ID})
	}
	return outputTraceText(formatter.Writer, result, opts.Edges)
}

// buildTrace merges cycles and events by seq. At equal seq the cycle comes
// first: the event ended the run after that cycle.
func buildTrace(run store.Run, cycles []store.Cycle, events []store.Event) TraceResult {
	result := TraceResult{
		Run:      run,
		Timeline: make([]TraceEvent, 0, len(cycles)+len(events)),
		Stats:    TraceStats{Cycles: len(cycles), Events: len(events)},
	}

	var total time.Duration
	for _, c := range cycles {
		result.Timeline = append(result.Timeline, TraceEvent{
			Seq:        c.Seq,
			Kind:       "cycle",
			DurationUS: c.Duration.Microseconds(),
			Snapshot:   json.RawMessage(c.Snapshot),
		})
		total += c.Duration
		if us := c.Duration.Microseconds(); us > result.Stats.MaxCycleUS {
			result.Stats.MaxCycleUS = us
		}
	}
	if len(cycles) > 0 {
		result.Stats.MeanCycleUS = (total / time.Duration(len(cycles))).Microseconds()
	}

	for _, e := range events {
		result.Timeline = append(result.Timeline, TraceEvent{Seq: e.Seq, Kind: e.Kind, Message: e.Message})
	}
	sort.SliceStable(result.Timeline, func(i, j int) bool {
		return result.Timeline[i].Seq < result.Timeline[j].Seq
	})
	return result
}

func outputTraceText(w io.Writer, result TraceResult, edges bool) error {
	run := result.Run
	outcome := run.Outcome
	if outcome == "" {
		outcome = "unfinished"
	}
	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Application)
	fmt.Fprintf(w, "Outcome: %s after %d cycles\n", outcome, run.LastCycle)
	if run.Detail != "" {
		fmt.Fprintf(w, "Detail: %s\n", run.Detail)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Timeline:")
	for _, ev := range result.Timeline {
		if ev.Kind != "cycle" {
			fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, strings.ToUpper(ev.Kind), ev.Message)
			continue
		}
		fmt.Fprintf(w, "  [%d] cycle %s\n", ev.Seq, time.Duration(ev.DurationUS)*time.Microsecond)
		if !edges {
			continue
		}
		changes, err := snapshotEdges(ev.Snapshot)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("cycle %d: bad snapshot", ev.Seq), err)
		}
		for _, c := range changes {
			fmt.Fprintf(w, "       %s\n", c)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Cycles:     %d\n", result.Stats.Cycles)
	fmt.Fprintf(w, "  Events:     %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Mean cycle: %s\n", time.Duration(result.Stats.MeanCycleUS)*time.Microsecond)
	fmt.Fprintf(w, "  Max cycle:  %s\n", time.Duration(result.Stats.MaxCycleUS)*time.Microsecond)
	return nil
}

type snapshotEntry struct {
	State   any  `json:"state"`
	Rising  bool `json:"rising"`
	Falling bool `json:"falling"`
}

// snapshotEdges lists "group.name rising|falling" for every edge in a
// cycle snapshot, sorted.
func snapshotEdges(raw json.RawMessage) ([]string, error) {
	var groups map[string]json.RawMessage
	if err := json.Unmarshal(raw, &groups); err != nil {
		return nil, err
	}

	var out []string
	for _, group := range []string{"inputs", "outputs", "steps"} {
		data, ok := groups[group]
		if !ok {
			continue
		}
		var vars map[string]snapshotEntry
		if err := json.Unmarshal(data, &vars); err != nil {
			return nil, fmt.Errorf("%s: %w", group, err)
		}
		names := make([]string, 0, len(vars))
		for name := range vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			switch v := vars[name]; {
			case v.Rising:
				out = append(out, fmt.Sprintf("%s.%s rising", group, name))
			case v.Falling:
				out = append(out, fmt.Sprintf("%s.%s falling", group, name))
			}
		}
	}
	return out, nil
}
