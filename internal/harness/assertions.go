package harness

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/plc/internal/engine"
	"github.com/roach88/plc/internal/gpio"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Expectation type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	// Lifecycle events give context without dumping every snapshot
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nTrace:\n")
		for _, ev := range e.Trace {
			if ev.Kind == KindCycle {
				continue
			}
			fmt.Fprintf(&buf, "  [%d] %s %s\n", ev.Seq, ev.Kind, ev.Message)
		}
	}
	return buf.String()
}

// Evaluate checks every expectation of a scenario against a result and the
// final pin bank. It returns one message per failure.
func Evaluate(s *Scenario, result *Result, sim *gpio.SimDriver) []string {
	var errs []string
	add := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	add(assertOutcome(s, result))
	for _, exp := range s.Expect {
		for _, err := range assertCycle(exp, result) {
			add(err)
		}
	}
	add(assertLevels(s.Levels, sim, result.Trace))
	return errs
}

func assertOutcome(s *Scenario, result *Result) error {
	want := s.Outcome
	if want == "" {
		want = string(engine.OutcomeStopped)
	}
	if result.Outcome == want {
		return nil
	}
	return &AssertionError{
		Type:     "outcome",
		Expected: want,
		Actual:   fmt.Sprintf("%s after %d cycles", result.Outcome, result.Cycles),
		Trace:    result.Trace,
	}
}

// assertCycle compares the listed variables of one cycle (subset match).
func assertCycle(exp CycleExpect, result *Result) []error {
	snap, ok := result.CycleSnapshot(exp.Cycle)
	if !ok {
		return []error{&AssertionError{
			Type:     "cycle",
			Expected: fmt.Sprintf("cycle %d recorded", exp.Cycle),
			Actual:   fmt.Sprintf("run ended %s after %d cycles", result.Outcome, result.Cycles),
			Trace:    result.Trace,
		}}
	}

	var errs []error
	groups := []struct {
		key  string
		vars map[string]VarExpect
	}{
		{"inputs", exp.Inputs},
		{"outputs", exp.Outputs},
		{"steps", exp.Steps},
	}
	for _, g := range groups {
		group, _ := snap[g.key].(map[string]any)
		for _, name := range sortedNames(g.vars) {
			entry, ok := group[name].(map[string]any)
			if !ok {
				errs = append(errs, &AssertionError{
					Type:     "cycle",
					Expected: fmt.Sprintf("cycle %d: %s.%s present", exp.Cycle, g.key, name),
					Actual:   "not in snapshot",
				})
				continue
			}
			if err := matchVar(g.vars[name], entry); err != "" {
				errs = append(errs, &AssertionError{
					Type:     "cycle",
					Expected: fmt.Sprintf("cycle %d: %s.%s %s", exp.Cycle, g.key, name, describe(g.vars[name])),
					Actual:   err,
				})
			}
		}
	}
	return errs
}

// matchVar returns a description of the first mismatch, or "".
func matchVar(want VarExpect, entry map[string]any) string {
	if want.State != nil {
		w, _ := expectedNumber(want.State)
		got, ok := actualNumber(entry["state"])
		if !ok || math.Abs(got-w) > 1e-9 {
			return fmt.Sprintf("state %v", entry["state"])
		}
	}
	if want.Rising != nil && entry["rising"] != *want.Rising {
		return fmt.Sprintf("rising %v", entry["rising"])
	}
	if want.Falling != nil && entry["falling"] != *want.Falling {
		return fmt.Sprintf("falling %v", entry["falling"])
	}
	return ""
}

func describe(v VarExpect) string {
	var parts []string
	if v.State != nil {
		parts = append(parts, fmt.Sprintf("state %v", v.State))
	}
	if v.Rising != nil {
		parts = append(parts, fmt.Sprintf("rising %v", *v.Rising))
	}
	if v.Falling != nil {
		parts = append(parts, fmt.Sprintf("falling %v", *v.Falling))
	}
	return strings.Join(parts, ", ")
}

func assertLevels(levels map[string]bool, sim *gpio.SimDriver, trace []TraceEvent) error {
	var mismatches []string
	for _, pin := range sortedPins(levels) {
		if got := sim.Level(pin); got != levels[pin] {
			mismatches = append(mismatches, fmt.Sprintf("pin %s is %v", pin, got))
		}
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     "levels",
		Expected: fmt.Sprintf("%v", levels),
		Actual:   strings.Join(mismatches, ", "),
		Trace:    trace,
	}
}

// expectedNumber converts a YAML scalar to a number. Booleans map to 0/1.
func expectedNumber(v any) (float64, error) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case float64:
		return val, nil
	default:
		return 0, fmt.Errorf("state must be a boolean or a number, got %T", v)
	}
}

func actualNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case int64:
		return float64(val), true
	case float64:
		return val, true
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func sortedNames(m map[string]VarExpect) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
