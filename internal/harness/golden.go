package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/plc/internal/snapshot"
)

// TraceJSON renders a result as canonical JSON: the scenario name, the
// outcome and every trace event.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":  ev.Seq,
			"kind": ev.Kind,
		}
		if ev.Snapshot != nil {
			m["snapshot"] = ev.Snapshot
		}
		if ev.Message != "" {
			m["message"] = ev.Message
		}
		trace[i] = m
	}
	return snapshot.MarshalCanonical(map[string]any{
		"scenario": scenarioName,
		"outcome":  result.Outcome,
		"trace":    trace,
	})
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check expectations too.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
