package harness

// Trace event kinds. Cycle events carry a snapshot, the others a message.
const (
	KindCycle     = "cycle"
	KindStop      = "stop"
	KindEmergency = "emergency"
	KindFault     = "fault"
)

// TraceEvent is one row of the recorded run, in seq order.
type TraceEvent struct {
	Seq      int64          `json:"seq"`
	Kind     string         `json:"kind"`
	Snapshot map[string]any `json:"snapshot,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation matched.
	Pass bool `json:"pass"`

	// Outcome is how the run ended.
	Outcome string `json:"outcome"`

	// Cycles is the number of cycles started.
	Cycles int64 `json:"cycles"`

	// Trace contains every recorded cycle and lifecycle event in order.
	Trace []TraceEvent `json:"trace"`

	// Notifications are the operator alarms raised during the run.
	Notifications []string `json:"notifications,omitempty"`

	// Errors contains failed expectations. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// CycleSnapshot returns the recorded snapshot of a cycle.
func (r *Result) CycleSnapshot(seq int64) (map[string]any, bool) {
	for _, ev := range r.Trace {
		if ev.Kind == KindCycle && ev.Seq == seq {
			return ev.Snapshot, true
		}
	}
	return nil, false
}
