package engine

// RunState is the state of the scan loop.
type RunState int32

const (
	// StateConfiguring is the state before Run: registration is allowed.
	StateConfiguring RunState = iota
	// StateRunning means cycles are being executed.
	StateRunning
	// StateStopRequested means a stop was requested; the loop ends at the
	// next cycle boundary and runs the exit routine.
	StateStopRequested
	// StateEmergency means control logic signaled an emergency; the
	// emergency routine runs and the loop ends.
	StateEmergency
	// StateStopped is terminal.
	StateStopped
)

// String returns the state name.
func (s RunState) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateEmergency:
		return "emergency"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Outcome records how a run ended.
type Outcome string

const (
	// OutcomeNone means the run has not ended.
	OutcomeNone Outcome = ""
	// OutcomeStopped means the run ended through a stop request.
	OutcomeStopped Outcome = "stopped"
	// OutcomeEmergency means the run ended through the emergency routine.
	OutcomeEmergency Outcome = "emergency"
	// OutcomeCommunicationFailure means a hardware read or write failed.
	OutcomeCommunicationFailure Outcome = "communication_failure"
	// OutcomeControlError means control logic (or an exit routine) returned
	// an error the engine does not handle.
	OutcomeControlError Outcome = "control_error"
)
