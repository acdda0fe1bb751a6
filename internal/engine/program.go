package engine

// Program is the user control logic driven by the engine.
//
// Control runs once per cycle during the control phase. It signals an
// emergency by returning a fault.Emergency error; any other error ends the
// run and is returned from Run after the outputs were flushed.
//
// OnExit runs once after a stop request. OnEmergency runs once after an
// emergency. Outputs are flushed after either routine.
type Program interface {
	Control() error
	OnExit() error
	OnEmergency() error
}

// ProgramFuncs adapts three callbacks to the Program interface. Nil
// callbacks do nothing.
type ProgramFuncs struct {
	ControlFunc     func() error
	OnExitFunc      func() error
	OnEmergencyFunc func() error
}

// Control implements Program.
func (p ProgramFuncs) Control() error {
	if p.ControlFunc == nil {
		return nil
	}
	return p.ControlFunc()
}

// OnExit implements Program.
func (p ProgramFuncs) OnExit() error {
	if p.OnExitFunc == nil {
		return nil
	}
	return p.OnExitFunc()
}

// OnEmergency implements Program.
func (p ProgramFuncs) OnEmergency() error {
	if p.OnEmergencyFunc == nil {
		return nil
	}
	return p.OnEmergencyFunc()
}
