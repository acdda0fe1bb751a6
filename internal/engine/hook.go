package engine

import "time"

// HookPos defines the positions at which the engine invokes hooks.
type HookPos struct {
	Name string
}

// HookPosRunStart triggers once, after the registries were sealed and
// before the first cycle.
var HookPosRunStart = &HookPos{Name: "RunStart"}

// HookPosBeforeCycle triggers at the top of each cycle, before the advance
// phase.
var HookPosBeforeCycle = &HookPos{Name: "BeforeCycle"}

// HookPosAfterCycle triggers after the output phase of a cycle that
// completed without failure or emergency.
var HookPosAfterCycle = &HookPos{Name: "AfterCycle"}

// HookPosStop triggers after the exit routine and its output flush.
var HookPosStop = &HookPos{Name: "Stop"}

// HookPosEmergency triggers after the emergency routine and its output flush.
var HookPosEmergency = &HookPos{Name: "Emergency"}

// HookPosFault triggers when the run ends on a communication failure or an
// unhandled control error, before the process is terminated.
var HookPosFault = &HookPos{Name: "Fault"}

// HookCtx is the information passed to a hook.
type HookCtx struct {
	// Engine is the engine invoking the hook. Hooks run on the engine
	// goroutine and may read its registries (e.g. Snapshot).
	Engine *Engine

	// Pos is where the hook was triggered.
	Pos *HookPos

	// Cycle is the current cycle number (0 before the first cycle).
	Cycle int64

	// Duration is the time spent in the cycle, for AfterCycle.
	Duration time.Duration

	// Err is the failure for Emergency and Fault.
	Err error
}

// Hook observes the engine. Hooks must not block: they run inline with the
// scan.
type Hook interface {
	Func(ctx HookCtx)
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx HookCtx)

// Func implements Hook.
func (f HookFunc) Func(ctx HookCtx) {
	f(ctx)
}

// AcceptHook registers a hook. Hooks run in registration order.
func (e *Engine) AcceptHook(hook Hook) {
	e.hooks = append(e.hooks, hook)
}

func (e *Engine) invokeHooks(ctx HookCtx) {
	ctx.Engine = e
	if ctx.Cycle == 0 {
		ctx.Cycle = e.clock.Current()
	}
	for _, hook := range e.hooks {
		hook.Func(ctx)
	}
}
