package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/plc/internal/binding"
	"github.com/roach88/plc/internal/fault"
)

// Run executes scan cycles until a stop request, an emergency or a failure.
//
// Run returns nil when the loop ended through the exit routine or the
// emergency routine (see Outcome and Emergency to tell them apart). A
// communication failure terminates the process through the Terminator; if
// the Terminator returns, Run returns the communication error. Any other
// error returned by the program is returned after the outputs were flushed.
//
// Run may only be called once per engine.
func (e *Engine) Run(ctx context.Context, p Program) error {
	if p == nil {
		return fault.Configuration("", "no program")
	}
	if !e.state.CompareAndSwap(int32(StateConfiguring), int32(StateRunning)) {
		return fault.Configuration("", "engine already started")
	}
	if e.stopRequested.Load() {
		e.state.Store(int32(StateStopRequested))
	}

	e.inputs.Seal()
	e.outputs.Seal()
	e.steps.Seal()

	runID := e.runIDGen.Generate()
	e.mu.Lock()
	e.runID = runID
	e.mu.Unlock()

	boundIn, boundOut := e.bindings.Len()
	e.logger.Info("scan loop started",
		"run_id", runID,
		"inputs", e.inputs.Len(),
		"outputs", e.outputs.Len(),
		"steps", e.steps.Len(),
		"bound_inputs", boundIn,
		"bound_outputs", boundOut,
		"cycle_time", e.cycleTime,
	)
	e.invokeHooks(HookCtx{Pos: HookPosRunStart})

	for {
		if e.stopping(ctx) {
			return e.exit(ctx, p)
		}

		start := time.Now()
		done, err := e.scan(ctx, p)
		if done {
			return err
		}

		e.wait(ctx, start)
	}
}

// scan executes one cycle. It returns done=true when the run ended inside
// the cycle (emergency or failure).
func (e *Engine) scan(ctx context.Context, p Program) (done bool, err error) {
	cycle := e.clock.Next()
	start := time.Now()
	e.invokeHooks(HookCtx{Pos: HookPosBeforeCycle, Cycle: cycle})

	e.steps.Advance()
	e.outputs.Advance()

	if err := e.readInputs(); err != nil {
		// Control is skipped, outputs still hold last cycle's values.
		if werr := e.writeOutputs(); werr != nil {
			err = werr
		}
		return true, e.fail(ctx, err)
	}

	ctrlErr := p.Control()
	if fault.IsEmergency(ctrlErr) {
		return true, e.emergencyRoutine(ctx, p, ctrlErr)
	}

	if err := e.writeOutputs(); err != nil {
		return true, e.fail(ctx, err)
	}

	if ctrlErr != nil {
		if fault.IsCommunicationError(ctrlErr) {
			return true, e.fail(ctx, ctrlErr)
		}
		return true, e.abort(fmt.Errorf("control: %w", ctrlErr))
	}

	e.publish()
	e.invokeHooks(HookCtx{Pos: HookPosAfterCycle, Cycle: cycle, Duration: time.Since(start)})
	return false, nil
}

// readInputs samples every input binding, then reads every output back into
// its status entry. The first failure aborts the phase.
func (e *Engine) readInputs() error {
	for name, r := range e.bindings.Inputs() {
		v, err := r.Read()
		if err != nil {
			return err
		}
		e.inputs.MustGet(name).Update(v)
	}
	for name, d := range e.bindings.Outputs() {
		v, err := d.Read()
		if err != nil {
			return err
		}
		e.inputs.MustGet(binding.StatusName(name)).Update(v)
	}
	return nil
}

// writeOutputs drives every output binding with its variable's current
// value. The first failure aborts the phase.
func (e *Engine) writeOutputs() error {
	for name, d := range e.bindings.Outputs() {
		if err := d.Write(e.outputs.MustGet(name).Current()); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) exit(ctx context.Context, p Program) error {
	e.state.Store(int32(StateStopRequested))
	e.logger.Info("stop requested, running exit routine", "cycle", e.clock.Current())

	exitErr := p.OnExit()
	if err := e.writeOutputs(); err != nil {
		return e.fail(ctx, err)
	}
	if exitErr != nil {
		if fault.IsCommunicationError(exitErr) {
			return e.fail(ctx, exitErr)
		}
		return e.abort(fmt.Errorf("exit routine: %w", exitErr))
	}

	e.publish()
	e.finish(OutcomeStopped, nil)
	e.logger.Info("scan loop stopped", "cycle", e.clock.Current())
	e.invokeHooks(HookCtx{Pos: HookPosStop})
	return nil
}

func (e *Engine) emergencyRoutine(ctx context.Context, p Program, cause error) error {
	e.state.Store(int32(StateEmergency))
	e.logger.Warn("emergency condition, running emergency routine",
		"cycle", e.clock.Current(),
		"err", cause,
	)

	routineErr := p.OnEmergency()
	if err := e.writeOutputs(); err != nil {
		return e.fail(ctx, err)
	}
	if routineErr != nil {
		if fault.IsCommunicationError(routineErr) {
			return e.fail(ctx, routineErr)
		}
		return e.abort(fmt.Errorf("emergency routine: %w", routineErr))
	}

	e.publish()
	e.finish(OutcomeEmergency, cause)
	e.logger.Info("scan loop stopped after emergency", "cycle", e.clock.Current())
	e.invokeHooks(HookCtx{Pos: HookPosEmergency, Err: cause})
	return nil
}

// fail handles a communication failure: log, notify, terminate.
func (e *Engine) fail(ctx context.Context, err error) error {
	msg := fmt.Sprintf("program interrupted: %v", err)
	e.logger.Error("program interrupted", "cycle", e.clock.Current(), "err", err)

	if e.notifier != nil {
		if nerr := e.notify(ctx, msg); nerr != nil {
			e.logger.Warn("notification failed", "err", nerr)
		}
	}

	e.finish(OutcomeCommunicationFailure, nil)
	e.invokeHooks(HookCtx{Pos: HookPosFault, Err: err})
	e.terminate(msg)
	return err
}

// notify alerts the notifier, giving up after notifyTTL even when the
// notifier ignores its context.
func (e *Engine) notify(ctx context.Context, msg string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.notifyTTL)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- e.notifier.Notify(ctx, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// abort ends the run on an error the engine does not handle.
func (e *Engine) abort(err error) error {
	e.logger.Error("scan loop aborted", "cycle", e.clock.Current(), "err", err)
	e.finish(OutcomeControlError, nil)
	e.invokeHooks(HookCtx{Pos: HookPosFault, Err: err})
	return err
}

// wait sleeps for the remainder of the cycle period. A stop request or
// context cancellation ends the wait early.
func (e *Engine) wait(ctx context.Context, start time.Time) {
	if e.cycleTime <= 0 {
		return
	}
	remaining := e.cycleTime - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-e.stopCh:
	case <-ctx.Done():
	}
}
