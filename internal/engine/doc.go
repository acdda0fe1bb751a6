// Package engine implements the PLC scan engine.
//
// The engine repeatedly samples the physical inputs, runs the user control
// program and drives the physical outputs. Every memory variable remembers
// its value from the start of the cycle, so control logic can detect edges.
//
// ARCHITECTURE:
//
// Single-Threaded Scan Loop:
// Run executes every phase of every cycle on the calling goroutine. Control
// logic runs inline during the control phase. This ensures:
//   - Registries and bindings need no locking
//   - Phases run in a fixed order every cycle
//   - A blocking hardware call blocks the whole engine (no phase timeouts)
//
// Scan Cycle:
//  1. Advance: steps and outputs are re-stamped with their own value, so
//     edges seen in the control phase are relative to this cycle's start
//  2. Input: every input binding is read into the input registry, and every
//     output is read back into its `<name>_status` entry
//  3. Control: Program.Control runs
//  4. Output: every output variable is written to its binding
//
// The output phase runs on every exit path: after an input failure, after
// a control error, after the emergency routine and after the stop routine.
//
// RUN STATE:
//
//	Configuring -> Running -> StopRequested -> Stopped
//	                       -> Emergency     -> Stopped
//
// Stop requests (Stop or context cancellation) are only observed at the
// top of a cycle; an in-progress cycle always completes.
//
// FAILURES:
//   - Communication errors are fatal: logged, notified, then the process is
//     terminated through the Terminator once outputs were flushed
//   - An emergency condition returned by Control runs Program.OnEmergency,
//     flushes outputs and ends the loop without running Program.OnExit
//   - Configuration and type-mismatch errors are returned to the caller of
//     the accessor that produced them
package engine
