// Package pipeline drives one document execution through an ordered list of
// plugin instances.
//
// A plugin contributes handlers to named phases. Phases are not fixed by the
// engine: any instance may introduce one, and phases run in the order they are
// first introduced when walking the instance list from the front. Within a
// phase, handlers run in instance order. The resulting list of steps is
// materialized once by New.
//
// Execution is split in two passes.
//
//   - Forward. Every step's Enter is called with an EnterControl and must call
//     exactly one of Next or Resolve. Next moves on to the following step.
//     Resolve records a result and ends the forward pass immediately: no later
//     Enter, in this phase or any later one, runs.
//
//   - Backward. The steps that were entered are unwound in reverse order.
//     Each step's Exit, when present, is called with an ExitControl and must
//     call Resolve, optionally with a replacement result. Steps without an
//     Exit are passed through.
//
// Every entered step therefore gets exactly one exit opportunity, and steps
// that were never entered get none. The final result of the backward pass is
// the result of Run.
//
// Both passes are a plain loop over an index with a small decision record per
// call, so the depth of the Go stack does not grow with the number of plugins.
//
// A hook that returns an error or panics aborts the run. The error is wrapped
// in a *HookError naming the phase and plugin; hooks that already ran are not
// unwound further.
package pipeline
