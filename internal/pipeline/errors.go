package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is returned when the forward pass runs past the last step
	// without any hook resolving.
	ErrUnresolved = errors.New("pipeline: no plugin resolved the execution")
	// ErrNoDecision is reported when an enter hook calls neither Next nor
	// Resolve, or an exit hook does not call Resolve.
	ErrNoDecision = errors.New("pipeline: hook returned without a decision")
	// ErrDecidedTwice is reported when a hook calls its controls more than once.
	ErrDecidedTwice = errors.New("pipeline: hook decided more than once")
	// ErrDuplicatePhase is returned by New when one instance lists a phase twice.
	ErrDuplicatePhase = errors.New("pipeline: phase contributed twice by one plugin")
)

// HookError wraps a failure raised inside a plugin hook.
type HookError struct {
	Phase  Phase
	Plugin string
	Exit   bool
	Err    error
}

func (e *HookError) Error() string {
	hook := "enter"
	if e.Exit {
		hook = "exit"
	}
	return fmt.Sprintf("pipeline: %s %s of plugin %q: %v", e.Phase, hook, e.Plugin, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// PanicError is the error carried by a HookError when the hook panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }
