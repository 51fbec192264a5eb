// Package fsm holds helpers shared by the looplab/fsm state machines.
package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback; a returned
// error is stored on the event so Event() reports it.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Err = err
		}
	}
}

// IsRealError reports whether err is a failure rather than the "nothing to do"
// outcomes NoTransitionError and CanceledError.
func IsRealError(err error) bool {
	if err == nil {
		return false
	}

	var noTransition fsm.NoTransitionError
	var canceled fsm.CanceledError

	if errors.As(err, &noTransition) || errors.As(err, &canceled) {
		return false
	}

	return true
}

// IsInvalidEvent reports whether err means the event is not allowed from the
// current state.
func IsInvalidEvent(err error) bool {
	var invalid fsm.InvalidEventError
	return errors.As(err, &invalid)
}
