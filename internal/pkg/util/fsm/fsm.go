package fsm

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
)

// WrapGuard adapts an error-returning check to a before_ callback.
// A non-nil error cancels the transition; Cause recovers it.
func WrapGuard(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// Cause unwraps the error a guard or callback attached to a fsm error.
// Errors that carry nothing are returned as-is.
func Cause(err error) error {
	var canceled fsm.CanceledError
	if errors.As(err, &canceled) && canceled.Err != nil {
		return canceled.Err
	}
	var noTransition fsm.NoTransitionError
	if errors.As(err, &noTransition) && noTransition.Err != nil {
		return noTransition.Err
	}
	return err
}
