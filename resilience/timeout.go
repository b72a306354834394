package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// CallWithTimeout runs op on its own goroutine under a wall-clock deadline.
//
// The caller is never blocked longer than timeout. When the deadline passes first,
// the outcome is a Timeout failure and op's context is cancelled; op is expected to
// observe the cancellation and return. The worker is cancelled but not joined:
// an op that ignores ctx keeps running after CallWithTimeout has returned.
// The result channel is buffered, so a late worker finishes without blocking
// and nothing is held after it returns.
// A non-positive timeout applies only the parent context's deadline.
func CallWithTimeout[T any](ctx context.Context, timeout time.Duration, op Operation[T]) Outcome[T] {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: Tag(KindOther, "operation", fmt.Errorf("panic: %v", r))}
			}
		}()
		value, err := op(callCtx)
		done <- result{value: value, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return Failed[T](newFailure(r.err, 1))
		}
		return Succeeded(r.value)
	case <-callCtx.Done():
		return Failed[T](newFailure(deadlineError(ctx, callCtx, timeout), 1))
	}
}

// deadlineError explains why callCtx ended before the operation returned.
func deadlineError(parent, callCtx context.Context, timeout time.Duration) error {
	err := callCtx.Err()
	if parent.Err() != nil && !errors.Is(parent.Err(), context.DeadlineExceeded) {
		// Parent cancellation is not a timeout
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Tag(KindTimeout, "call with timeout",
			fmt.Errorf("%w: %w",
				jperrors.NewTimeoutError("operation did not complete before deadline", "call_with_timeout", timeout),
				err))
	}
	return err
}
