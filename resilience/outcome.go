package resilience

import (
	"fmt"
)

// ErrorKind is the structural category of a failure.
type ErrorKind int

const (
	// KindOther covers parse errors, unexpected response shapes and interaction failures.
	KindOther ErrorKind = iota

	// KindNetwork covers connectivity and transport failures.
	KindNetwork

	// KindTimeout covers failures caused by an exceeded wall-clock deadline.
	KindTimeout
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Failure describes why an operation did not produce a value.
// It implements error and unwraps to the last observed error.
type Failure struct {
	// Err is the last error observed.
	Err error

	// Message is a human-readable summary of Err.
	Message string

	// Kind is the classification of Err.
	Kind ErrorKind

	// Attempt is the number of attempts made before giving up.
	Attempt int

	// Exhausted is true when every attempt in the retry budget failed.
	Exhausted bool

	// Interrupted is true when the caller's context ended during a backoff wait.
	Interrupted bool
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f.Exhausted {
		return fmt.Sprintf("%s failure after %d attempts: %s", f.Kind, f.Attempt, f.Message)
	}
	return fmt.Sprintf("%s failure on attempt %d: %s", f.Kind, f.Attempt, f.Message)
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (f *Failure) Unwrap() error {
	return f.Err
}

func newFailure(err error, attempt int) *Failure {
	f := &Failure{
		Err:     err,
		Kind:    Classify(err),
		Attempt: attempt,
	}
	if err != nil {
		f.Message = err.Error()
	}
	return f
}

// Outcome is either a successful value or a classified Failure.
type Outcome[T any] struct {
	value   T
	failure *Failure
}

// Succeeded returns a successful outcome holding value.
func Succeeded[T any](value T) Outcome[T] {
	return Outcome[T]{value: value}
}

// Failed returns a failed outcome. A nil failure is replaced with an Other failure
// so that exactly one variant is always populated.
func Failed[T any](f *Failure) Outcome[T] {
	if f == nil {
		f = &Failure{Kind: KindOther, Message: "unspecified failure"}
	}
	return Outcome[T]{failure: f}
}

// OK reports whether the outcome is a success.
func (o Outcome[T]) OK() bool {
	return o.failure == nil
}

// Value returns the success value, or the zero value for a failure.
func (o Outcome[T]) Value() T {
	return o.value
}

// Failure returns the failure, or nil for a success.
func (o Outcome[T]) Failure() *Failure {
	return o.failure
}

// Get returns the value and the failure as an error.
func (o Outcome[T]) Get() (T, error) {
	if o.failure != nil {
		var zero T
		return zero, o.failure
	}
	return o.value, nil
}

// OrElse returns the success value or fallback when the outcome failed.
func (o Outcome[T]) OrElse(fallback T) T {
	if o.failure != nil {
		return fallback
	}
	return o.value
}

// KindHandlers maps each error kind to a recovery function.
// A nil handler falls back to Other, and a nil Other yields the zero value.
type KindHandlers[T any] struct {
	Network func(f *Failure) T
	Timeout func(f *Failure) T
	Other   func(f *Failure) T
}

// Handle returns the success value, or dispatches the failure to the handler for its kind.
//
// Example:
//
//	page := resilience.Handle(outcome, resilience.KindHandlers[string]{
//	    Network: func(f *resilience.Failure) string { return cachedPage },
//	    Other:   func(f *resilience.Failure) string { return "" },
//	})
func Handle[T any](o Outcome[T], h KindHandlers[T]) T {
	if o.failure == nil {
		return o.value
	}

	var fn func(f *Failure) T
	switch o.failure.Kind {
	case KindNetwork:
		fn = h.Network
	case KindTimeout:
		fn = h.Timeout
	}
	if fn == nil {
		fn = h.Other
	}
	if fn == nil {
		var zero T
		return zero
	}
	return fn(o.failure)
}
