package resilience

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffFunc maps a 1-based attempt number to the wait that follows it.
type BackoffFunc func(attempt int) time.Duration

// Exponential returns a doubling backoff: base * 2^attempt.
// With base=1s the waits after attempts 1, 2, 3 are 2s, 4s, 8s.
// Results saturate at the largest representable duration instead of overflowing.
func Exponential(base time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		if base <= 0 {
			return 0
		}
		if attempt >= 63 || base > time.Duration(math.MaxInt64>>uint(attempt)) {
			return time.Duration(math.MaxInt64)
		}
		return base << uint(attempt)
	}
}

// Constant returns a backoff that always waits d.
func Constant(d time.Duration) BackoffFunc {
	return func(int) time.Duration {
		return d
	}
}

// RetryPolicy describes how many times an operation is attempted and how long
// the executor waits between attempts.
type RetryPolicy struct {
	// Backoff computes the wait after a failed attempt.
	// Default: Exponential(BaseDelay)
	Backoff BackoffFunc

	// MaxAttempts is the maximum number of attempts (including the initial one).
	// Must be at least 1.
	MaxAttempts int

	// BaseDelay seeds the default exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps every wait when positive. Zero leaves delays uncapped.
	MaxDelay time.Duration
}

// NewRetryPolicy returns a doubling policy with the given attempt budget and base delay.
func NewRetryPolicy(maxAttempts int, baseDelay time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		Backoff:     Exponential(baseDelay),
	}
}

// DefaultRetryPolicy returns the policy used for network calls: 3 attempts, 1s base,
// which yields waits of 2s and 4s.
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy(3, time.Second)
}

// Validate reports whether the policy can be executed.
func (p RetryPolicy) Validate() error {
	var errs []error
	if p.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.BaseDelay < 0 {
		errs = append(errs, fmt.Errorf("base delay must not be negative, got %s", p.BaseDelay))
	}
	if p.MaxDelay < 0 {
		errs = append(errs, fmt.Errorf("max delay must not be negative, got %s", p.MaxDelay))
	}
	return errors.Join(errs...)
}

// Delay returns the wait after the given failed attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.backoff()(attempt)
	if d < 0 {
		d = 0
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

func (p RetryPolicy) backoff() BackoffFunc {
	if p.Backoff != nil {
		return p.Backoff
	}
	return Exponential(p.BaseDelay)
}

// schedule builds a go-retry backoff that yields the waits for one execution.
// It stops after MaxAttempts-1 waits because the initial attempt has no wait.
func (p RetryPolicy) schedule() retry.Backoff {
	next := p.backoff()
	attempt := 0
	var b retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		d := next(attempt)
		if d < 0 {
			d = 0
		}
		return d, false
	})
	if p.MaxDelay > 0 {
		b = retry.WithCappedDuration(p.MaxDelay, b)
	}

	maxRetries := p.MaxAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.WithMaxRetries(uint64(maxRetries), b) // #nosec G115 - non-negative checked above
}
