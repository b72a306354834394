package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Completion results reported to an Observer.
const (
	ResultSuccess     = "success"
	ResultExhausted   = "exhausted"
	ResultAborted     = "aborted"
	ResultInterrupted = "interrupted"
	ResultInvalid     = "invalid"
)

// Observer receives notifications from an Executor. Implementations must be
// safe for concurrent use when the executor is shared between goroutines.
type Observer interface {
	// AttemptFailed is called after every failed attempt.
	AttemptFailed(label string, attempt int, kind ErrorKind)

	// Completed is called once per Execute with one of the Result* values.
	Completed(label, result string, attempts int)
}

// Executor runs operations with a retry budget, backoff and an optional
// per-attempt deadline. Attempts of one execution are strictly sequential.
// An Executor holds no per-call state and may be shared.
type Executor struct {
	config     *ExecutorConfig
	logger     *slog.Logger
	classifier ErrorClassifier
	observer   Observer
	stats      *executorStats
}

// executorStats tracks executor statistics.
type executorStats struct {
	mu               sync.RWMutex
	totalAttempts    int64
	totalRetries     int64
	totalSuccesses   int64
	totalFailures    int64
	totalInterrupted int64
	lastAttemptTime  time.Time
	lastError        error
}

// NewExecutor creates an executor. It applies the provided options over the network defaults.
//
// Example:
//
//	executor := resilience.NewExecutor(
//	    resilience.WithMaxAttempts(3),
//	    resilience.WithExponentialBackoff(time.Second, 0),
//	    resilience.WithAttemptTimeout(60*time.Second),
//	)
func NewExecutor(opts ...ExecutorOption) *Executor {
	config := DefaultExecutorConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier()
	}

	return &Executor{
		config:     config,
		logger:     config.Logger,
		classifier: config.ErrorClassifier,
		observer:   config.Observer,
		stats:      &executorStats{},
	}
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() RetryPolicy {
	return e.config.Policy
}

// Execute runs op until it succeeds or the retry budget is spent.
// It never panics and never returns a nil-and-empty outcome: failures come back
// as a Failure carrying the last error, its kind and the attempt count.
// label names the operation in logs and metrics.
func Execute[T any](ctx context.Context, e *Executor, label string, op Operation[T]) Outcome[T] {
	policy := e.config.Policy
	logger := e.logger.With("operation", label, "call_id", uuid.NewString())

	if err := policy.Validate(); err != nil {
		logger.Error("invalid retry policy", "error", err)
		return Failed[T](e.fail(label, ResultInvalid, newFailure(err, 0)))
	}

	if e.config.InterruptMode == AbortOnInterrupt && ctx.Err() != nil {
		logger.Warn("context already done before first attempt", "error", ctx.Err())
		f := newFailure(ctx.Err(), 0)
		f.Interrupted = true
		return Failed[T](e.fail(label, ResultInterrupted, f))
	}

	schedule := policy.schedule()
	interrupted := false
	var last *Failure

	for attempt := 1; ; attempt++ {
		e.stats.recordAttempt(attempt)

		value, err := runAttempt(ctx, e.config.AttemptTimeout, op)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry", "attempts", attempt)
			}
			e.stats.recordSuccess()
			e.notifyCompleted(label, ResultSuccess, attempt)
			return Succeeded(value)
		}

		last = newFailure(err, attempt)
		last.Interrupted = interrupted
		if e.observer != nil {
			e.observer.AttemptFailed(label, attempt, last.Kind)
		}
		logger.Warn("operation attempt failed",
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"kind", last.Kind.String(),
			"error", err)

		if !e.classifier.IsRetryable(err) {
			logger.Debug("non-retryable error, giving up", "attempt", attempt)
			return Failed[T](e.fail(label, ResultAborted, last))
		}

		delay, stop := schedule.Next()
		if stop {
			break
		}

		logger.Debug("retrying operation after delay", "attempt", attempt, "delay", delay)
		if wait(ctx, delay) {
			continue
		}

		interrupted = true
		if e.config.InterruptMode == AbortOnInterrupt {
			logger.Warn("backoff wait interrupted, abandoning retries",
				"attempt", attempt,
				"error", ctx.Err())
			f := newFailure(fmt.Errorf("backoff interrupted after attempt %d (last error: %v): %w",
				attempt, last.Err, ctx.Err()), attempt)
			f.Interrupted = true
			return Failed[T](e.fail(label, ResultInterrupted, f))
		}
		logger.Warn("backoff wait interrupted, continuing with next attempt",
			"attempt", attempt,
			"error", ctx.Err())
	}

	last.Exhausted = true
	logger.Warn("operation failed after retries",
		"attempts", last.Attempt,
		"kind", last.Kind.String(),
		"error", last.Err)
	return Failed[T](e.fail(label, ResultExhausted, last))
}

// runAttempt executes one attempt, bounded by timeout when positive.
// Panics inside op are converted to Other failures.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op Operation[T]) (value T, err error) {
	if timeout > 0 {
		o := CallWithTimeout(ctx, timeout, op)
		if f := o.Failure(); f != nil {
			return value, f.Err
		}
		return o.Value(), nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = Tag(KindOther, "operation", fmt.Errorf("panic: %v", r))
		}
	}()
	return op(ctx)
}

// wait blocks for d or until ctx is done. It reports false when interrupted.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// fail records f and returns it unchanged.
func (e *Executor) fail(label, result string, f *Failure) *Failure {
	e.stats.recordFailure(f)
	e.notifyCompleted(label, result, f.Attempt)
	return f
}

func (e *Executor) notifyCompleted(label, result string, attempts int) {
	if e.observer != nil {
		e.observer.Completed(label, result, attempts)
	}
}

func (s *executorStats) recordAttempt(attempt int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalAttempts++
	if attempt > 1 {
		s.totalRetries++
	}
	s.lastAttemptTime = time.Now()
}

func (s *executorStats) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalSuccesses++
}

func (s *executorStats) recordFailure(f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalFailures++
	if f.Interrupted {
		s.totalInterrupted++
	}
	s.lastError = f
}

// ExecutorStats holds statistics about executed operations.
type ExecutorStats struct {
	// TotalAttempts is the total number of attempts made (including initial and retries)
	TotalAttempts int64

	// TotalRetries is the number of retry attempts (not including initial attempts)
	TotalRetries int64

	// TotalSuccesses is the number of successful operations
	TotalSuccesses int64

	// TotalFailures is the number of operations that returned a Failure
	TotalFailures int64

	// TotalInterrupted is the number of failures whose backoff was interrupted
	TotalInterrupted int64

	// LastAttemptTime is the time of the last attempt
	LastAttemptTime time.Time

	// LastError is the last failure returned (if any)
	LastError error
}

// Stats returns a snapshot of the executor statistics. It is safe for concurrent use.
func (e *Executor) Stats() ExecutorStats {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()

	return ExecutorStats{
		TotalAttempts:    e.stats.totalAttempts,
		TotalRetries:     e.stats.totalRetries,
		TotalSuccesses:   e.stats.totalSuccesses,
		TotalFailures:    e.stats.totalFailures,
		TotalInterrupted: e.stats.totalInterrupted,
		LastAttemptTime:  e.stats.lastAttemptTime,
		LastError:        e.stats.lastError,
	}
}
