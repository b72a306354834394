package resilience

import (
	"log/slog"
	"time"
)

// InterruptMode selects what the executor does when the caller's context ends
// while it is waiting between attempts.
type InterruptMode int

const (
	// ContinueOnInterrupt cuts the wait short and proceeds to the next attempt.
	// The context stays cancelled, so later attempts see the cancellation too
	// and the budget is still spent in full.
	ContinueOnInterrupt InterruptMode = iota

	// AbortOnInterrupt stops the retry loop and returns an interrupted failure.
	// A context that is already done fails before the first attempt.
	AbortOnInterrupt
)

// String returns the string representation of the interrupt mode.
func (m InterruptMode) String() string {
	switch m {
	case ContinueOnInterrupt:
		return "continue"
	case AbortOnInterrupt:
		return "abort"
	default:
		return "unknown"
	}
}

// ExecutorConfig holds retry executor configuration options.
type ExecutorConfig struct {
	// ErrorClassifier determines which errors should trigger retries.
	// Default: every kind is retried except circuit breaker rejections
	ErrorClassifier ErrorClassifier

	// Observer receives attempt and completion notifications.
	// Default: none
	Observer Observer

	// Logger for retry operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Policy holds the attempt budget and backoff.
	// Default: 3 attempts, waits of 2s and 4s
	Policy RetryPolicy

	// AttemptTimeout bounds each attempt through CallWithTimeout when positive.
	// Default: 0 (no per-attempt deadline)
	AttemptTimeout time.Duration

	// InterruptMode controls cancellation during backoff waits.
	// Default: ContinueOnInterrupt
	InterruptMode InterruptMode
}

// ExecutorOption is a functional option for configuring executor behavior.
type ExecutorOption func(*ExecutorConfig)

// WithPolicy replaces the whole retry policy.
//
// Example:
//
//	resilience.WithPolicy(resilience.RetryPolicy{
//	    MaxAttempts: 3,
//	    Backoff:     resilience.Constant(time.Second),
//	})
func WithPolicy(policy RetryPolicy) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Policy = policy
	}
}

// WithMaxAttempts sets the maximum number of attempts.
// The total number of calls will be MaxAttempts (including the initial attempt).
//
// Example:
//
//	resilience.WithMaxAttempts(5) // Try up to 5 times total
func WithMaxAttempts(attempts int) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Policy.MaxAttempts = attempts
	}
}

// WithExponentialBackoff configures doubling waits from baseDelay, capped at maxDelay
// when maxDelay is positive.
//
// Example:
//
//	resilience.WithExponentialBackoff(time.Second, 0)
//	// Waits: 2s, 4s, 8s, ...
func WithExponentialBackoff(baseDelay, maxDelay time.Duration) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Policy.BaseDelay = baseDelay
		c.Policy.MaxDelay = maxDelay
		c.Policy.Backoff = Exponential(baseDelay)
	}
}

// WithConstantBackoff configures the same wait after every failed attempt.
//
// Example:
//
//	resilience.WithConstantBackoff(time.Second)
//	// Waits: 1s, 1s, 1s
func WithConstantBackoff(delay time.Duration) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Policy.BaseDelay = delay
		c.Policy.MaxDelay = 0
		c.Policy.Backoff = Constant(delay)
	}
}

// WithAttemptTimeout bounds every attempt with a wall-clock deadline.
//
// Example:
//
//	resilience.WithAttemptTimeout(60 * time.Second)
func WithAttemptTimeout(timeout time.Duration) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.AttemptTimeout = timeout
	}
}

// WithInterruptMode selects how cancellation during backoff is handled.
//
// Example:
//
//	resilience.WithInterruptMode(resilience.AbortOnInterrupt)
func WithInterruptMode(mode InterruptMode) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.InterruptMode = mode
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
//
// Example:
//
//	resilience.WithErrorClassifier(resilience.TransientOnly())
func WithErrorClassifier(classifier ErrorClassifier) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithObserver registers an observer for attempts and completions.
func WithObserver(observer Observer) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Observer = observer
	}
}

// WithLogger sets a custom logger for retry operations.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	resilience.WithLogger(logger)
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(c *ExecutorConfig) {
		c.Logger = logger
	}
}

// DefaultExecutorConfig returns executor configuration with the network defaults.
func DefaultExecutorConfig() *ExecutorConfig {
	return &ExecutorConfig{
		Policy:          DefaultRetryPolicy(),
		InterruptMode:   ContinueOnInterrupt,
		ErrorClassifier: DefaultErrorClassifier(),
		Logger:          slog.Default(),
	}
}

// CircuitBreakerConfig holds circuit breaker configuration options.
type CircuitBreakerConfig struct {
	// ReadyToTrip is called with a copy of counts whenever a request fails in the closed state.
	// If ReadyToTrip returns true, the circuit breaker will be placed into the open state.
	// Default: trips after 5 consecutive failures
	ReadyToTrip func(counts CircuitBreakerCounts) bool

	// ErrorClassifier determines which errors should trip the circuit breaker.
	// Default: HTTPStatusClassifier with standard trip codes
	ErrorClassifier CircuitBreakerErrorClassifier

	// OnStateChange is called whenever the circuit breaker changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)

	// Logger for circuit breaker operations.
	// Default: slog.Default()
	Logger *slog.Logger

	// Name identifies the breaker in logs and state change callbacks.
	// Default: "resilient-client"
	Name string

	// Interval is the cyclic period of the closed state for the circuit breaker
	// to clear the internal counts. If 0, never clears.
	// Default: 60 seconds
	Interval time.Duration

	// OpenTimeout is the period of the open state, after which the state becomes half-open.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is in the half-open state.
	// Default: 1
	MaxRequests uint32
}

// CircuitBreakerOption is a functional option for configuring circuit breaker behavior.
type CircuitBreakerOption func(*CircuitBreakerConfig)

// CircuitBreakerCounts holds the internal counts of the circuit breaker.
type CircuitBreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	// StateClosed means the circuit is closed and requests flow normally.
	StateClosed CircuitBreakerState = iota

	// StateHalfOpen means the circuit is testing if the service has recovered.
	StateHalfOpen

	// StateOpen means the circuit is open and requests are rejected immediately.
	StateOpen
)

// String returns the string representation of the circuit breaker state.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// WithCircuitBreakerName sets the breaker name used in logs.
func WithCircuitBreakerName(name string) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Name = name
	}
}

// WithMaxRequests sets the maximum number of requests in half-open state.
func WithMaxRequests(maxRequests uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.MaxRequests = maxRequests
	}
}

// WithInterval sets the interval for clearing counts in closed state.
func WithInterval(interval time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Interval = interval
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing again.
//
// Example:
//
//	resilience.WithOpenTimeout(2 * time.Minute)
func WithOpenTimeout(timeout time.Duration) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OpenTimeout = timeout
	}
}

// WithConsecutiveFailures trips the breaker after n consecutive failures.
func WithConsecutiveFailures(n uint32) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = func(counts CircuitBreakerCounts) bool {
			return counts.ConsecutiveFailures >= n
		}
	}
}

// WithReadyToTrip sets a custom function to determine when to trip the circuit.
//
// Example:
//
//	resilience.WithReadyToTrip(func(counts resilience.CircuitBreakerCounts) bool {
//	    failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
//	    return counts.Requests >= 5 && failureRatio >= 0.5
//	})
func WithReadyToTrip(fn func(counts CircuitBreakerCounts) bool) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ReadyToTrip = fn
	}
}

// WithCircuitBreakerErrorClassifier sets a custom error classifier for circuit breaker decisions.
func WithCircuitBreakerErrorClassifier(classifier CircuitBreakerErrorClassifier) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.ErrorClassifier = classifier
	}
}

// WithStateChangeHandler sets a callback for circuit breaker state changes.
func WithStateChangeHandler(fn func(name string, from, to CircuitBreakerState)) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.OnStateChange = fn
	}
}

// WithCircuitBreakerLogger sets a custom logger for circuit breaker operations.
func WithCircuitBreakerLogger(logger *slog.Logger) CircuitBreakerOption {
	return func(c *CircuitBreakerConfig) {
		c.Logger = logger
	}
}

// DefaultCircuitBreakerConfig returns circuit breaker configuration tuned for a
// single upstream API called sequentially.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "resilient-client",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		OpenTimeout: 30 * time.Second,
		ReadyToTrip: func(counts CircuitBreakerCounts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		ErrorClassifier: DefaultCircuitBreakerErrorClassifier(),
		Logger:          slog.Default(),
	}
}
