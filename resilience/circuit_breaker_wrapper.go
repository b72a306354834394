package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	jperrors "github.com/JohnPlummer/jp-go-errors"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerWrapper wraps a ResilientClient with circuit breaker functionality.
// It tracks failures and opens the circuit when too many failures occur,
// so a dead upstream costs one fast rejection per call instead of a full retry budget.
type CircuitBreakerWrapper[Req, Resp any] struct {
	client     ResilientClient[Req, Resp]
	cb         *gobreaker.CircuitBreaker[Resp]
	logger     *slog.Logger
	classifier CircuitBreakerErrorClassifier
}

// NewCircuitBreakerWrapper creates a new circuit breaker wrapper around a ResilientClient.
//
// Example:
//
//	wrapper := resilience.NewCircuitBreakerWrapper(
//	    transport,
//	    resilience.WithCircuitBreakerName("chat"),
//	    resilience.WithOpenTimeout(time.Minute),
//	)
func NewCircuitBreakerWrapper[Req, Resp any](
	client ResilientClient[Req, Resp],
	opts ...CircuitBreakerOption,
) *CircuitBreakerWrapper[Req, Resp] {
	config := DefaultCircuitBreakerConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultCircuitBreakerErrorClassifier()
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = DefaultCircuitBreakerConfig().ReadyToTrip
	}

	classifier := config.ErrorClassifier

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return config.ReadyToTrip(convertGobreakerCounts(counts))
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			config.Logger.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, convertGobreakerState(from), convertGobreakerState(to))
			}
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Errors that should not trip the circuit do not count as failures
			return !classifier.ShouldTripCircuit(err)
		},
	}

	return &CircuitBreakerWrapper[Req, Resp]{
		client:     client,
		cb:         gobreaker.NewCircuitBreaker[Resp](settings),
		logger:     config.Logger,
		classifier: classifier,
	}
}

// Execute executes the request through the circuit breaker.
// If the circuit is open, requests are rejected immediately without calling the underlying client.
// Rejections wrap ErrCircuitRejected together with a jp-go-errors circuit breaker error.
func (w *CircuitBreakerWrapper[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	var zero Resp

	resp, err := w.cb.Execute(func() (Resp, error) {
		return w.client.Execute(ctx, req)
	})
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		w.logger.Warn("circuit breaker is open, request rejected",
			"name", w.cb.Name(),
			"error", err)
		return zero, w.rejection(err, "request rejected", "open")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		w.logger.Debug("circuit breaker in half-open state, too many requests",
			"name", w.cb.Name(),
			"error", err)
		return zero, w.rejection(err, "too many requests in half-open state", "half-open")
	default:
		w.logger.Debug("request failed through circuit breaker",
			"error", err,
			"should_trip", w.classifier.ShouldTripCircuit(err))
		return zero, err
	}
}

func (w *CircuitBreakerWrapper[Req, Resp]) rejection(cause error, msg, state string) error {
	counts := w.cb.Counts()
	cbErr := jperrors.NewCircuitBreakerError(
		fmt.Sprintf("%s (requests=%d consecutive_failures=%d)", msg, counts.Requests, counts.ConsecutiveFailures),
		"execute",
		state,
		jperrors.WithCause(cause),
		jperrors.WithComponent(w.cb.Name()),
	)
	return fmt.Errorf("%w: %w", ErrCircuitRejected, cbErr)
}

// State returns the current state of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) State() CircuitBreakerState {
	return convertGobreakerState(w.cb.State())
}

// Counts returns the current counts of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) Counts() CircuitBreakerCounts {
	return convertGobreakerCounts(w.cb.Counts())
}

// GetHealth returns the health status of the circuit breaker.
func (w *CircuitBreakerWrapper[Req, Resp]) GetHealth() HealthStatus {
	return newHealthStatus(w.cb.Name(), w.State(), w.Counts())
}

func convertGobreakerCounts(counts gobreaker.Counts) CircuitBreakerCounts {
	return CircuitBreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func convertGobreakerState(state gobreaker.State) CircuitBreakerState {
	switch state {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}
