package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// ErrCircuitRejected marks requests refused by an open or saturated circuit breaker.
// Rejections are never retried by the built-in classifiers.
var ErrCircuitRejected = errors.New("request rejected by circuit breaker")

// OperationError tags an error with the kind decided by the layer that detected it.
// Classify trusts this tag over any structural inspection.
type OperationError struct {
	Err  error
	Op   string
	Kind ErrorKind
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Tag wraps err with an explicit kind. It returns nil for a nil error.
//
// Example:
//
//	resp, err := httpClient.Do(req)
//	if err != nil {
//	    return nil, resilience.Tag(resilience.KindNetwork, "send request", err)
//	}
func Tag(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Err: err, Op: op, Kind: kind}
}

// Classify returns the structural kind of err.
// Rules, in priority order:
//  1. an explicit OperationError tag wins;
//  2. transport failures (connection refused/reset, DNS, socket errors) are Network;
//  3. exceeded deadlines are Timeout;
//  4. everything else is Other.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindOther
	}

	var tagged *OperationError
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindOther
	}

	if isTransportFailure(err) {
		return KindNetwork
	}

	if isDeadlineFailure(err) {
		return KindTimeout
	}

	return KindOther
}

func isTransportFailure(err error) bool {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ENETUNREACH),
		errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed):
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return !dnsErr.IsTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return !opErr.Timeout()
	}

	return false
}

func isDeadlineFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	if jperrors.IsTimeout(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsCircuitRejection reports whether err was produced by a circuit breaker refusing the request.
func IsCircuitRejection(err error) bool {
	return errors.Is(err, ErrCircuitRejected)
}

// ErrorClassifier determines whether an error should trigger a retry.
// Implement this interface to customize retry behavior for your specific error types.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a failure that should be retried.
	IsRetryable(err error) bool
}

// CircuitBreakerErrorClassifier determines whether an error should trip the circuit breaker.
// Implement this interface to customize circuit breaker behavior for your specific error types.
type CircuitBreakerErrorClassifier interface {
	// ShouldTripCircuit returns true if the error represents a failure serious enough
	// to open the circuit breaker and stop requests temporarily.
	ShouldTripCircuit(err error) bool
}

// KindClassifier retries errors whose kind is listed in Retryable.
// A nil Retryable list retries every kind.
type KindClassifier struct {
	Retryable []ErrorKind
}

// IsRetryable implements ErrorClassifier.
func (c *KindClassifier) IsRetryable(err error) bool {
	if err == nil || IsCircuitRejection(err) {
		return false
	}
	if c.Retryable == nil {
		return true
	}

	kind := Classify(err)
	for _, k := range c.Retryable {
		if k == kind {
			return true
		}
	}
	return false
}

// TransientOnly returns a classifier that retries Network and Timeout failures
// but gives up immediately on Other failures such as malformed responses.
func TransientOnly() ErrorClassifier {
	return &KindClassifier{Retryable: []ErrorKind{KindNetwork, KindTimeout}}
}

// DefaultErrorClassifier retries every kind of failure identically,
// except circuit breaker rejections.
func DefaultErrorClassifier() ErrorClassifier {
	return &KindClassifier{}
}

// HTTPStatusClassifier provides HTTP status code-based error classification.
// It classifies errors based on HTTP status codes, treating certain codes as retryable
// and others as circuit breaker trip conditions.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// Defaults to 429, 500, 502, 503, 504 if nil.
	RetryableStatuses []int

	// CircuitTripStatuses lists HTTP status codes that should trip the circuit breaker.
	// Defaults to 401, 403, 500, 502, 503, 504 if nil.
	CircuitTripStatuses []int
}

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

// NewHTTPStatusClassifier creates a new HTTPStatusClassifier with default status code mappings.
// Retryable: 429 (rate limit), 500, 502, 503, 504 (server errors)
// Circuit trip: 401, 403 (auth errors), 500, 502, 503, 504 (server errors)
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		RetryableStatuses:   []int{429, 500, 502, 503, 504},
		CircuitTripStatuses: []int{401, 403, 500, 502, 503, 504},
	}
}

// IsRetryable implements ErrorClassifier for HTTP status codes.
// Errors without a status code (transport failures, timeouts, parse failures) are retryable.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil || IsCircuitRejection(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, jperrors.ErrRateLimited) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	return containsStatus(c.getRetryableStatuses(), statusCode)
}

// ShouldTripCircuit implements CircuitBreakerErrorClassifier for HTTP status codes.
// Rate limits, timeouts and cancellations are transient and never trip the circuit.
func (c *HTTPStatusClassifier) ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, jperrors.ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.Canceled) || Classify(err) == KindTimeout {
		return false
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		// Unknown errors should trip the circuit to be safe
		return true
	}

	return containsStatus(c.getCircuitTripStatuses(), statusCode)
}

func (c *HTTPStatusClassifier) getRetryableStatuses() []int {
	if c.RetryableStatuses != nil {
		return c.RetryableStatuses
	}
	return []int{429, 500, 502, 503, 504}
}

func (c *HTTPStatusClassifier) getCircuitTripStatuses() []int {
	if c.CircuitTripStatuses != nil {
		return c.CircuitTripStatuses
	}
	return []int{401, 403, 500, 502, 503, 504}
}

// extractStatusCode returns the HTTP status code carried by err, or 0.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

func containsStatus(statuses []int, status int) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// DefaultCircuitBreakerErrorClassifier provides reasonable defaults for circuit breaker tripping.
// It trips on authentication errors (401, 403) and server errors (5xx),
// but not on rate limits or timeouts which are transient.
func DefaultCircuitBreakerErrorClassifier() CircuitBreakerErrorClassifier {
	return NewHTTPStatusClassifier()
}

// StatusCodeError wraps an error with an HTTP status code.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
// This implements the HTTPError interface.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
//
// Example:
//
//	if resp.StatusCode != http.StatusOK {
//	    return nil, resilience.NewStatusCodeError(resp.StatusCode, fmt.Errorf("unexpected status"))
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}
