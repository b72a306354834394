// Package resilience provides the retry, backoff, timeout and error classification
// core that every network call and UI interaction in jobpilot passes through.
// Failures are returned as typed outcomes instead of being raised, so callers can
// branch on the error kind or fall back to a safe value.
package resilience

import (
	"context"
)

// Operation is a unit of work executed with resilience. Implementations should
// honour ctx cancellation; the timeout adapter relies on it to stop work.
type Operation[T any] func(ctx context.Context) (T, error)

// ResilientClient defines a generic interface for executing requests with retry and circuit breaker support.
// Type parameters Req and Resp can be any types, making this suitable for HTTP transports,
// browser drivers, or any other operation that needs resilience patterns.
//
// Example:
//
//	type chatTransport struct {
//	    client *http.Client
//	}
//
//	func (t *chatTransport) Execute(ctx context.Context, req chat.ChatRequest) (*chat.ChatResponse, error) {
//	    ...
//	}
//
//	outcome := resilience.ExecuteClient(ctx, executor, "chat completion", transport, req)
type ResilientClient[Req, Resp any] interface {
	// Execute performs a request and returns a response or error.
	// The context should be used to control timeouts and cancellation.
	Execute(ctx context.Context, req Req) (Resp, error)
}

// ExecuteClient runs a single request against client through the executor.
func ExecuteClient[Req, Resp any](
	ctx context.Context,
	e *Executor,
	label string,
	client ResilientClient[Req, Resp],
	req Req,
) Outcome[Resp] {
	return Execute(ctx, e, label, func(ctx context.Context) (Resp, error) {
		return client.Execute(ctx, req)
	})
}
