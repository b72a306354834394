// Package chat sends prompts to an OpenAI-compatible chat completions endpoint
// through the resilience executor.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

const (
	// CompletionsPath is appended to the configured base URL.
	CompletionsPath = "/v1/chat/completions"

	// DefaultTemperature is sent with every request.
	DefaultTemperature = 0.5

	// DefaultAttemptTimeout bounds a single HTTP exchange.
	DefaultAttemptTimeout = 60 * time.Second

	// DefaultMaxAttempts is the retry budget for one prompt.
	DefaultMaxAttempts = 3

	// DefaultBaseDelay seeds the doubling backoff (waits of 2s and 4s).
	DefaultBaseDelay = time.Second

	// Fallback is returned by SendChatRequest when every attempt failed.
	// Callers reading the reply as a yes/no verdict get "false" for failures too.
	Fallback = "false"

	createdLayout = "2006-01-02 15:04:05"
	operationName = "chat completion"
)

// UsageRecorder receives token usage for every successful completion.
type UsageRecorder interface {
	RecordUsage(model string, usage Usage)
}

// Client sends prompts with retry, per-attempt timeout and an optional circuit breaker.
// It is safe for concurrent use.
type Client struct {
	cfg       Config
	transport resilience.ResilientClient[ChatRequest, *ChatResponse]
	breaker   *resilience.CircuitBreakerWrapper[ChatRequest, *ChatResponse]
	executor  *resilience.Executor
	logger    *slog.Logger
	usage     UsageRecorder
	location  *time.Location
}

type clientOptions struct {
	httpClient      *http.Client
	logger          *slog.Logger
	policy          resilience.RetryPolicy
	attemptTimeout  time.Duration
	observer        resilience.Observer
	usage           UsageRecorder
	location        *time.Location
	breakerEnabled  bool
	breakerOpts     []resilience.CircuitBreakerOption
	executorOptions []resilience.ExecutorOption
}

// Option configures a Client.
type Option func(*clientOptions)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithRetryPolicy replaces the default 3 attempt doubling policy.
func WithRetryPolicy(policy resilience.RetryPolicy) Option {
	return func(o *clientOptions) {
		o.policy = policy
	}
}

// WithAttemptTimeout replaces the 60s per-attempt deadline.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.attemptTimeout = d
	}
}

// WithObserver forwards executor notifications to observer.
func WithObserver(observer resilience.Observer) Option {
	return func(o *clientOptions) {
		o.observer = observer
	}
}

// WithUsageRecorder reports token usage of successful completions.
func WithUsageRecorder(r UsageRecorder) Option {
	return func(o *clientOptions) {
		o.usage = r
	}
}

// WithLocation sets the zone used to render the response creation time.
// Default: time.Local
func WithLocation(loc *time.Location) Option {
	return func(o *clientOptions) {
		o.location = loc
	}
}

// WithCircuitBreaker puts a circuit breaker in front of the HTTP transport.
//
// Example:
//
//	client, err := chat.NewClient(cfg,
//	    chat.WithCircuitBreaker(
//	        resilience.WithConsecutiveFailures(5),
//	        resilience.WithOpenTimeout(time.Minute),
//	    ),
//	)
func WithCircuitBreaker(opts ...resilience.CircuitBreakerOption) Option {
	return func(o *clientOptions) {
		o.breakerEnabled = true
		o.breakerOpts = append(o.breakerOpts, opts...)
	}
}

// WithExecutorOptions passes extra options to the underlying executor.
// They are applied after the client's own settings.
func WithExecutorOptions(opts ...resilience.ExecutorOption) Option {
	return func(o *clientOptions) {
		o.executorOptions = append(o.executorOptions, opts...)
	}
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chat config: %w", err)
	}

	o := &clientOptions{
		policy:         resilience.NewRetryPolicy(DefaultMaxAttempts, DefaultBaseDelay),
		attemptTimeout: DefaultAttemptTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.location == nil {
		o.location = time.Local
	}

	logger := o.logger.With("component", "chat", "model", cfg.Model)

	c := &Client{
		cfg:      cfg,
		logger:   logger,
		usage:    o.usage,
		location: o.location,
	}

	transport := &httpTransport{
		cfg:      cfg,
		client:   o.httpClient,
		logger:   logger,
		location: o.location,
	}
	c.transport = transport

	if o.breakerEnabled {
		breakerOpts := append([]resilience.CircuitBreakerOption{
			resilience.WithCircuitBreakerName("chat"),
			resilience.WithCircuitBreakerLogger(logger),
		}, o.breakerOpts...)
		c.breaker = resilience.NewCircuitBreakerWrapper[ChatRequest, *ChatResponse](transport, breakerOpts...)
		c.transport = c.breaker
	}

	execOpts := []resilience.ExecutorOption{
		resilience.WithPolicy(o.policy),
		resilience.WithAttemptTimeout(o.attemptTimeout),
		resilience.WithLogger(logger),
	}
	if o.observer != nil {
		execOpts = append(execOpts, resilience.WithObserver(o.observer))
	}
	c.executor = resilience.NewExecutor(append(execOpts, o.executorOptions...)...)

	return c, nil
}

// SendChatRequestOutcome sends content as a single user message and returns the
// parsed response or the classified failure.
func (c *Client) SendChatRequestOutcome(ctx context.Context, content string) resilience.Outcome[*ChatResponse] {
	req := newRequest(c.cfg.Model, content)

	outcome := resilience.ExecuteClient(ctx, c.executor, operationName, c.transport, req)
	if resp := outcome.Value(); outcome.OK() {
		c.logger.Info("chat request completed",
			"request_id", resp.RequestID,
			"created", resp.CreatedAt.In(c.location).Format(createdLayout),
			"response_model", resp.Model,
			"prompt_tokens", resp.Usage.PromptTokens,
			"completion_tokens", resp.Usage.CompletionTokens,
			"total_tokens", resp.Usage.TotalTokens)
		if c.usage != nil {
			c.usage.RecordUsage(resp.Model, resp.Usage)
		}
	}
	return outcome
}

// SendChatRequest returns the reply content, or Fallback when the request failed.
func (c *Client) SendChatRequest(ctx context.Context, content string) string {
	outcome := c.SendChatRequestOutcome(ctx, content)
	if f := outcome.Failure(); f != nil {
		c.logger.Warn("chat request failed, using fallback reply",
			"attempts", f.Attempt,
			"kind", f.Kind.String(),
			"fallback", Fallback,
			"error", f.Message)
		return Fallback
	}
	return outcome.Value().Content
}

// Health reports the circuit breaker status. ok is false when no breaker is configured.
func (c *Client) Health() (status resilience.HealthStatus, ok bool) {
	if c.breaker == nil {
		return resilience.HealthStatus{}, false
	}
	return c.breaker.GetHealth(), true
}

// Stats returns the executor statistics for this client.
func (c *Client) Stats() resilience.ExecutorStats {
	return c.executor.Stats()
}
