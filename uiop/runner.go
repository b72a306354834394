package uiop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

const (
	// DefaultMaxAttempts is the retry budget for lookups and clicks.
	DefaultMaxAttempts = 3

	// DefaultRetryDelay is the fixed wait between UI attempts.
	DefaultRetryDelay = time.Second

	// DefaultPollInterval is how often WaitClickable re-checks an element.
	DefaultPollInterval = 200 * time.Millisecond
)

// Operation labels reported to the executor. Locators stay out of them so an
// observer's label set is fixed; they are logged as attributes instead.
const (
	opFindElement = "find element"
	opClick       = "click"
)

// DefaultPolicy returns the UI retry policy: 3 attempts, 1s apart.
func DefaultPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultRetryDelay,
		Backoff:     resilience.Constant(DefaultRetryDelay),
	}
}

// Runner performs element lookups and clicks with retry.
type Runner struct {
	driver       Driver
	executor     *resilience.Executor
	logger       *slog.Logger
	pollInterval time.Duration
}

type runnerOptions struct {
	logger          *slog.Logger
	policy          resilience.RetryPolicy
	pollInterval    time.Duration
	observer        resilience.Observer
	executorOptions []resilience.ExecutorOption
}

// Option configures a Runner.
type Option func(*runnerOptions)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runnerOptions) {
		o.logger = logger
	}
}

// WithPolicy replaces the default UI retry policy.
func WithPolicy(policy resilience.RetryPolicy) Option {
	return func(o *runnerOptions) {
		o.policy = policy
	}
}

// WithPollInterval sets how often WaitClickable polls.
func WithPollInterval(d time.Duration) Option {
	return func(o *runnerOptions) {
		o.pollInterval = d
	}
}

// WithObserver forwards executor notifications to observer.
func WithObserver(observer resilience.Observer) Option {
	return func(o *runnerOptions) {
		o.observer = observer
	}
}

// WithExecutorOptions passes extra options to the underlying executor.
func WithExecutorOptions(opts ...resilience.ExecutorOption) Option {
	return func(o *runnerOptions) {
		o.executorOptions = append(o.executorOptions, opts...)
	}
}

// NewRunner returns a runner driving driver.
func NewRunner(driver Driver, opts ...Option) *Runner {
	o := &runnerOptions{
		policy:       DefaultPolicy(),
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.pollInterval <= 0 {
		o.pollInterval = DefaultPollInterval
	}

	logger := o.logger.With("component", "uiop")
	execOpts := []resilience.ExecutorOption{
		resilience.WithPolicy(o.policy),
		resilience.WithLogger(logger),
	}
	if o.observer != nil {
		execOpts = append(execOpts, resilience.WithObserver(o.observer))
	}

	return &Runner{
		driver:       driver,
		executor:     resilience.NewExecutor(append(execOpts, o.executorOptions...)...),
		logger:       logger,
		pollInterval: o.pollInterval,
	}
}

// FindElement looks loc up, retrying on failure. ok is false once the budget is spent.
func (r *Runner) FindElement(ctx context.Context, loc Locator) (el Element, ok bool) {
	outcome := resilience.Execute(ctx, r.executor, opFindElement, func(ctx context.Context) (Element, error) {
		return r.find(ctx, loc)
	})
	if f := outcome.Failure(); f != nil {
		r.logger.Error("element not found",
			"locator", loc.String(),
			"attempts", f.Attempt,
			"error", f.Message)
		return nil, false
	}
	return outcome.Value(), true
}

// Click finds loc and clicks it once it is visible and enabled, retrying on failure.
func (r *Runner) Click(ctx context.Context, loc Locator) bool {
	outcome := resilience.Execute(ctx, r.executor, opClick, func(ctx context.Context) (struct{}, error) {
		el, err := r.find(ctx, loc)
		if err != nil {
			return struct{}{}, err
		}
		ready, err := clickable(ctx, el)
		if err != nil {
			return struct{}{}, err
		}
		if !ready {
			return struct{}{}, resilience.Tag(resilience.KindOther, "click "+loc.String(), ErrNotInteractable)
		}
		if err := el.Click(ctx); err != nil {
			return struct{}{}, fmt.Errorf("click %s: %w", loc, err)
		}
		return struct{}{}, nil
	})
	if f := outcome.Failure(); f != nil {
		r.logger.Error("click failed",
			"locator", loc.String(),
			"attempts", f.Attempt,
			"error", f.Message)
		return false
	}
	return true
}

// WaitClickable polls loc until it is visible and enabled or timeout elapses.
func (r *Runner) WaitClickable(ctx context.Context, loc Locator, timeout time.Duration) bool {
	outcome := resilience.CallWithTimeout(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		ticker := time.NewTicker(r.pollInterval)
		defer ticker.Stop()

		for {
			if el, err := r.driver.FindElement(ctx, loc); err == nil {
				if ready, err := clickable(ctx, el); err == nil && ready {
					return struct{}{}, nil
				}
			}

			select {
			case <-ctx.Done():
				return struct{}{}, ctx.Err()
			case <-ticker.C:
			}
		}
	})
	if f := outcome.Failure(); f != nil {
		r.logger.Error("element did not become clickable",
			"locator", loc.String(),
			"timeout", timeout,
			"kind", f.Kind.String(),
			"error", f.Message)
		return false
	}
	return true
}

// ExecuteScript runs script once. Failures are logged and reported as ok=false.
func (r *Runner) ExecuteScript(ctx context.Context, script string, args ...any) (result any, ok bool) {
	ok = r.executor.RunSafely("execute script", func() error {
		v, err := r.driver.ExecuteScript(ctx, script, args...)
		if err != nil {
			return fmt.Errorf("script %q: %w", truncate(script, 80), err)
		}
		result = v
		return nil
	})
	return result, ok
}

// PageContainsText reports whether the current page source contains text.
// A page that cannot be read counts as not containing it.
func (r *Runner) PageContainsText(ctx context.Context, text string) bool {
	found := false
	r.executor.LogAndContinue("read page source", func() error {
		source, err := r.driver.PageSource(ctx)
		if err != nil {
			return err
		}
		found = strings.Contains(source, text)
		return nil
	}, nil)
	return found
}

func (r *Runner) find(ctx context.Context, loc Locator) (Element, error) {
	el, err := r.driver.FindElement(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", loc, err)
	}
	return el, nil
}

func clickable(ctx context.Context, el Element) (bool, error) {
	displayed, err := el.Displayed(ctx)
	if err != nil || !displayed {
		return false, err
	}
	return el.Enabled(ctx)
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
