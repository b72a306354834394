// Package metrics exports executor and chat usage metrics to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/JohnPlummer/jobpilot/chat"
	resilience "github.com/JohnPlummer/jobpilot/resilience"
)

// Collector implements resilience.Observer and chat.UsageRecorder.
type Collector struct {
	// AttemptFailures counts failed attempts per operation and error kind
	AttemptFailures *prometheus.CounterVec

	// Operations counts finished executions per operation and result
	Operations *prometheus.CounterVec

	// AttemptsPerOperation records how many attempts each execution used
	AttemptsPerOperation *prometheus.HistogramVec

	// Tokens counts tokens consumed per model and token type
	Tokens *prometheus.CounterVec
}

var (
	_ resilience.Observer = (*Collector)(nil)
	_ chat.UsageRecorder  = (*Collector)(nil)
)

// NewCollector registers the jobpilot metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		AttemptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobpilot_attempt_failures_total",
				Help: "Total number of failed attempts",
			},
			[]string{"operation", "kind"},
		),
		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobpilot_operations_total",
				Help: "Total number of resilient operations by result",
			},
			[]string{"operation", "result"},
		),
		AttemptsPerOperation: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jobpilot_operation_attempts",
				Help:    "Attempts used per resilient operation",
				Buckets: []float64{1, 2, 3, 5, 8},
			},
			[]string{"operation"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jobpilot_chat_tokens_total",
				Help: "Total number of tokens used by chat completions",
			},
			[]string{"model", "type"},
		),
	}
}

// AttemptFailed implements resilience.Observer.
func (c *Collector) AttemptFailed(label string, attempt int, kind resilience.ErrorKind) {
	c.AttemptFailures.WithLabelValues(label, kind.String()).Inc()
}

// Completed implements resilience.Observer.
func (c *Collector) Completed(label, result string, attempts int) {
	c.Operations.WithLabelValues(label, result).Inc()
	if attempts > 0 {
		c.AttemptsPerOperation.WithLabelValues(label).Observe(float64(attempts))
	}
}

// RecordUsage implements chat.UsageRecorder.
func (c *Collector) RecordUsage(model string, usage chat.Usage) {
	c.Tokens.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	c.Tokens.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}
