package resilience

// HealthStatus is a snapshot of a circuit breaker guarding an upstream dependency.
type HealthStatus struct {
	// Name identifies the breaker.
	Name string `json:"name"`

	// Healthy is true for closed and half-open states, false for open state.
	Healthy bool `json:"healthy"`

	// State is "closed", "half-open", "open" or "unknown".
	State string `json:"state"`

	Requests             uint32 `json:"requests"`
	TotalSuccesses       uint32 `json:"total_successes"`
	TotalFailures        uint32 `json:"total_failures"`
	ConsecutiveFailures  uint32 `json:"consecutive_failures"`
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

func newHealthStatus(name string, state CircuitBreakerState, counts CircuitBreakerCounts) HealthStatus {
	return HealthStatus{
		Name: name,
		// Half-open is degraded but still lets probes through
		Healthy:              state == StateClosed || state == StateHalfOpen,
		State:                state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}
