package dto

import "time"

// HealthResponse represents the response for health check endpoint
type HealthResponse struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the status of a dependency
type DependencyStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus represents possible health statuses
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// DependencyStatusValue represents possible dependency statuses
type DependencyStatusValue string

const (
	DependencyStatusHealthy   DependencyStatusValue = "healthy"
	DependencyStatusUnhealthy DependencyStatusValue = "unhealthy"
)

// CircuitBreakerStatusResponse is returned by GET /circuit-breaker. The
// recommendation string is operator guidance, not a machine contract.
type CircuitBreakerStatusResponse struct {
	IsHealthy      bool   `json:"isHealthy"`
	CircuitState   string `json:"circuitState"`
	FailureCount   int64  `json:"failureCount"`
	QueueSize      int64  `json:"queueSize"`
	Recommendation string `json:"recommendation"`
}

// CircuitBreakerResetRequest is the audited operator request forcing the
// breaker closed.
type CircuitBreakerResetRequest struct {
	Actor  string `json:"actor"  validate:"required,max=128"`
	Reason string `json:"reason" validate:"required,max=512"`
}

// CircuitBreakerResetResponse acknowledges a forced reset.
type CircuitBreakerResetResponse struct {
	Success       bool   `json:"success"`
	PreviousState string `json:"previousState"`
	Message       string `json:"message"`
}
