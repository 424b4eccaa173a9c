package valueobject

import "fmt"

// WorkerStatus represents the lifecycle state of a queue worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusRunning  WorkerStatus = "running"
	WorkerStatusStopping WorkerStatus = "stopping"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// validWorkerStatuses contains all valid worker statuses.
var validWorkerStatuses = map[WorkerStatus]bool{
	WorkerStatusStarting: true,
	WorkerStatusRunning:  true,
	WorkerStatusStopping: true,
	WorkerStatusStopped:  true,
}

// NewWorkerStatus creates a new WorkerStatus with validation.
func NewWorkerStatus(status string) (WorkerStatus, error) {
	s := WorkerStatus(status)
	if !validWorkerStatuses[s] {
		return "", fmt.Errorf("invalid worker status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s WorkerStatus) String() string {
	return string(s)
}

// IsActive returns true if the worker is starting up or processing.
func (s WorkerStatus) IsActive() bool {
	return s == WorkerStatusStarting || s == WorkerStatusRunning
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s WorkerStatus) CanTransitionTo(target WorkerStatus) bool {
	transitions := map[WorkerStatus][]WorkerStatus{
		WorkerStatusStopped: {
			WorkerStatusStarting,
		},
		WorkerStatusStarting: {
			WorkerStatusRunning,
			// Startup failure goes straight back down.
			WorkerStatusStopped,
		},
		WorkerStatusRunning: {
			WorkerStatusStopping,
		},
		WorkerStatusStopping: {
			WorkerStatusStopped,
		},
	}

	validTransitions, exists := transitions[s]
	if !exists {
		return false
	}

	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}

// AllWorkerStatuses returns all valid worker statuses.
func AllWorkerStatuses() []WorkerStatus {
	statuses := make([]WorkerStatus, 0, len(validWorkerStatuses))
	for status := range validWorkerStatuses {
		statuses = append(statuses, status)
	}
	return statuses
}
