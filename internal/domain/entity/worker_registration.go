package entity

import (
	"fmt"
	"time"

	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

// WorkerConfigSnapshot captures the configuration a worker registered with.
// Stored alongside the registry record so operators can see how a fleet is
// tuned without inspecting each process.
type WorkerConfigSnapshot struct {
	BatchSize         int           `json:"batch_size"`
	PollInterval      time.Duration `json:"poll_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	ItemTimeout       time.Duration `json:"item_timeout"`
	Concurrency       int           `json:"concurrency"`
}

// WorkerRegistration is the durable registry record for one worker process.
// It is created on start, updated on every heartbeat and outcome, and marked
// stopped on clean shutdown. Workers whose heartbeats lapse are treated as
// dead by the liveness sweep.
type WorkerRegistration struct {
	workerID            string
	status              valueobject.WorkerStatus
	lastHeartbeat       time.Time
	tasksProcessed      int64
	totalProcessingTime time.Duration
	errorCount          int64
	rateLimitCount      int64
	config              WorkerConfigSnapshot
	startedAt           time.Time
	stoppedAt           *time.Time
}

// GenerateWorkerID produces a unique worker identifier.
func GenerateWorkerID() string {
	return fmt.Sprintf("worker-%s", uuid.New().String())
}

// NewWorkerRegistration creates a registry record for a starting worker.
func NewWorkerRegistration(workerID string, config WorkerConfigSnapshot) (*WorkerRegistration, error) {
	if workerID == "" {
		return nil, NewDomainError("worker id is required", "MISSING_WORKER_ID")
	}

	now := time.Now()
	return &WorkerRegistration{
		workerID:      workerID,
		status:        valueobject.WorkerStatusStarting,
		lastHeartbeat: now,
		config:        config,
		startedAt:     now,
	}, nil
}

// RestoreWorkerRegistration creates a WorkerRegistration from stored data.
func RestoreWorkerRegistration(
	workerID string,
	status valueobject.WorkerStatus,
	lastHeartbeat time.Time,
	tasksProcessed int64,
	totalProcessingTime time.Duration,
	errorCount int64,
	rateLimitCount int64,
	config WorkerConfigSnapshot,
	startedAt time.Time,
	stoppedAt *time.Time,
) *WorkerRegistration {
	return &WorkerRegistration{
		workerID:            workerID,
		status:              status,
		lastHeartbeat:       lastHeartbeat,
		tasksProcessed:      tasksProcessed,
		totalProcessingTime: totalProcessingTime,
		errorCount:          errorCount,
		rateLimitCount:      rateLimitCount,
		config:              config,
		startedAt:           startedAt,
		stoppedAt:           stoppedAt,
	}
}

// WorkerID returns the worker identifier.
func (w *WorkerRegistration) WorkerID() string {
	return w.workerID
}

// Status returns the worker lifecycle status.
func (w *WorkerRegistration) Status() valueobject.WorkerStatus {
	return w.status
}

// LastHeartbeat returns the most recent heartbeat time.
func (w *WorkerRegistration) LastHeartbeat() time.Time {
	return w.lastHeartbeat
}

// TasksProcessed returns the number of items this worker has resolved.
func (w *WorkerRegistration) TasksProcessed() int64 {
	return w.tasksProcessed
}

// TotalProcessingTime returns cumulative item processing time.
func (w *WorkerRegistration) TotalProcessingTime() time.Duration {
	return w.totalProcessingTime
}

// ErrorCount returns the number of failed item outcomes.
func (w *WorkerRegistration) ErrorCount() int64 {
	return w.errorCount
}

// RateLimitCount returns the rolling count of rate-limit deferrals scheduled
// by this worker.
func (w *WorkerRegistration) RateLimitCount() int64 {
	return w.rateLimitCount
}

// Config returns the configuration snapshot the worker registered with.
func (w *WorkerRegistration) Config() WorkerConfigSnapshot {
	return w.config
}

// StartedAt returns when the worker registered.
func (w *WorkerRegistration) StartedAt() time.Time {
	return w.startedAt
}

// StoppedAt returns when the worker cleanly stopped, if it has.
func (w *WorkerRegistration) StoppedAt() *time.Time {
	return w.stoppedAt
}

// MarkRunning transitions the worker from starting to running.
func (w *WorkerRegistration) MarkRunning() error {
	if !w.status.CanTransitionTo(valueobject.WorkerStatusRunning) {
		return NewDomainError("cannot mark worker running in current status", "INVALID_STATUS_TRANSITION")
	}
	w.status = valueobject.WorkerStatusRunning
	w.lastHeartbeat = time.Now()
	return nil
}

// MarkStopping transitions the worker into its drain phase.
func (w *WorkerRegistration) MarkStopping() error {
	if !w.status.CanTransitionTo(valueobject.WorkerStatusStopping) {
		return NewDomainError("cannot mark worker stopping in current status", "INVALID_STATUS_TRANSITION")
	}
	w.status = valueobject.WorkerStatusStopping
	return nil
}

// MarkStopped records a clean shutdown.
func (w *WorkerRegistration) MarkStopped() error {
	if !w.status.CanTransitionTo(valueobject.WorkerStatusStopped) {
		return NewDomainError("cannot mark worker stopped in current status", "INVALID_STATUS_TRANSITION")
	}
	now := time.Now()
	w.status = valueobject.WorkerStatusStopped
	w.stoppedAt = &now
	return nil
}

// RecordHeartbeat refreshes the liveness timestamp.
func (w *WorkerRegistration) RecordHeartbeat() {
	w.lastHeartbeat = time.Now()
}

// RecordOutcome folds one item outcome into the worker's counters.
func (w *WorkerRegistration) RecordOutcome(duration time.Duration, errored bool, rateLimited bool) {
	w.tasksProcessed++
	w.totalProcessingTime += duration
	if errored {
		w.errorCount++
	}
	if rateLimited {
		w.rateLimitCount++
	}
}

// IsStale reports whether the worker's heartbeat predates the staleness
// cutoff. Stopped workers are never stale.
func (w *WorkerRegistration) IsStale(staleBefore time.Time) bool {
	if w.status == valueobject.WorkerStatusStopped {
		return false
	}
	return w.lastHeartbeat.Before(staleBefore)
}
