package inbound

import (
	"context"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/domain/valueobject"
	"embedqueue/internal/port/outbound"

	"github.com/google/uuid"
)

// WorkerControl defines the inbound port for the worker lifecycle. Start and
// Stop drive the state machine; Status reports without mutating it.
type WorkerControl interface {
	// Start moves the worker from stopped to running. Returns
	// domainerrors.AlreadyRunningError when the worker is starting or
	// running.
	Start(ctx context.Context) (*dto.WorkerStartResponse, error)

	// Stop drains in-flight items and moves the worker to stopped. Stopping
	// an already stopped worker succeeds and reports the final stats.
	Stop(ctx context.Context) (*dto.WorkerStopResponse, error)

	// Status reports the current lifecycle state and counters.
	Status(ctx context.Context) (*dto.WorkerStatusResponse, error)
}

// TaskQueueStatus is the snapshot returned by TaskManager.QueueStatus.
type TaskQueueStatus struct {
	TotalTasks     int            `json:"totalTasks"`
	IsProcessing   bool           `json:"isProcessing"`
	PriorityCounts map[string]int `json:"priorityCounts"`
}

// TaskManager defines the inbound port for the in-process task queue used by
// callers that bypass the durable queue. Tasks are executed in priority order
// under a bounded concurrency budget.
type TaskManager interface {
	// AddTask enqueues an embedding request for in-process dispatch and
	// returns its task ID. Adding while paused is allowed; the task waits
	// until processing resumes.
	AddTask(priority valueobject.Priority, request outbound.EmbeddingRequest) (uuid.UUID, error)

	// Pause stops dispatching queued tasks. In-flight tasks run to
	// completion.
	Pause()

	// Resume restarts dispatch for queued tasks.
	Resume()

	// ClearAllTasks drops every queued task and returns how many were
	// dropped. In-flight tasks are not interrupted.
	ClearAllTasks() int

	// QueueStatus reports queue depth, paused state, and per-priority
	// counts.
	QueueStatus() TaskQueueStatus
}
