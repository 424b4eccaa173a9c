package common

import "fmt"

// ServiceError represents a service-level error with context
type ServiceError struct {
	Operation string
	Cause     error
}

// Error implements the error interface
func (e ServiceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// WrapServiceError wraps an error with service operation context
func WrapServiceError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return ServiceError{
		Operation: operation,
		Cause:     err,
	}
}

// Common error operations for consistent messaging
const (
	OpEnqueueItem        = "enqueue queue item"
	OpRetrieveItem       = "retrieve queue item"
	OpSaveItem           = "save queue item"
	OpClaimBatch         = "claim item batch"
	OpCompleteItem       = "complete queue item"
	OpFailItem           = "record item failure"
	OpDeferItem          = "defer rate-limited item"
	OpReleaseClaims      = "release stale claims"
	OpQueueDepth         = "read queue depth"
	OpRegisterWorker     = "register worker"
	OpUpdateWorker       = "update worker registration"
	OpHeartbeatWorker    = "record worker heartbeat"
	OpFindStaleWorkers   = "find stale workers"
	OpStopWorker         = "mark worker stopped"
	OpRecordOutcome      = "record outcome event"
	OpAggregateRollup    = "aggregate metrics rollup"
	OpRetrieveRollups    = "retrieve metrics rollups"
	OpPublishStateEvent  = "publish item state event"
	OpGenerateEmbeddings = "generate embeddings"
)
