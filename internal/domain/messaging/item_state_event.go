// Package messaging provides the wire types for queue state-transition
// events. Subscribers (metrics, notifications) consume these independently of
// the worker's processing loop.
package messaging

import (
	"errors"
	"time"

	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

// EventSchemaVersion identifies the ItemStateEvent wire format.
const EventSchemaVersion = "1.0"

// ItemStateEvent records one queue item state transition. An event is
// published for every claim, completion, failure, rate-limit deferral and
// stale-claim release.
type ItemStateEvent struct {
	EventID       uuid.UUID `json:"event_id"`
	SchemaVersion string    `json:"schema_version"`
	ItemID        uuid.UUID `json:"item_id"`
	SourceType    string    `json:"source_type"`
	SourceID      string    `json:"source_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ErrorType     string    `json:"error_type,omitempty"`
	WorkerID      string    `json:"worker_id,omitempty"`
	RetryCount    int       `json:"retry_count"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewItemStateEvent creates a versioned, timestamped event for a transition.
func NewItemStateEvent(
	itemID uuid.UUID,
	sourceType string,
	sourceID string,
	fromStatus valueobject.ItemStatus,
	toStatus valueobject.ItemStatus,
	workerID string,
	retryCount int,
) ItemStateEvent {
	return ItemStateEvent{
		EventID:       uuid.New(),
		SchemaVersion: EventSchemaVersion,
		ItemID:        itemID,
		SourceType:    sourceType,
		SourceID:      sourceID,
		FromStatus:    fromStatus.String(),
		ToStatus:      toStatus.String(),
		WorkerID:      workerID,
		RetryCount:    retryCount,
		OccurredAt:    time.Now(),
	}
}

// WithErrorType attaches a failure classification to the event.
func (e ItemStateEvent) WithErrorType(errorType valueobject.ErrorType) ItemStateEvent {
	e.ErrorType = errorType.String()
	return e
}

// Validate checks the event carries the fields every subscriber relies on.
func (e ItemStateEvent) Validate() error {
	if e.EventID == uuid.Nil {
		return errors.New("event_id cannot be nil")
	}
	if e.ItemID == uuid.Nil {
		return errors.New("item_id cannot be nil")
	}
	if _, err := valueobject.NewItemStatus(e.ToStatus); err != nil {
		return err
	}
	if e.FromStatus != "" {
		if _, err := valueobject.NewItemStatus(e.FromStatus); err != nil {
			return err
		}
	}
	if e.OccurredAt.IsZero() {
		return errors.New("occurred_at is required")
	}
	return nil
}
