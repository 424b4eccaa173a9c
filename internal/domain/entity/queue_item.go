package entity

import (
	"encoding/json"
	"time"

	"embedqueue/internal/domain/valueobject"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry budget applied when a producer does not
// specify one at enqueue time.
const DefaultMaxRetries = 3

// QueueItem represents one unit of embedding work with durable state. Items
// are mutated only by the worker that claimed them; claim exclusivity is
// enforced by the store's atomic claim operation.
type QueueItem struct {
	id             uuid.UUID
	sourceType     string
	sourceID       string
	operation      valueobject.Operation
	priority       valueobject.Priority
	status         valueobject.ItemStatus
	retryCount     int
	maxRetries     int
	rateLimitCount int
	errorMessage   *string
	errorType      *valueobject.ErrorType
	metadata       json.RawMessage
	claimedBy      *string
	claimedAt      *time.Time
	resumeAt       *time.Time
	processedAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewQueueItem creates a new pending QueueItem. Returns a validation error if
// the source reference is incomplete; such items are never queued.
func NewQueueItem(
	sourceType string,
	sourceID string,
	operation valueobject.Operation,
	priority valueobject.Priority,
	metadata json.RawMessage,
	maxRetries int,
) (*QueueItem, error) {
	if sourceType == "" {
		return nil, NewDomainError("source type is required", "MISSING_SOURCE_TYPE")
	}
	if sourceID == "" {
		return nil, NewDomainError("source id is required", "MISSING_SOURCE_ID")
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	now := time.Now()
	return &QueueItem{
		id:         uuid.New(),
		sourceType: sourceType,
		sourceID:   sourceID,
		operation:  operation,
		priority:   priority,
		status:     valueobject.ItemStatusPending,
		maxRetries: maxRetries,
		metadata:   metadata,
		createdAt:  now,
		updatedAt:  now,
	}, nil
}

// RestoreQueueItem creates a QueueItem entity from stored data.
func RestoreQueueItem(
	id uuid.UUID,
	sourceType string,
	sourceID string,
	operation valueobject.Operation,
	priority valueobject.Priority,
	status valueobject.ItemStatus,
	retryCount int,
	maxRetries int,
	rateLimitCount int,
	errorMessage *string,
	errorType *valueobject.ErrorType,
	metadata json.RawMessage,
	claimedBy *string,
	claimedAt *time.Time,
	resumeAt *time.Time,
	processedAt *time.Time,
	createdAt time.Time,
	updatedAt time.Time,
) *QueueItem {
	return &QueueItem{
		id:             id,
		sourceType:     sourceType,
		sourceID:       sourceID,
		operation:      operation,
		priority:       priority,
		status:         status,
		retryCount:     retryCount,
		maxRetries:     maxRetries,
		rateLimitCount: rateLimitCount,
		errorMessage:   errorMessage,
		errorType:      errorType,
		metadata:       metadata,
		claimedBy:      claimedBy,
		claimedAt:      claimedAt,
		resumeAt:       resumeAt,
		processedAt:    processedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the item ID.
func (i *QueueItem) ID() uuid.UUID {
	return i.id
}

// SourceType returns the type of the source row needing embedding.
func (i *QueueItem) SourceType() string {
	return i.sourceType
}

// SourceID returns the identifier of the source row needing embedding.
func (i *QueueItem) SourceID() string {
	return i.sourceID
}

// Operation returns the semantic hint for the embedding call.
func (i *QueueItem) Operation() valueobject.Operation {
	return i.operation
}

// Priority returns the scheduling priority.
func (i *QueueItem) Priority() valueobject.Priority {
	return i.priority
}

// Status returns the current item status.
func (i *QueueItem) Status() valueobject.ItemStatus {
	return i.status
}

// RetryCount returns the number of budget-consuming failures so far.
func (i *QueueItem) RetryCount() int {
	return i.retryCount
}

// MaxRetries returns the item's retry budget.
func (i *QueueItem) MaxRetries() int {
	return i.maxRetries
}

// RateLimitCount returns the number of rate-limit deferrals so far.
func (i *QueueItem) RateLimitCount() int {
	return i.rateLimitCount
}

// ErrorMessage returns the last failure message, if any.
func (i *QueueItem) ErrorMessage() *string {
	return i.errorMessage
}

// ErrorType returns the last failure classification, if any.
func (i *QueueItem) ErrorType() *valueobject.ErrorType {
	return i.errorType
}

// Metadata returns the opaque payload passed through to the embedding call.
func (i *QueueItem) Metadata() json.RawMessage {
	return i.metadata
}

// ClaimedBy returns the ID of the worker holding the item, if any.
func (i *QueueItem) ClaimedBy() *string {
	return i.claimedBy
}

// ClaimedAt returns when the item was claimed, if it is claimed.
func (i *QueueItem) ClaimedAt() *time.Time {
	return i.claimedAt
}

// ResumeAt returns the earliest time the item becomes claimable again.
func (i *QueueItem) ResumeAt() *time.Time {
	return i.resumeAt
}

// ProcessedAt returns when the item reached a terminal state.
func (i *QueueItem) ProcessedAt() *time.Time {
	return i.processedAt
}

// CreatedAt returns the creation timestamp.
func (i *QueueItem) CreatedAt() time.Time {
	return i.createdAt
}

// UpdatedAt returns the last update timestamp.
func (i *QueueItem) UpdatedAt() time.Time {
	return i.updatedAt
}

// IsTerminal returns true if the item is in a terminal state.
func (i *QueueItem) IsTerminal() bool {
	return i.status.IsTerminal()
}

// IsClaimEligible returns true if the item may be claimed at the given time.
func (i *QueueItem) IsClaimEligible(now time.Time) bool {
	if !i.status.IsClaimable() {
		return false
	}
	return i.resumeAt == nil || !now.Before(*i.resumeAt)
}

// MarkProcessing assigns the item to a worker. Valid from pending and from
// rate_limited once the resume gate has elapsed.
func (i *QueueItem) MarkProcessing(workerID string) error {
	if workerID == "" {
		return NewDomainError("worker id is required to claim an item", "MISSING_WORKER_ID")
	}
	if !i.status.CanTransitionTo(valueobject.ItemStatusProcessing) {
		return NewDomainError("cannot claim item in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	i.status = valueobject.ItemStatusProcessing
	i.claimedBy = &workerID
	i.claimedAt = &now
	i.resumeAt = nil
	i.updatedAt = now
	return nil
}

// Complete marks the item as successfully embedded. Completing an already
// completed item is a no-op so that duplicate acknowledgements are harmless.
func (i *QueueItem) Complete() error {
	if i.status == valueobject.ItemStatusCompleted {
		return nil
	}
	if !i.status.CanTransitionTo(valueobject.ItemStatusCompleted) {
		return NewDomainError("cannot complete item in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	i.status = valueobject.ItemStatusCompleted
	i.processedAt = &now
	i.claimedBy = nil
	i.claimedAt = nil
	i.resumeAt = nil
	i.errorMessage = nil
	i.errorType = nil
	i.updatedAt = now
	return nil
}

// RecordFailure applies a budget-consuming failure. When the retry budget is
// exhausted the item dead-letters (terminal failed); otherwise it returns to
// pending with an exponential backoff gate of backoffBase doubled per retry,
// capped at backoffCap. Returns true if the item dead-lettered.
func (i *QueueItem) RecordFailure(
	errorType valueobject.ErrorType,
	message string,
	backoffBase time.Duration,
	backoffCap time.Duration,
) (bool, error) {
	if !i.status.CanTransitionTo(valueobject.ItemStatusFailed) {
		return false, NewDomainError("cannot fail item in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	i.errorMessage = &message
	i.errorType = &errorType
	i.retryCount++
	i.updatedAt = now

	if i.retryCount > i.maxRetries {
		i.status = valueobject.ItemStatusFailed
		i.processedAt = &now
		i.claimedBy = nil
		i.claimedAt = nil
		i.resumeAt = nil
		return true, nil
	}

	resume := now.Add(backoffDelay(backoffBase, backoffCap, i.retryCount))
	i.status = valueobject.ItemStatusPending
	i.claimedBy = nil
	i.claimedAt = nil
	i.resumeAt = &resume
	return false, nil
}

// MarkRateLimited defers the item until resumeAt without consuming its retry
// budget. Each deferral counts toward maxDeferrals; exceeding the deferral
// budget dead-letters the item instead of queueing another deferral. Returns
// true if the item dead-lettered.
func (i *QueueItem) MarkRateLimited(resumeAt time.Time, maxDeferrals int) (bool, error) {
	if !i.status.CanTransitionTo(valueobject.ItemStatusRateLimited) {
		return false, NewDomainError("cannot rate-limit item in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	i.rateLimitCount++
	i.updatedAt = now

	if maxDeferrals > 0 && i.rateLimitCount > maxDeferrals {
		message := "rate limit deferral budget exhausted"
		errorType := valueobject.ErrorTypeRateLimited
		i.status = valueobject.ItemStatusFailed
		i.errorMessage = &message
		i.errorType = &errorType
		i.processedAt = &now
		i.claimedBy = nil
		i.claimedAt = nil
		i.resumeAt = nil
		return true, nil
	}

	errorType := valueobject.ErrorTypeRateLimited
	i.status = valueobject.ItemStatusRateLimited
	i.errorType = &errorType
	i.claimedBy = nil
	i.claimedAt = nil
	i.resumeAt = &resumeAt
	return false, nil
}

// ReleaseClaim returns a processing item to pending without touching its
// retry accounting. Used by the liveness sweep when the owning worker has
// stopped heartbeating.
func (i *QueueItem) ReleaseClaim() error {
	if i.status != valueobject.ItemStatusProcessing {
		return NewDomainError("cannot release an item that is not processing", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	i.status = valueobject.ItemStatusPending
	i.claimedBy = nil
	i.claimedAt = nil
	i.resumeAt = nil
	i.updatedAt = now
	return nil
}

// Equal compares two QueueItem entities by identity.
func (i *QueueItem) Equal(other *QueueItem) bool {
	if other == nil {
		return false
	}
	return i.id == other.id
}

// backoffDelay doubles the base delay per retry, capped at maxDelay.
func backoffDelay(base, maxDelay time.Duration, retryCount int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for attempt := 0; attempt < retryCount; attempt++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
