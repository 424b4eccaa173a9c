package valueobject

import "fmt"

// ItemStatus represents the current status of a queue item.
type ItemStatus string

// Item status constants.
const (
	ItemStatusPending     ItemStatus = "pending"
	ItemStatusProcessing  ItemStatus = "processing"
	ItemStatusRateLimited ItemStatus = "rate_limited"
	ItemStatusCompleted   ItemStatus = "completed"
	ItemStatusFailed      ItemStatus = "failed"
)

// validItemStatuses contains all valid item statuses.
var validItemStatuses = map[ItemStatus]bool{
	ItemStatusPending:     true,
	ItemStatusProcessing:  true,
	ItemStatusRateLimited: true,
	ItemStatusCompleted:   true,
	ItemStatusFailed:      true,
}

// NewItemStatus creates a new ItemStatus with validation.
func NewItemStatus(status string) (ItemStatus, error) {
	s := ItemStatus(status)
	if !validItemStatuses[s] {
		return "", fmt.Errorf("invalid item status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s ItemStatus) IsTerminal() bool {
	return s == ItemStatusCompleted || s == ItemStatusFailed
}

// IsClaimable returns true if items in this status may be claimed by a worker,
// subject to the resume-time gate for rate-limited and backoff-delayed items.
func (s ItemStatus) IsClaimable() bool {
	return s == ItemStatusPending || s == ItemStatusRateLimited
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s ItemStatus) CanTransitionTo(target ItemStatus) bool {
	transitions := map[ItemStatus][]ItemStatus{
		ItemStatusPending: {
			ItemStatusProcessing,
		},
		ItemStatusProcessing: {
			ItemStatusCompleted,
			ItemStatusFailed,
			ItemStatusRateLimited,
			// Requeue: retryable failure or stale-claim release.
			ItemStatusPending,
		},
		ItemStatusRateLimited: {
			ItemStatusProcessing,
			// Deferral budget exhausted.
			ItemStatusFailed,
		},
		// Terminal states cannot transition
		ItemStatusCompleted: {},
		ItemStatusFailed:    {},
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

// AllItemStatuses returns all valid item statuses.
func AllItemStatuses() []ItemStatus {
	statuses := make([]ItemStatus, 0, len(validItemStatuses))
	for status := range validItemStatuses {
		statuses = append(statuses, status)
	}
	return statuses
}
