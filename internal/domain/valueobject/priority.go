package valueobject

import "fmt"

// Priority represents the scheduling priority of a queue item. High-priority
// items are always claimed before lower-priority items regardless of age.
type Priority string

// Priority constants.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// validPriorities contains all valid priorities.
var validPriorities = map[Priority]bool{
	PriorityHigh:   true,
	PriorityMedium: true,
	PriorityLow:    true,
}

// NewPriority creates a new Priority with validation.
func NewPriority(priority string) (Priority, error) {
	p := Priority(priority)
	if !validPriorities[p] {
		return "", fmt.Errorf("invalid priority: %s", priority)
	}
	return p, nil
}

// String returns the string representation of the priority.
func (p Priority) String() string {
	return string(p)
}

// Rank returns the numeric claim rank of the priority. Higher ranks are
// claimed first; the ordering contract is rank descending, creation time
// ascending.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// HigherThan returns true if this priority outranks the other priority.
func (p Priority) HigherThan(other Priority) bool {
	return p.Rank() > other.Rank()
}

// AllPriorities returns all valid priorities in descending claim order.
func AllPriorities() []Priority {
	return []Priority{PriorityHigh, PriorityMedium, PriorityLow}
}
