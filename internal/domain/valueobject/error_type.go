package valueobject

import "fmt"

// ErrorType classifies a per-item processing failure. The classification
// drives retry accounting: rate limiting is scheduled rather than retried and
// never consumes the item's retry budget.
type ErrorType string

// Error type constants.
const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeRateLimited ErrorType = "rate_limited"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeCircuitOpen ErrorType = "circuit_open"
	ErrorTypeDeadLetter  ErrorType = "dead_letter"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// validErrorTypes contains all valid error types.
var validErrorTypes = map[ErrorType]bool{
	ErrorTypeValidation:  true,
	ErrorTypeRateLimited: true,
	ErrorTypeTimeout:     true,
	ErrorTypeNetwork:     true,
	ErrorTypeCircuitOpen: true,
	ErrorTypeDeadLetter:  true,
	ErrorTypeUnknown:     true,
}

// NewErrorType creates a new ErrorType with validation.
func NewErrorType(errorType string) (ErrorType, error) {
	e := ErrorType(errorType)
	if !validErrorTypes[e] {
		return "", fmt.Errorf("invalid error type: %s", errorType)
	}
	return e, nil
}

// String returns the string representation of the error type.
func (e ErrorType) String() string {
	return string(e)
}

// CountsAgainstRetryBudget returns true if a failure of this type increments
// the item's retry count. Rate limiting schedules a deferral instead, and
// validation failures are rejected before an item is ever queued.
func (e ErrorType) CountsAgainstRetryBudget() bool {
	switch e {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeCircuitOpen, ErrorTypeUnknown:
		return true
	case ErrorTypeValidation, ErrorTypeRateLimited, ErrorTypeDeadLetter:
		return false
	default:
		return false
	}
}

// IsRetryable returns true if an item failing with this type may be attempted
// again, budget permitting.
func (e ErrorType) IsRetryable() bool {
	switch e {
	case ErrorTypeRateLimited, ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeCircuitOpen, ErrorTypeUnknown:
		return true
	case ErrorTypeValidation, ErrorTypeDeadLetter:
		return false
	default:
		return false
	}
}

// AllErrorTypes returns all valid error types.
func AllErrorTypes() []ErrorType {
	types := make([]ErrorType, 0, len(validErrorTypes))
	for errorType := range validErrorTypes {
		types = append(types, errorType)
	}
	return types
}
