package dto

import "time"

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitempty"`
}

// ErrorCode represents standard error codes.
type ErrorCode string

const (
	// ErrorCodeInvalidRequest indicates that the request contains invalid parameters or data.
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrorCodeItemNotFound indicates that the requested queue item could not be found.
	ErrorCodeItemNotFound ErrorCode = "ITEM_NOT_FOUND"
	// ErrorCodeItemAlreadyExists indicates an enqueue collided with an item already queued.
	ErrorCodeItemAlreadyExists ErrorCode = "ITEM_ALREADY_EXISTS"
	// ErrorCodeWorkerAlreadyRunning indicates a start request while the worker is active.
	ErrorCodeWorkerAlreadyRunning ErrorCode = "WORKER_ALREADY_RUNNING"
	// ErrorCodeWorkerNotRunning indicates a stop or status request with no active worker.
	ErrorCodeWorkerNotRunning ErrorCode = "WORKER_NOT_RUNNING"
	// ErrorCodeInternalError indicates an unexpected internal server error occurred.
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	// ErrorCodeServiceUnavailable indicates that the service is temporarily unavailable.
	ErrorCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(code ErrorCode, message string, details interface{}) ErrorResponse {
	return ErrorResponse{
		Error:     string(code),
		Message:   message,
		Details:   details,
		Timestamp: time.Now(),
	}
}

// ValidationError represents a validation error with field details.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// ValidationErrorDetails represents multiple validation errors.
type ValidationErrorDetails struct {
	Errors []ValidationError `json:"errors"`
}
