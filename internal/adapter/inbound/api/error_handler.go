package api

import (
	"errors"
	"net/http"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"
)

// ErrorHandler defines methods for handling HTTP errors.
type ErrorHandler interface {
	HandleValidationError(w http.ResponseWriter, r *http.Request, err error)
	HandleServiceError(w http.ResponseWriter, r *http.Request, err error)
}

// errorMapping binds one domain error to its HTTP response.
type errorMapping struct {
	LogMessage      string
	ErrorType       string
	HTTPStatus      int
	ErrorCode       dto.ErrorCode
	ResponseMessage string
}

// DefaultErrorHandler implements ErrorHandler with standard HTTP error
// responses. Domain sentinels are matched with errors.Is so mappings hold
// through service-layer wrapping.
type DefaultErrorHandler struct {
	sentinelMappings map[error]errorMapping
}

// NewDefaultErrorHandler creates a DefaultErrorHandler with the queue's
// domain error mappings.
func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{
		sentinelMappings: map[error]errorMapping{
			domainerrors.ErrItemNotFound: {
				LogMessage:      "Queue item not found",
				ErrorType:       "not_found",
				HTTPStatus:      http.StatusNotFound,
				ErrorCode:       dto.ErrorCodeItemNotFound,
				ResponseMessage: "Queue item not found",
			},
			domainerrors.ErrItemAlreadyExists: {
				LogMessage:      "Queue item already exists",
				ErrorType:       "already_exists",
				HTTPStatus:      http.StatusConflict,
				ErrorCode:       dto.ErrorCodeItemAlreadyExists,
				ResponseMessage: "Queue item already exists",
			},
		},
	}
}

// HandleValidationError handles validation errors by returning 400 Bad
// Request with field details when available.
func (h *DefaultErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	h.logError(r, "Validation error occurred", "validation", err)

	var validationErr *domainerrors.ValidationError
	if errors.As(err, &validationErr) {
		response := dto.NewErrorResponse(
			dto.ErrorCodeInvalidRequest,
			"Validation failed",
			dto.ValidationErrorDetails{
				Errors: []dto.ValidationError{{
					Field:   validationErr.Field,
					Message: validationErr.Message,
				}},
			},
		)
		h.writeErrorResponse(w, r, http.StatusBadRequest, response)
		return
	}

	response := dto.NewErrorResponse(dto.ErrorCodeInvalidRequest, err.Error(), nil)
	h.writeErrorResponse(w, r, http.StatusBadRequest, response)
}

// HandleServiceError maps service errors to HTTP status codes. Unrecognized
// errors become 500 without leaking their internals.
func (h *DefaultErrorHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for sentinel, mapping := range h.sentinelMappings {
		if errors.Is(err, sentinel) {
			h.logError(r, mapping.LogMessage, mapping.ErrorType, err)
			response := dto.NewErrorResponse(mapping.ErrorCode, mapping.ResponseMessage, nil)
			h.writeErrorResponse(w, r, mapping.HTTPStatus, response)
			return
		}
	}

	var alreadyRunning *domainerrors.AlreadyRunningError
	if errors.As(err, &alreadyRunning) {
		h.logError(r, "Worker already running", "already_running", err)
		response := dto.NewErrorResponse(dto.ErrorCodeWorkerAlreadyRunning, alreadyRunning.Error(), nil)
		h.writeErrorResponse(w, r, http.StatusConflict, response)
		return
	}

	var validationErr *domainerrors.ValidationError
	if errors.As(err, &validationErr) {
		h.HandleValidationError(w, r, err)
		return
	}

	h.logError(r, "Internal server error", "internal", err)
	response := dto.NewErrorResponse(dto.ErrorCodeInternalError, "An internal error occurred", nil)
	h.writeErrorResponse(w, r, http.StatusInternalServerError, response)
}

func (h *DefaultErrorHandler) logError(r *http.Request, message, errorType string, err error) {
	slogger.Error(r.Context(), message, slogger.Fields{
		"error": err.Error(),
		"path":  r.URL.Path,
		"type":  errorType,
	})
}

// writeErrorResponse writes an error response as JSON, preserving the
// caller's correlation ID when present.
func (h *DefaultErrorHandler) writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, response dto.ErrorResponse) {
	if correlationID := r.Header.Get("X-Correlation-ID"); correlationID != "" {
		w.Header().Set("X-Correlation-ID", correlationID)
	}

	if err := WriteJSON(w, statusCode, response); err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
	}
}
