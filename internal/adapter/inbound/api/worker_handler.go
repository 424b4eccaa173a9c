package api

import (
	"fmt"
	"net/http"

	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/inbound"
)

// Worker control actions accepted on /workers.
const (
	workerActionStart  = "start"
	workerActionStop   = "stop"
	workerActionStatus = "status"
)

// WorkerHandler handles HTTP requests for worker lifecycle control.
type WorkerHandler struct {
	workerControl inbound.WorkerControl
	errorHandler  ErrorHandler
}

// NewWorkerHandler creates a new WorkerHandler.
func NewWorkerHandler(workerControl inbound.WorkerControl, errorHandler ErrorHandler) *WorkerHandler {
	return &WorkerHandler{
		workerControl: workerControl,
		errorHandler:  errorHandler,
	}
}

// HandleAction handles POST /workers?action=start|stop.
func (h *WorkerHandler) HandleAction(w http.ResponseWriter, r *http.Request) {
	switch action := r.URL.Query().Get("action"); action {
	case workerActionStart:
		response, err := h.workerControl.Start(r.Context())
		if err != nil {
			h.errorHandler.HandleServiceError(w, r, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, response)

	case workerActionStop:
		response, err := h.workerControl.Stop(r.Context())
		if err != nil {
			h.errorHandler.HandleServiceError(w, r, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, response)

	default:
		h.errorHandler.HandleValidationError(w, r, domainerrors.NewValidationError(
			"action",
			fmt.Sprintf("action must be %q or %q, got %q", workerActionStart, workerActionStop, action),
		))
	}
}

// HandleStatus handles GET /workers?action=status.
func (h *WorkerHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if action := r.URL.Query().Get("action"); action != workerActionStatus {
		h.errorHandler.HandleValidationError(w, r, domainerrors.NewValidationError(
			"action",
			fmt.Sprintf("action must be %q, got %q", workerActionStatus, action),
		))
		return
	}

	response, err := h.workerControl.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}
