package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/inbound"
)

// QueueHandler handles HTTP requests for queue item operations.
type QueueHandler struct {
	queueService inbound.QueueService
	errorHandler ErrorHandler
}

// NewQueueHandler creates a new QueueHandler.
func NewQueueHandler(queueService inbound.QueueService, errorHandler ErrorHandler) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
		errorHandler: errorHandler,
	}
}

// EnqueueItem handles POST /queue/items. Accepted items are queued for
// asynchronous processing, hence 202.
func (h *QueueHandler) EnqueueItem(w http.ResponseWriter, r *http.Request) {
	var request dto.EnqueueItemRequest
	if err := decodeJSONBody(r, &request); err != nil {
		h.errorHandler.HandleValidationError(w, r, err)
		return
	}

	response, err := h.queueService.EnqueueItem(r.Context(), request)
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusAccepted, response)
}

// GetItem handles GET /queue/items/{id}.
func (h *QueueHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDPathValue(r, "id", "queue item")
	if err != nil {
		h.errorHandler.HandleValidationError(w, r, err)
		return
	}

	response, err := h.queueService.GetItem(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// GetQueueStatus handles GET /queue/status.
func (h *QueueHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	response, err := h.queueService.QueueStatus(r.Context())
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// decodeJSONBody decodes a JSON request body with strict field checking.
func decodeJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return domainerrors.NewValidationError("body", "request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		return domainerrors.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}

	return nil
}

// extractUUIDPathValue parses a UUID path parameter.
func extractUUIDPathValue(r *http.Request, paramName, resourceType string) (uuid.UUID, error) {
	value := r.PathValue(paramName)
	if value == "" {
		return uuid.Nil, domainerrors.NewValidationError(
			paramName,
			fmt.Sprintf("%s ID is required in URL path", resourceType),
		)
	}

	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, domainerrors.NewValidationError(
			paramName,
			fmt.Sprintf("invalid %s UUID: %s", resourceType, value),
		)
	}

	return id, nil
}

// writeJSONResponse writes a success response, ignoring encode failures the
// handler cannot recover from.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	_ = WriteJSON(w, statusCode, data)
}
