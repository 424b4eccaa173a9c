package api

import (
	"net/http"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/port/inbound"
)

// CircuitBreakerHandler handles HTTP requests for breaker observability and
// the operator reset.
type CircuitBreakerHandler struct {
	breakerControl inbound.CircuitBreakerControl
	errorHandler   ErrorHandler
}

// NewCircuitBreakerHandler creates a new CircuitBreakerHandler.
func NewCircuitBreakerHandler(
	breakerControl inbound.CircuitBreakerControl,
	errorHandler ErrorHandler,
) *CircuitBreakerHandler {
	return &CircuitBreakerHandler{
		breakerControl: breakerControl,
		errorHandler:   errorHandler,
	}
}

// GetStatus handles GET /circuit-breaker.
func (h *CircuitBreakerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	response, err := h.breakerControl.Status(r.Context())
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// Reset handles POST /circuit-breaker/reset. The request must name the actor
// and reason; both land in the audit log.
func (h *CircuitBreakerHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var request dto.CircuitBreakerResetRequest
	if err := decodeJSONBody(r, &request); err != nil {
		h.errorHandler.HandleValidationError(w, r, err)
		return
	}

	response, err := h.breakerControl.Reset(r.Context(), request)
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}
