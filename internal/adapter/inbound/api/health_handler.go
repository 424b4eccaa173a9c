package api

import (
	"fmt"
	"net/http"
	"time"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/port/inbound"
)

// HealthHandler handles HTTP requests for health check operations.
type HealthHandler struct {
	healthService inbound.HealthService
	errorHandler  ErrorHandler
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(healthService inbound.HealthService, errorHandler ErrorHandler) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
		errorHandler:  errorHandler,
	}
}

// GetHealth handles GET /health. Degraded reports 200 so load balancers keep
// routing while operators investigate; only unhealthy turns traffic away.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response, err := h.healthService.GetHealth(r.Context())
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	w.Header().Set("X-Health-Check-Duration",
		fmt.Sprintf("%.2fms", float64(time.Since(start).Microseconds())/1000.0))

	statusCode := http.StatusOK
	if response.Status == string(dto.HealthStatusUnhealthy) {
		statusCode = http.StatusServiceUnavailable
	}

	if writeErr := WriteJSON(w, statusCode, response); writeErr != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Health check response encoding failed"))
	}
}
