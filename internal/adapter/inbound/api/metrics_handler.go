package api

import (
	"context"
	"net/http"
	"strconv"

	"embedqueue/internal/application/common/observability"
	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/inbound"
)

// RuntimeCollector snapshots the process's OpenTelemetry instruments.
type RuntimeCollector interface {
	Snapshot(ctx context.Context) (*observability.RuntimeSnapshot, error)
}

// MetricsHandler handles HTTP requests for rollup queries and runtime
// instrument snapshots.
type MetricsHandler struct {
	metricsQuery inbound.MetricsQueryService
	runtime      RuntimeCollector
	errorHandler ErrorHandler
}

// NewMetricsHandler creates a new MetricsHandler. The runtime collector may
// be nil when the process runs without the OTel SDK installed.
func NewMetricsHandler(
	metricsQuery inbound.MetricsQueryService,
	runtime RuntimeCollector,
	errorHandler ErrorHandler,
) *MetricsHandler {
	return &MetricsHandler{
		metricsQuery: metricsQuery,
		runtime:      runtime,
		errorHandler: errorHandler,
	}
}

// GetRollups handles GET /metrics/rollups.
func (h *MetricsHandler) GetRollups(w http.ResponseWriter, r *http.Request) {
	query := dto.MetricsRollupQuery{
		Granularity: r.URL.Query().Get("granularity"),
		Since:       r.URL.Query().Get("since"),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			h.errorHandler.HandleValidationError(w, r, domainerrors.NewValidationError(
				"limit", "limit must be a positive integer",
			))
			return
		}
		query.Limit = limit
	}

	response, err := h.metricsQuery.GetRollups(r.Context(), query)
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// GetRuntime handles GET /metrics/runtime.
func (h *MetricsHandler) GetRuntime(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		response := dto.NewErrorResponse(dto.ErrorCodeServiceUnavailable, "runtime metrics are not enabled", nil)
		writeJSONResponse(w, http.StatusServiceUnavailable, response)
		return
	}

	snapshot, err := h.runtime.Snapshot(r.Context())
	if err != nil {
		h.errorHandler.HandleServiceError(w, r, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, snapshot)
}
