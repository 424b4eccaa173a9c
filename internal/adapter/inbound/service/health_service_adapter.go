package service

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/port/inbound"
	"embedqueue/internal/port/outbound"
)

const (
	// natsHealthCacheTTL bounds how often publisher health is recomputed.
	natsHealthCacheTTL = 5 * time.Second

	// maxHealthyReconnects is the reconnect count above which the NATS
	// connection is reported unstable.
	maxHealthyReconnects = 10

	// slowPublishLatencyMS flags degraded publish performance.
	slowPublishLatencyMS = 50.0
)

// HealthServiceAdapter reports service health for the health endpoint. The
// database is probed on every request with a single cheap depth query; the
// NATS status is cached for a short TTL since publisher health is maintained
// by connection callbacks and does not change per request.
type HealthServiceAdapter struct {
	queue     outbound.QueueRepository
	publisher outbound.EventPublisher
	version   string

	mu         sync.RWMutex
	natsStatus dto.DependencyStatus
	natsAt     time.Time
}

// NewHealthServiceAdapter creates a health service backed by the queue store
// and the event publisher.
func NewHealthServiceAdapter(
	queue outbound.QueueRepository,
	publisher outbound.EventPublisher,
	version string,
) inbound.HealthService {
	return &HealthServiceAdapter{
		queue:     queue,
		publisher: publisher,
		version:   version,
	}
}

// GetHealth checks the database and NATS and reports an overall status:
// healthy when everything passes, degraded when one dependency fails,
// unhealthy when both do.
func (h *HealthServiceAdapter) GetHealth(ctx context.Context) (*dto.HealthResponse, error) {
	response := &dto.HealthResponse{
		Status:       string(dto.HealthStatusHealthy),
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]dto.DependencyStatus),
	}

	if h.queue != nil {
		if _, err := h.queue.QueueDepth(ctx); err != nil {
			response.Dependencies["database"] = dto.DependencyStatus{
				Status:  string(dto.DependencyStatusUnhealthy),
				Message: "database connection failed",
			}
			response.Status = string(dto.HealthStatusDegraded)
		} else {
			response.Dependencies["database"] = dto.DependencyStatus{
				Status: string(dto.DependencyStatusHealthy),
			}
		}
	}

	if h.publisher != nil {
		natsStatus := h.natsHealth()
		response.Dependencies["nats"] = natsStatus

		if natsStatus.Status == string(dto.DependencyStatusUnhealthy) {
			if response.Status == string(dto.HealthStatusHealthy) {
				response.Status = string(dto.HealthStatusDegraded)
			} else {
				response.Status = string(dto.HealthStatusUnhealthy)
			}
		}
	}

	return response, nil
}

// natsHealth returns the cached NATS status, recomputing it when the cache
// entry has expired.
func (h *HealthServiceAdapter) natsHealth() dto.DependencyStatus {
	h.mu.RLock()
	if !h.natsAt.IsZero() && time.Since(h.natsAt) <= natsHealthCacheTTL {
		status := h.natsStatus
		h.mu.RUnlock()
		return status
	}
	h.mu.RUnlock()

	status := h.checkNATS()

	h.mu.Lock()
	h.natsStatus = status
	h.natsAt = time.Now()
	h.mu.Unlock()

	return status
}

// checkNATS evaluates publisher health in priority order: connectivity,
// JetStream availability, connection stability, then publish latency.
func (h *HealthServiceAdapter) checkNATS() dto.DependencyStatus {
	healthPublisher, ok := h.publisher.(outbound.EventPublisherHealth)
	if !ok {
		// Publisher without health reporting; assume reachable.
		return dto.DependencyStatus{Status: string(dto.DependencyStatusHealthy)}
	}

	health := healthPublisher.GetConnectionHealth()
	metrics := healthPublisher.GetPublishMetrics()

	if !health.Connected {
		message := "NATS disconnected"
		if health.LastError != "" {
			message += ": " + health.LastError
		}
		return dto.DependencyStatus{
			Status:  string(dto.DependencyStatusUnhealthy),
			Message: message,
		}
	}

	if !health.JetStreamEnabled {
		return dto.DependencyStatus{
			Status:  string(dto.DependencyStatusUnhealthy),
			Message: "NATS JetStream not available",
		}
	}

	if health.Reconnects > maxHealthyReconnects {
		return dto.DependencyStatus{
			Status:  string(dto.DependencyStatusUnhealthy),
			Message: "NATS unstable connection: too many reconnects",
		}
	}

	if latency, ok := parseLatencyMS(metrics.AverageLatency); ok && latency > slowPublishLatencyMS {
		return dto.DependencyStatus{
			Status:  string(dto.DependencyStatusUnhealthy),
			Message: "NATS publish latency degraded",
		}
	}

	return dto.DependencyStatus{Status: string(dto.DependencyStatusHealthy)}
}

// parseLatencyMS parses latency strings of the form "12.5ms".
func parseLatencyMS(latency string) (float64, bool) {
	if latency == "" || !strings.HasSuffix(latency, "ms") {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSuffix(latency, "ms"), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
