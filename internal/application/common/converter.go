package common

import (
	"time"

	"embedqueue/internal/application/dto"
	"embedqueue/internal/domain/entity"
	"embedqueue/internal/port/outbound"
)

// EntityToQueueItemResponse converts a queue item entity to its response DTO.
func EntityToQueueItemResponse(item *entity.QueueItem) *dto.QueueItemResponse {
	response := &dto.QueueItemResponse{
		ID:             item.ID(),
		SourceType:     item.SourceType(),
		SourceID:       item.SourceID(),
		Operation:      item.Operation().String(),
		Priority:       item.Priority().String(),
		Status:         item.Status().String(),
		RetryCount:     item.RetryCount(),
		MaxRetries:     item.MaxRetries(),
		RateLimitCount: item.RateLimitCount(),
		ErrorMessage:   item.ErrorMessage(),
		ClaimedBy:      item.ClaimedBy(),
		ClaimedAt:      item.ClaimedAt(),
		ResumeAt:       item.ResumeAt(),
		ProcessedAt:    item.ProcessedAt(),
		CreatedAt:      item.CreatedAt(),
		UpdatedAt:      item.UpdatedAt(),
	}

	if errorType := item.ErrorType(); errorType != nil {
		s := errorType.String()
		response.ErrorType = &s
	}

	return response
}

// QueueDepthToStatusResponse converts per-status depth counts to the queue
// status DTO.
func QueueDepthToStatusResponse(depth outbound.QueueDepth) *dto.QueueStatusResponse {
	return &dto.QueueStatusResponse{
		Pending:     depth.Pending,
		Processing:  depth.Processing,
		RateLimited: depth.RateLimited,
		Completed:   depth.Completed,
		Failed:      depth.Failed,
		Total:       depth.Total(),
	}
}

// WorkerConfigToDTO converts a registered worker config snapshot to the
// dashboard DTO shape (durations as milliseconds).
func WorkerConfigToDTO(config entity.WorkerConfigSnapshot) dto.WorkerConfigDTO {
	return dto.WorkerConfigDTO{
		BatchSize:           config.BatchSize,
		PollIntervalMS:      config.PollInterval.Milliseconds(),
		HeartbeatIntervalMS: config.HeartbeatInterval.Milliseconds(),
		ItemTimeoutMS:       config.ItemTimeout.Milliseconds(),
		Concurrency:         config.Concurrency,
	}
}

// EntityToWorkerStatusDetail converts a worker registration to its status DTO.
func EntityToWorkerStatusDetail(worker *entity.WorkerRegistration, isRunning bool) *dto.WorkerStatusDetail {
	return &dto.WorkerStatusDetail{
		WorkerID:       worker.WorkerID(),
		IsRunning:      isRunning,
		ProcessedCount: worker.TasksProcessed(),
		ErrorCount:     worker.ErrorCount(),
		Config:         WorkerConfigToDTO(worker.Config()),
	}
}

// RollupToResponse converts a stored metrics rollup to its response DTO.
func RollupToResponse(rollup *outbound.MetricsRollup) dto.MetricsRollupResponse {
	return dto.MetricsRollupResponse{
		BucketStart:    rollup.BucketStart,
		Granularity:    string(rollup.Granularity),
		Attempts:       rollup.Attempts,
		Successes:      rollup.Successes,
		Failures:       rollup.Failures,
		FailuresByType: rollup.FailuresByType,
		RateLimitHits:  rollup.RateLimitHits,
		P95DurationMS:  rollup.P95DurationMS,
		P99DurationMS:  rollup.P99DurationMS,
		TotalTokens:    rollup.TotalTokens,
		EstimatedCost:  rollup.EstimatedCost,
		ComputedAt:     rollup.ComputedAt,
	}
}

// RollupsToListResponse converts stored rollups to the list response DTO.
func RollupsToListResponse(granularity outbound.RollupGranularity, rollups []*outbound.MetricsRollup) *dto.MetricsRollupListResponse {
	response := &dto.MetricsRollupListResponse{
		Granularity: string(granularity),
		Rollups:     make([]dto.MetricsRollupResponse, 0, len(rollups)),
	}
	for _, rollup := range rollups {
		response.Rollups = append(response.Rollups, RollupToResponse(rollup))
	}
	return response
}

// ParseSinceOrDefault parses an RFC3339 `since` query value, falling back to
// now−fallback when absent or unparseable.
func ParseSinceOrDefault(raw string, fallback time.Duration) time.Time {
	if raw != "" {
		if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
			return parsed
		}
	}
	return time.Now().Add(-fallback)
}
