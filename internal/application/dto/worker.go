package dto

// The worker control responses use the exact field names the hosting
// environment's dashboards already consume, hence the camelCase keys.

// WorkerConfigDTO describes a worker's runtime configuration.
type WorkerConfigDTO struct {
	BatchSize           int   `json:"batchSize"`
	PollIntervalMS      int64 `json:"pollIntervalMs"`
	HeartbeatIntervalMS int64 `json:"heartbeatIntervalMs"`
	ItemTimeoutMS       int64 `json:"itemTimeoutMs"`
	Concurrency         int   `json:"concurrency"`
}

// WorkerStartResponse is returned by POST /workers?action=start.
type WorkerStartResponse struct {
	Success  bool   `json:"success"`
	WorkerID string `json:"workerId"`
	Message  string `json:"message"`
}

// WorkerStopStats carries the aggregate counters of a stopped worker.
type WorkerStopStats struct {
	WorkerID       string `json:"workerId"`
	ProcessedCount int64  `json:"processedCount"`
	ErrorCount     int64  `json:"errorCount"`
}

// WorkerStopResponse is returned by POST /workers?action=stop.
type WorkerStopResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Stats   WorkerStopStats `json:"stats"`
}

// WorkerStatusDetail describes one worker in a status response.
type WorkerStatusDetail struct {
	WorkerID       string          `json:"workerId"`
	IsRunning      bool            `json:"isRunning"`
	ProcessedCount int64           `json:"processedCount"`
	ErrorCount     int64           `json:"errorCount"`
	Config         WorkerConfigDTO `json:"config"`
}

// WorkerStatusResponse is returned by GET /workers?action=status.
type WorkerStatusResponse struct {
	Success   bool                `json:"success"`
	IsRunning bool                `json:"isRunning"`
	Worker    *WorkerStatusDetail `json:"worker,omitempty"`
}
