package dto

import "time"

// MetricsRollupResponse is one aggregated bucket of outcome statistics.
type MetricsRollupResponse struct {
	BucketStart    time.Time        `json:"bucket_start"`
	Granularity    string           `json:"granularity"`
	Attempts       int64            `json:"attempts"`
	Successes      int64            `json:"successes"`
	Failures       int64            `json:"failures"`
	FailuresByType map[string]int64 `json:"failures_by_type,omitempty"`
	RateLimitHits  int64            `json:"rate_limit_hits"`
	P95DurationMS  float64          `json:"p95_duration_ms"`
	P99DurationMS  float64          `json:"p99_duration_ms"`
	TotalTokens    int64            `json:"total_tokens"`
	EstimatedCost  float64          `json:"estimated_cost"`
	ComputedAt     time.Time        `json:"computed_at"`
}

// MetricsRollupListResponse wraps a rollup query result.
type MetricsRollupListResponse struct {
	Granularity string                  `json:"granularity"`
	Rollups     []MetricsRollupResponse `json:"rollups"`
}

// MetricsRollupQuery represents query parameters for listing rollups.
type MetricsRollupQuery struct {
	Granularity string `form:"granularity" validate:"omitempty,oneof=hourly daily"`
	Since       string `form:"since"       validate:"omitempty"`
	Limit       int    `form:"limit"       validate:"omitempty,min=1,max=500"`
}

// DefaultMetricsRollupQuery returns default values for rollup queries.
func DefaultMetricsRollupQuery() MetricsRollupQuery {
	return MetricsRollupQuery{
		Granularity: "hourly",
		Limit:       24,
	}
}
