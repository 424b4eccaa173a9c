package common

import "embedqueue/internal/application/dto"

// Default query limits.
const (
	DefaultRollupListLimit = 24
	MaxRollupListLimit     = 500
	DefaultGranularity     = "hourly"
)

// ApplyRollupQueryDefaults applies default values to a rollup query.
func ApplyRollupQueryDefaults(query *dto.MetricsRollupQuery) {
	if query.Granularity == "" {
		query.Granularity = DefaultGranularity
	}
	if query.Limit == 0 {
		query.Limit = DefaultRollupListLimit
	}
	if query.Limit > MaxRollupListLimit {
		query.Limit = MaxRollupListLimit
	}
}
