package outbound

import (
	"context"

	"embedqueue/internal/domain/messaging"
)

// EventPublisher defines the outbound port for publishing item
// state-transition events. Publishing is best-effort with respect to the
// queue: a failed publish is logged and counted, never blocks or fails the
// item's own transition.
type EventPublisher interface {
	PublishItemStateEvent(ctx context.Context, event messaging.ItemStateEvent) error
}

// EventPublisherHealth defines health monitoring capabilities for event publishers.
type EventPublisherHealth interface {
	GetConnectionHealth() EventPublisherHealthStatus
	GetPublishMetrics() EventPublisherMetrics
}

// EventPublisherHealthStatus represents the health of the event transport.
type EventPublisherHealthStatus struct {
	Connected        bool   `json:"connected"`
	LastError        string `json:"last_error,omitempty"`
	Uptime           string `json:"uptime"`
	Reconnects       int    `json:"reconnects"`
	JetStreamEnabled bool   `json:"jetstream_enabled"`
}

// EventPublisherMetrics represents event publishing counters.
type EventPublisherMetrics struct {
	PublishedCount int64  `json:"published_count"`
	FailedCount    int64  `json:"failed_count"`
	AverageLatency string `json:"average_latency"`
}
