package outbound

import (
	"context"
	"encoding/json"
)

// EmbeddingProvider defines the outbound port for the external embedding
// service. This is the only boundary the circuit breaker wraps: throttling is
// signalled with a rate-limited error carrying the provider's retry-after
// hint, other failures surface as timeout/network/unknown errors.
type EmbeddingProvider interface {
	// GenerateEmbeddings asks the provider to embed one source row.
	GenerateEmbeddings(ctx context.Context, request EmbeddingRequest) (*EmbeddingResult, error)

	// Ping verifies the provider endpoint is reachable and authorized.
	Ping(ctx context.Context) error
}

// QueueMode tells the provider which scheduling path produced the request.
type QueueMode string

// Queue mode constants.
const (
	QueueModeDurable   QueueMode = "queue"
	QueueModeImmediate QueueMode = "immediate"
)

// EmbeddingRequest is the payload sent to the embedding provider for one
// source row. Metadata is passed through opaquely from the queue item.
type EmbeddingRequest struct {
	SourceID         string          `json:"sourceId"`
	ProcessAllFields bool            `json:"processAllFields"`
	ProcessLineItems bool            `json:"processLineItems"`
	QueueMode        QueueMode       `json:"queueMode"`
	WorkerID         string          `json:"workerId"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

// EmbeddingResult is the provider's success response.
type EmbeddingResult struct {
	Success             bool `json:"success"`
	TotalTokens         int  `json:"totalTokens"`
	EmbeddingsGenerated int  `json:"embeddingsGenerated"`
}
