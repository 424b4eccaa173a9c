package dto

import (
	"time"

	"github.com/google/uuid"
)

// ItemMetadata is the schema-validated form of the opaque payload carried by
// a queue item. It is validated here at the producing boundary; inside the
// queue it travels as an uninspected JSON blob.
type ItemMetadata struct {
	ProcessAllFields bool     `json:"process_all_fields"`
	ProcessLineItems bool     `json:"process_line_items"`
	Fields           []string `json:"fields,omitempty"       validate:"omitempty,max=32,dive,min=1,max=64"`
	UploadBatch      string   `json:"upload_batch,omitempty" validate:"omitempty,max=128"`
	TeamID           string   `json:"team_id,omitempty"      validate:"omitempty,uuid"`
	Source           string   `json:"source,omitempty"       validate:"omitempty,max=64"`
}

// EnqueueItemRequest represents the request to enqueue one embedding item. It
// is accepted identically over HTTP and over the NATS ingress subject.
type EnqueueItemRequest struct {
	SourceType string        `json:"source_type"           validate:"required,max=64"`
	SourceID   string        `json:"source_id"             validate:"required,max=255"`
	Operation  string        `json:"operation"             validate:"required,oneof=INSERT UPDATE"`
	Priority   string        `json:"priority,omitempty"    validate:"omitempty,oneof=high medium low"`
	MaxRetries int           `json:"max_retries,omitempty" validate:"omitempty,min=1,max=20"`
	Metadata   *ItemMetadata `json:"metadata,omitempty"`
}

// DefaultPriority is applied when a producer omits the priority.
const DefaultPriority = "medium"

// EnqueueItemResponse represents the response after enqueueing an item.
type EnqueueItemResponse struct {
	ID       uuid.UUID `json:"id"`
	Status   string    `json:"status"`
	Priority string    `json:"priority"`
}

// QueueItemResponse represents a queue item returned by query endpoints.
type QueueItemResponse struct {
	ID             uuid.UUID  `json:"id"`
	SourceType     string     `json:"source_type"`
	SourceID       string     `json:"source_id"`
	Operation      string     `json:"operation"`
	Priority       string     `json:"priority"`
	Status         string     `json:"status"`
	RetryCount     int        `json:"retry_count"`
	MaxRetries     int        `json:"max_retries"`
	RateLimitCount int        `json:"rate_limit_count"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	ErrorType      *string    `json:"error_type,omitempty"`
	ClaimedBy      *string    `json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	ResumeAt       *time.Time `json:"resume_at,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// QueueStatusResponse represents per-status depth counts for the queue.
type QueueStatusResponse struct {
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	RateLimited int64 `json:"rate_limited"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Total       int64 `json:"total"`
}
