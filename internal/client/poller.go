package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"embedqueue/internal/application/dto"

	"github.com/google/uuid"
)

const (
	// DefaultPollInterval is the default time to wait between status checks
	// when polling for queue item completion.
	DefaultPollInterval = 2 * time.Second

	// DefaultMaxWait is the default maximum time to wait for a queue item
	// to reach a terminal status before timing out.
	DefaultMaxWait = 5 * time.Minute
)

// Error messages for polling operations.
const (
	errMsgPollingFailed  = "item processing failed"
	errMsgPollingTimeout = "polling timeout exceeded"
)

// Terminal item statuses as reported by the API.
const (
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Progress status constants for JSON output.
const (
	progressStatusPolling = "polling"
)

// PollerConfig configures the behavior of a Poller.
// Zero values for fields will use defaults from DefaultPollInterval and DefaultMaxWait.
type PollerConfig struct {
	// Interval is the duration to wait between consecutive status polls.
	// Default: 2 seconds (DefaultPollInterval).
	Interval time.Duration

	// MaxWait is the maximum total duration to wait for completion.
	// Default: 5 minutes (DefaultMaxWait).
	MaxWait time.Duration
}

// Poller polls for queue item completion. It periodically fetches an item
// until it reaches a terminal status (completed or failed) or the wait
// budget runs out. Rate-limited items are not terminal; they resume and the
// poller keeps waiting.
type Poller struct {
	client   *Client
	interval time.Duration
	maxWait  time.Duration
}

// NewPoller creates a new Poller with the given client and configuration.
// If config is nil or has zero values, defaults are used from DefaultPollInterval
// and DefaultMaxWait.
//
// Returns an error if client is nil.
func NewPoller(client *Client, config *PollerConfig) (*Poller, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	interval := DefaultPollInterval
	maxWait := DefaultMaxWait

	if config != nil {
		if config.Interval > 0 {
			interval = config.Interval
		}
		if config.MaxWait > 0 {
			maxWait = config.MaxWait
		}
	}

	return &Poller{
		client:   client,
		interval: interval,
		maxWait:  maxWait,
	}, nil
}

// WaitForCompletion polls a queue item until it reaches a terminal status,
// the context is cancelled, or the maximum wait time is exceeded.
//
// Progress updates are written as JSON to progressWriter in the format:
//
//	{
//	  "status": "polling",
//	  "item_id": "uuid",
//	  "current_status": "processing",
//	  "elapsed": "4s",
//	  "poll_count": 2
//	}
//
// Returns the final item state and an error if:
//   - The item status is "failed" (error: "item processing failed")
//   - Polling exceeds maxWait duration (error: "polling timeout exceeded")
//   - The context is cancelled (error wraps context.Err())
//   - Network errors occur repeatedly until timeout
func (p *Poller) WaitForCompletion(
	ctx context.Context,
	itemID uuid.UUID,
	progressWriter io.Writer,
) (*dto.QueueItemResponse, error) {
	startTime := time.Now()
	pollCount := 0
	var lastItem *dto.QueueItemResponse

	for {
		item, err := p.client.GetItem(ctx, itemID)
		if err != nil {
			if err := p.handlePollingError(ctx, &pollCount, startTime, lastItem, itemID, progressWriter); err != nil {
				return lastItem, err
			}
			continue
		}

		lastItem = item

		if IsTerminalStatus(item.Status) {
			if item.Status == statusFailed {
				return item, errors.New(errMsgPollingFailed)
			}
			return item, nil
		}

		pollCount++
		elapsed := time.Since(startTime)

		progress := map[string]interface{}{
			"status":         progressStatusPolling,
			"item_id":        itemID.String(),
			"current_status": item.Status,
			"elapsed":        elapsed.String(),
			"poll_count":     pollCount,
		}
		_ = json.NewEncoder(progressWriter).Encode(progress)

		if elapsed >= p.maxWait {
			return item, errors.New(errMsgPollingTimeout)
		}

		select {
		case <-ctx.Done():
			return item, fmt.Errorf("context cancelled: %w", ctx.Err())
		case <-time.After(p.interval):
		}
	}
}

// handlePollingError processes errors during polling and determines whether to retry.
// It increments the poll count, writes progress updates, and checks for timeout conditions.
// Returns an error if the context is cancelled or the maximum wait time is exceeded.
func (p *Poller) handlePollingError(
	ctx context.Context,
	pollCount *int,
	startTime time.Time,
	lastItem *dto.QueueItemResponse,
	itemID uuid.UUID,
	progressWriter io.Writer,
) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	*pollCount++
	elapsed := time.Since(startTime)

	progress := map[string]interface{}{
		"status":     progressStatusPolling,
		"item_id":    itemID.String(),
		"elapsed":    elapsed.String(),
		"poll_count": *pollCount,
	}
	if lastItem != nil {
		progress["current_status"] = lastItem.Status
	}
	_ = json.NewEncoder(progressWriter).Encode(progress)

	if elapsed >= p.maxWait {
		return errors.New(errMsgPollingTimeout)
	}

	time.Sleep(p.interval)
	return nil
}

// IsTerminalStatus returns true if the given status represents a terminal
// state for a queue item (completed or failed).
func IsTerminalStatus(status string) bool {
	return status == statusCompleted || status == statusFailed
}
