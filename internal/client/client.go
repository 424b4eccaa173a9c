package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"embedqueue/internal/application/dto"

	"github.com/google/uuid"
)

const (
	// userAgent is the User-Agent header value sent with all API requests.
	userAgent = "embedqueue-client/1.0"

	// contentTypeJSON is the Content-Type header value for JSON requests.
	contentTypeJSON = "application/json"

	// API endpoint paths.
	pathHealth       = "/health"
	pathQueueItems   = "/queue/items"
	pathQueueStatus  = "/queue/status"
	pathWorkers      = "/workers"
	pathBreaker      = "/circuit-breaker"
	pathBreakerReset = "/circuit-breaker/reset"
	pathRollups      = "/metrics/rollups"
)

// Client provides methods for interacting with the EmbedQueue API.
// It handles request serialization, response parsing and error mapping.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client with the given configuration.
// Returns an error if the configuration is nil or invalid.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    config.APIURL,
		httpClient: &http.Client{Timeout: config.Timeout},
	}, nil
}

// NewClientWithHTTPClient creates a new API client with the given configuration and HTTP client.
// If httpClient is nil, a default HTTP client with the configured timeout will be used.
// Returns an error if the configuration is nil or invalid.
func NewClientWithHTTPClient(config *Config, httpClient *http.Client) (*Client, error) {
	if config == nil {
		return nil, errors.New("config cannot be nil")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		baseURL:    config.APIURL,
		httpClient: httpClient,
	}, nil
}

// doRequest performs an HTTP request with the given parameters and decodes the response.
// It handles request construction, header setup, error responses, and JSON decoding.
// If body is non-nil, it will be JSON-encoded and sent with Content-Type: application/json.
// If result is non-nil, the response body will be JSON-decoded into it.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	fullURL := c.baseURL + path

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	var req *http.Request
	var err error
	if reqBody != nil {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	}
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API request failed: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Health performs a health check against the API server.
// Returns the health status and any error encountered.
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	var result dto.HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, pathHealth, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EnqueueItem submits one embedding item for asynchronous processing.
// Returns the accepted item's ID and initial status, or an error.
func (c *Client) EnqueueItem(ctx context.Context, req dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error) {
	var result dto.EnqueueItemResponse
	if err := c.doRequest(ctx, http.MethodPost, pathQueueItems, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetItem retrieves a single queue item by ID.
// Returns the item details or an error if not found.
func (c *Client) GetItem(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error) {
	path := fmt.Sprintf("%s/%s", pathQueueItems, id.String())
	var result dto.QueueItemResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueueStatus retrieves per-status depth counts for the queue.
func (c *Client) QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	var result dto.QueueStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, pathQueueStatus, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StartWorker asks the API process to start its embedded queue worker.
func (c *Client) StartWorker(ctx context.Context) (*dto.WorkerStartResponse, error) {
	var result dto.WorkerStartResponse
	if err := c.doRequest(ctx, http.MethodPost, pathWorkers+"?action=start", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// StopWorker asks the API process to stop its embedded queue worker.
// Returns the stopped worker's aggregate counters.
func (c *Client) StopWorker(ctx context.Context) (*dto.WorkerStopResponse, error) {
	var result dto.WorkerStopResponse
	if err := c.doRequest(ctx, http.MethodPost, pathWorkers+"?action=stop", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WorkerStatus retrieves the embedded worker's run state and counters.
func (c *Client) WorkerStatus(ctx context.Context) (*dto.WorkerStatusResponse, error) {
	var result dto.WorkerStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, pathWorkers+"?action=status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// BreakerStatus retrieves the circuit breaker state guarding the embedding provider.
func (c *Client) BreakerStatus(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error) {
	var result dto.CircuitBreakerStatusResponse
	if err := c.doRequest(ctx, http.MethodGet, pathBreaker, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ResetBreaker forces the circuit breaker closed. The request carries the
// acting operator and a reason, both recorded on the audit event.
func (c *Client) ResetBreaker(
	ctx context.Context,
	req dto.CircuitBreakerResetRequest,
) (*dto.CircuitBreakerResetResponse, error) {
	var result dto.CircuitBreakerResetResponse
	if err := c.doRequest(ctx, http.MethodPost, pathBreakerReset, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRollups retrieves aggregated outcome rollups with optional filtering.
// Returns the rollup buckets matching the query, or an error.
func (c *Client) ListRollups(
	ctx context.Context,
	query dto.MetricsRollupQuery,
) (*dto.MetricsRollupListResponse, error) {
	params := url.Values{}
	if query.Granularity != "" {
		params.Add("granularity", query.Granularity)
	}
	if query.Since != "" {
		params.Add("since", query.Since)
	}
	if query.Limit > 0 {
		params.Add("limit", strconv.Itoa(query.Limit))
	}

	path := pathRollups
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result dto.MetricsRollupListResponse
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
