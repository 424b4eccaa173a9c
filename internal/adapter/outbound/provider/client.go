// Package provider implements the HTTP client for the external embedding
// service. The client paces outbound requests below the provider's published
// rate and translates HTTP failures into the domain error taxonomy the worker
// and circuit breaker act on.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/config"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/outbound"
)

const (
	defaultTimeout = 30 * time.Second

	embedPath  = "generate-embeddings"
	healthPath = "health"

	userAgent = "embedqueue-provider-client/1.0.0"
)

// Client calls the embedding service over HTTP. All requests pass through a
// client-side rate limiter before they are attempted.
type Client struct {
	cfg        config.ProviderConfig
	httpClient *http.Client
	pacer      *rate.Limiter
	logger     *slogger.Logger
}

var _ outbound.EmbeddingProvider = (*Client)(nil)

// NewClient validates the provider configuration and builds a client.
func NewClient(cfg config.ProviderConfig) (*Client, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Endpoint = strings.TrimSuffix(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		cfg:        cfg,
		httpClient: newHTTPClient(cfg.Timeout),
		pacer:      newPacer(cfg.RequestsPerSecond, cfg.Burst),
		logger:     slogger.WithComponent("provider-client"),
	}, nil
}

func validateConfig(cfg config.ProviderConfig) error {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return errors.New("provider endpoint cannot be empty")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return errors.New("provider endpoint must be an http or https URL")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return errors.New("provider api key cannot be empty")
	}
	if cfg.Timeout < 0 {
		return errors.New("provider timeout cannot be negative")
	}
	if cfg.RequestsPerSecond < 0 {
		return errors.New("provider requests_per_second cannot be negative")
	}
	if cfg.Burst < 0 {
		return errors.New("provider burst cannot be negative")
	}
	return nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8,
		MaxConnsPerHost:       16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// newPacer builds the request limiter. A non-positive rate disables pacing.
func newPacer(requestsPerSecond float64, burst int) *rate.Limiter {
	if requestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// embedRequest is the wire form of an embedding request. Model rides along
// when configured so one deployment can pin a non-default embedding model.
type embedRequest struct {
	outbound.EmbeddingRequest
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Success             bool   `json:"success"`
	TotalTokens         int    `json:"totalTokens"`
	EmbeddingsGenerated int    `json:"embeddingsGenerated"`
	Error               string `json:"error,omitempty"`
}

// GenerateEmbeddings asks the provider to embed one source row.
func (c *Client) GenerateEmbeddings(
	ctx context.Context,
	request outbound.EmbeddingRequest,
) (*outbound.EmbeddingResult, error) {
	started := time.Now()

	if err := c.pacer.Wait(ctx); err != nil {
		return nil, &domainerrors.TimeoutError{
			Operation: "embedding request pacing",
			Elapsed:   time.Since(started),
		}
	}

	payload, err := json.Marshal(embedRequest{EmbeddingRequest: request, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, embedPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError("generate embeddings", err, time.Since(started))
	}
	defer c.closeBody(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domainerrors.NetworkError{Cause: fmt.Errorf("read provider response: %w", err)}
	}

	if statusErr := c.checkStatus(ctx, resp, body, request.SourceID); statusErr != nil {
		return nil, statusErr
	}

	var decoded embedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &domainerrors.NetworkError{Cause: fmt.Errorf("decode provider response: %w", err)}
	}
	if !decoded.Success {
		message := decoded.Error
		if message == "" {
			message = "provider reported failure without detail"
		}
		return nil, fmt.Errorf("embedding generation failed: %s", message)
	}

	c.logger.Debug(ctx, "embedding request succeeded", slogger.Fields3(
		"source_id", request.SourceID,
		"total_tokens", decoded.TotalTokens,
		"duration", time.Since(started).String(),
	))

	return &outbound.EmbeddingResult{
		Success:             true,
		TotalTokens:         decoded.TotalTokens,
		EmbeddingsGenerated: decoded.EmbeddingsGenerated,
	}, nil
}

// checkStatus maps a non-2xx response onto the domain error taxonomy.
func (c *Client) checkStatus(ctx context.Context, resp *http.Response, body []byte, sourceID string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil

	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.logger.Warn(ctx, "provider throttled embedding request", slogger.Fields2(
			"source_id", sourceID,
			"retry_after", retryAfter.String(),
		))
		return &domainerrors.RateLimitedError{
			Message:    errorMessage(body, resp.Status),
			RetryAfter: retryAfter,
		}

	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &domainerrors.NetworkError{
			Cause: fmt.Errorf("provider returned %s: %s", resp.Status, errorMessage(body, resp.Status)),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("provider rejected credentials (%s): %s", resp.Status, errorMessage(body, resp.Status))

	default:
		return fmt.Errorf("provider rejected request (%s): %s", resp.Status, errorMessage(body, resp.Status))
	}
}

// Ping verifies the provider endpoint is reachable and authorized. Health
// probes bypass the pacer so a saturated limiter cannot fail readiness.
func (c *Client) Ping(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError("provider health check", err, time.Since(started))
	}
	defer c.closeBody(ctx, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("provider health check failed (%s): %s", resp.Status, errorMessage(body, resp.Status))
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	endpoint := c.cfg.Endpoint + "/" + strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) closeBody(ctx context.Context, body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Warn(ctx, "failed to close provider response body", slogger.Field("error", err.Error()))
	}
}
