package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	domainerrors "embedqueue/internal/domain/errors/domain"
)

// classifyTransportError maps a failed round trip onto the domain taxonomy.
// Deadline and net timeouts become TimeoutError, everything else at the
// transport layer is a NetworkError.
func classifyTransportError(operation string, err error, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &domainerrors.TimeoutError{Operation: operation, Elapsed: elapsed}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domainerrors.TimeoutError{Operation: operation, Elapsed: elapsed}
	}

	return &domainerrors.NetworkError{Cause: err}
}

// parseRetryAfter reads a Retry-After header in either of its two valid
// forms, delta-seconds or an HTTP-date. Zero means no usable hint.
func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(header); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}

// errorMessage extracts the provider's error detail from a response body,
// falling back to the raw body and then the HTTP status line.
func errorMessage(body []byte, status string) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}

	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 200 {
		return trimmed
	}
	return status
}
