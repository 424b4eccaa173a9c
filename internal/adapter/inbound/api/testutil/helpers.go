// Package testutil provides mocks and builders for API handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"embedqueue/internal/application/dto"

	"github.com/google/uuid"
)

// CreateJSONRequest creates an HTTP request with a JSON body.
func CreateJSONRequest(method, url string, body interface{}) *http.Request {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, url, reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateRequest creates a simple HTTP request.
func CreateRequest(method, url string) *http.Request {
	return httptest.NewRequest(method, url, nil)
}

// CreateRequestWithBody creates an HTTP request with a body reader.
func CreateRequestWithBody(method, url string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CreateRequestWithPathParams creates an HTTP request carrying ServeMux path
// values, the way a registered pattern would populate them.
func CreateRequestWithPathParams(method, url string, pathParams map[string]string) *http.Request {
	req := httptest.NewRequest(method, url, nil)
	for key, value := range pathParams {
		req.SetPathValue(key, value)
	}
	return req
}

// CreateJSONRequestWithPathParams creates an HTTP request with both a JSON
// body and ServeMux path values.
func CreateJSONRequestWithPathParams(method, url string, body interface{}, pathParams map[string]string) *http.Request {
	req := CreateJSONRequest(method, url, body)
	for key, value := range pathParams {
		req.SetPathValue(key, value)
	}
	return req
}

// ParseJSONResponse parses the JSON response from a ResponseRecorder.
func ParseJSONResponse(recorder *httptest.ResponseRecorder, target interface{}) error {
	return json.Unmarshal(recorder.Body.Bytes(), target)
}

// TestItemID1 returns a fixed UUID for testing.
func TestItemID1() uuid.UUID {
	return uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")
}

// TestItemID2 returns a fixed UUID for testing.
func TestItemID2() uuid.UUID {
	return uuid.MustParse("123e4567-e89b-12d3-a456-426614174001")
}

// EnqueueItemRequestBuilder builds EnqueueItemRequest for testing.
type EnqueueItemRequestBuilder struct {
	request dto.EnqueueItemRequest
}

func NewEnqueueItemRequestBuilder() *EnqueueItemRequestBuilder {
	return &EnqueueItemRequestBuilder{
		request: dto.EnqueueItemRequest{
			SourceType: "receipts",
			SourceID:   uuid.NewString(),
			Operation:  "INSERT",
			Priority:   "medium",
		},
	}
}

func (b *EnqueueItemRequestBuilder) WithSourceType(sourceType string) *EnqueueItemRequestBuilder {
	b.request.SourceType = sourceType
	return b
}

func (b *EnqueueItemRequestBuilder) WithSourceID(sourceID string) *EnqueueItemRequestBuilder {
	b.request.SourceID = sourceID
	return b
}

func (b *EnqueueItemRequestBuilder) WithOperation(operation string) *EnqueueItemRequestBuilder {
	b.request.Operation = operation
	return b
}

func (b *EnqueueItemRequestBuilder) WithPriority(priority string) *EnqueueItemRequestBuilder {
	b.request.Priority = priority
	return b
}

func (b *EnqueueItemRequestBuilder) WithMetadata(metadata *dto.ItemMetadata) *EnqueueItemRequestBuilder {
	b.request.Metadata = metadata
	return b
}

func (b *EnqueueItemRequestBuilder) Build() dto.EnqueueItemRequest {
	return b.request
}

// QueueItemResponseBuilder builds QueueItemResponse for testing.
type QueueItemResponseBuilder struct {
	response dto.QueueItemResponse
}

func NewQueueItemResponseBuilder() *QueueItemResponseBuilder {
	now := time.Now()
	return &QueueItemResponseBuilder{
		response: dto.QueueItemResponse{
			ID:         uuid.New(),
			SourceType: "receipts",
			SourceID:   uuid.NewString(),
			Operation:  "INSERT",
			Priority:   "medium",
			Status:     "pending",
			MaxRetries: 3,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
}

func (b *QueueItemResponseBuilder) WithID(id uuid.UUID) *QueueItemResponseBuilder {
	b.response.ID = id
	return b
}

func (b *QueueItemResponseBuilder) WithStatus(status string) *QueueItemResponseBuilder {
	b.response.Status = status
	return b
}

func (b *QueueItemResponseBuilder) WithPriority(priority string) *QueueItemResponseBuilder {
	b.response.Priority = priority
	return b
}

func (b *QueueItemResponseBuilder) WithRetryCount(count int) *QueueItemResponseBuilder {
	b.response.RetryCount = count
	return b
}

func (b *QueueItemResponseBuilder) Build() dto.QueueItemResponse {
	return b.response
}

// HealthResponseBuilder builds HealthResponse for testing.
type HealthResponseBuilder struct {
	response dto.HealthResponse
}

func NewHealthResponseBuilder() *HealthResponseBuilder {
	return &HealthResponseBuilder{
		response: dto.HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now(),
			Version:   "1.0.0",
		},
	}
}

func (b *HealthResponseBuilder) WithStatus(status string) *HealthResponseBuilder {
	b.response.Status = status
	return b
}

func (b *HealthResponseBuilder) WithVersion(version string) *HealthResponseBuilder {
	b.response.Version = version
	return b
}

func (b *HealthResponseBuilder) WithDependency(name, status string) *HealthResponseBuilder {
	if b.response.Dependencies == nil {
		b.response.Dependencies = make(map[string]dto.DependencyStatus)
	}
	b.response.Dependencies[name] = dto.DependencyStatus{Status: status}
	return b
}

func (b *HealthResponseBuilder) Build() dto.HealthResponse {
	return b.response
}
