package testutil

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"embedqueue/internal/application/common/observability"
	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/inbound"

	"github.com/google/uuid"
)

// Compile-time interface compliance checks.
var (
	_ inbound.QueueService          = (*MockQueueService)(nil)
	_ inbound.HealthService         = (*MockHealthService)(nil)
	_ inbound.WorkerControl         = (*MockWorkerControl)(nil)
	_ inbound.CircuitBreakerControl = (*MockBreakerControl)(nil)
	_ inbound.MetricsQueryService   = (*MockMetricsQuery)(nil)
)

// MockQueueService implements inbound.QueueService for testing.
type MockQueueService struct {
	mu sync.RWMutex

	EnqueueItemFunc func(ctx context.Context, request dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error)
	GetItemFunc     func(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error)
	QueueStatusFunc func(ctx context.Context) (*dto.QueueStatusResponse, error)

	EnqueueItemCalls []EnqueueItemCall
	GetItemCalls     []GetItemCall
	QueueStatusCalls []QueueStatusCall
}

type EnqueueItemCall struct {
	Ctx     context.Context
	Request dto.EnqueueItemRequest
}

type GetItemCall struct {
	Ctx context.Context
	ID  uuid.UUID
}

type QueueStatusCall struct {
	Ctx context.Context
}

func NewMockQueueService() *MockQueueService {
	return &MockQueueService{}
}

func (m *MockQueueService) EnqueueItem(ctx context.Context, request dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EnqueueItemCalls = append(m.EnqueueItemCalls, EnqueueItemCall{Ctx: ctx, Request: request})

	if m.EnqueueItemFunc != nil {
		return m.EnqueueItemFunc(ctx, request)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockQueueService) GetItem(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetItemCalls = append(m.GetItemCalls, GetItemCall{Ctx: ctx, ID: id})

	if m.GetItemFunc != nil {
		return m.GetItemFunc(ctx, id)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockQueueService) QueueStatus(ctx context.Context) (*dto.QueueStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.QueueStatusCalls = append(m.QueueStatusCalls, QueueStatusCall{Ctx: ctx})

	if m.QueueStatusFunc != nil {
		return m.QueueStatusFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockQueueService) ExpectEnqueueItem(response *dto.EnqueueItemResponse, err error) {
	m.EnqueueItemFunc = func(ctx context.Context, request dto.EnqueueItemRequest) (*dto.EnqueueItemResponse, error) {
		return response, err
	}
}

func (m *MockQueueService) ExpectGetItem(response *dto.QueueItemResponse, err error) {
	m.GetItemFunc = func(ctx context.Context, id uuid.UUID) (*dto.QueueItemResponse, error) {
		return response, err
	}
}

func (m *MockQueueService) ExpectQueueStatus(response *dto.QueueStatusResponse, err error) {
	m.QueueStatusFunc = func(ctx context.Context) (*dto.QueueStatusResponse, error) {
		return response, err
	}
}

// MockHealthService implements inbound.HealthService for testing.
type MockHealthService struct {
	mu sync.RWMutex

	GetHealthFunc  func(ctx context.Context) (*dto.HealthResponse, error)
	GetHealthCalls []GetHealthCall
}

type GetHealthCall struct {
	Ctx context.Context
}

func NewMockHealthService() *MockHealthService {
	return &MockHealthService{}
}

func (m *MockHealthService) GetHealth(ctx context.Context) (*dto.HealthResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetHealthCalls = append(m.GetHealthCalls, GetHealthCall{Ctx: ctx})

	if m.GetHealthFunc != nil {
		return m.GetHealthFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockHealthService) ExpectGetHealth(response *dto.HealthResponse, err error) {
	m.GetHealthFunc = func(ctx context.Context) (*dto.HealthResponse, error) {
		return response, err
	}
}

// MockWorkerControl implements inbound.WorkerControl for testing.
type MockWorkerControl struct {
	mu sync.RWMutex

	StartFunc  func(ctx context.Context) (*dto.WorkerStartResponse, error)
	StopFunc   func(ctx context.Context) (*dto.WorkerStopResponse, error)
	StatusFunc func(ctx context.Context) (*dto.WorkerStatusResponse, error)

	StartCalls  int
	StopCalls   int
	StatusCalls int
}

func NewMockWorkerControl() *MockWorkerControl {
	return &MockWorkerControl{}
}

func (m *MockWorkerControl) Start(ctx context.Context) (*dto.WorkerStartResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartCalls++

	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockWorkerControl) Stop(ctx context.Context) (*dto.WorkerStopResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StopCalls++

	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockWorkerControl) Status(ctx context.Context) (*dto.WorkerStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusCalls++

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockWorkerControl) ExpectStart(response *dto.WorkerStartResponse, err error) {
	m.StartFunc = func(ctx context.Context) (*dto.WorkerStartResponse, error) {
		return response, err
	}
}

func (m *MockWorkerControl) ExpectStop(response *dto.WorkerStopResponse, err error) {
	m.StopFunc = func(ctx context.Context) (*dto.WorkerStopResponse, error) {
		return response, err
	}
}

func (m *MockWorkerControl) ExpectStatus(response *dto.WorkerStatusResponse, err error) {
	m.StatusFunc = func(ctx context.Context) (*dto.WorkerStatusResponse, error) {
		return response, err
	}
}

// MockBreakerControl implements inbound.CircuitBreakerControl for testing.
type MockBreakerControl struct {
	mu sync.RWMutex

	StatusFunc func(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error)
	ResetFunc  func(ctx context.Context, request dto.CircuitBreakerResetRequest) (*dto.CircuitBreakerResetResponse, error)

	StatusCalls int
	ResetCalls  []BreakerResetCall
}

type BreakerResetCall struct {
	Ctx     context.Context
	Request dto.CircuitBreakerResetRequest
}

func NewMockBreakerControl() *MockBreakerControl {
	return &MockBreakerControl{}
}

func (m *MockBreakerControl) Status(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusCalls++

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockBreakerControl) Reset(ctx context.Context, request dto.CircuitBreakerResetRequest) (*dto.CircuitBreakerResetResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ResetCalls = append(m.ResetCalls, BreakerResetCall{Ctx: ctx, Request: request})

	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, request)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockBreakerControl) ExpectStatus(response *dto.CircuitBreakerStatusResponse, err error) {
	m.StatusFunc = func(ctx context.Context) (*dto.CircuitBreakerStatusResponse, error) {
		return response, err
	}
}

func (m *MockBreakerControl) ExpectReset(response *dto.CircuitBreakerResetResponse, err error) {
	m.ResetFunc = func(ctx context.Context, request dto.CircuitBreakerResetRequest) (*dto.CircuitBreakerResetResponse, error) {
		return response, err
	}
}

// MockMetricsQuery implements inbound.MetricsQueryService for testing.
type MockMetricsQuery struct {
	mu sync.RWMutex

	GetRollupsFunc  func(ctx context.Context, query dto.MetricsRollupQuery) (*dto.MetricsRollupListResponse, error)
	GetRollupsCalls []GetRollupsCall
}

type GetRollupsCall struct {
	Ctx   context.Context
	Query dto.MetricsRollupQuery
}

func NewMockMetricsQuery() *MockMetricsQuery {
	return &MockMetricsQuery{}
}

func (m *MockMetricsQuery) GetRollups(ctx context.Context, query dto.MetricsRollupQuery) (*dto.MetricsRollupListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetRollupsCalls = append(m.GetRollupsCalls, GetRollupsCall{Ctx: ctx, Query: query})

	if m.GetRollupsFunc != nil {
		return m.GetRollupsFunc(ctx, query)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockMetricsQuery) ExpectGetRollups(response *dto.MetricsRollupListResponse, err error) {
	m.GetRollupsFunc = func(ctx context.Context, query dto.MetricsRollupQuery) (*dto.MetricsRollupListResponse, error) {
		return response, err
	}
}

// MockRuntimeCollector satisfies the API layer's RuntimeCollector interface.
type MockRuntimeCollector struct {
	mu sync.RWMutex

	SnapshotFunc  func(ctx context.Context) (*observability.RuntimeSnapshot, error)
	SnapshotCalls int
}

func NewMockRuntimeCollector() *MockRuntimeCollector {
	return &MockRuntimeCollector{}
}

func (m *MockRuntimeCollector) Snapshot(ctx context.Context) (*observability.RuntimeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SnapshotCalls++

	if m.SnapshotFunc != nil {
		return m.SnapshotFunc(ctx)
	}

	return nil, errors.New("mock not configured")
}

func (m *MockRuntimeCollector) ExpectSnapshot(snapshot *observability.RuntimeSnapshot, err error) {
	m.SnapshotFunc = func(ctx context.Context) (*observability.RuntimeSnapshot, error) {
		return snapshot, err
	}
}

// MockErrorHandler implements the API layer's ErrorHandler for testing.
type MockErrorHandler struct {
	mu sync.RWMutex

	HandleValidationErrorFunc func(w http.ResponseWriter, r *http.Request, err error)
	HandleServiceErrorFunc    func(w http.ResponseWriter, r *http.Request, err error)

	HandleValidationErrorCalls []HandleValidationErrorCall
	HandleServiceErrorCalls    []HandleServiceErrorCall
}

type HandleValidationErrorCall struct {
	ResponseWriter http.ResponseWriter
	Request        *http.Request
	Error          error
}

type HandleServiceErrorCall struct {
	ResponseWriter http.ResponseWriter
	Request        *http.Request
	Error          error
}

func NewMockErrorHandler() *MockErrorHandler {
	return &MockErrorHandler{}
}

func (m *MockErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandleValidationErrorCalls = append(m.HandleValidationErrorCalls, HandleValidationErrorCall{
		ResponseWriter: w,
		Request:        r,
		Error:          err,
	})

	if m.HandleValidationErrorFunc != nil {
		m.HandleValidationErrorFunc(w, r, err)
		return
	}

	http.Error(w, "validation error", http.StatusBadRequest)
}

func (m *MockErrorHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.HandleServiceErrorCalls = append(m.HandleServiceErrorCalls, HandleServiceErrorCall{
		ResponseWriter: w,
		Request:        r,
		Error:          err,
	})

	if m.HandleServiceErrorFunc != nil {
		m.HandleServiceErrorFunc(w, r, err)
		return
	}

	var alreadyRunning *domainerrors.AlreadyRunningError
	switch {
	case errors.Is(err, domainerrors.ErrItemNotFound):
		http.Error(w, "service error", http.StatusNotFound)
	case errors.Is(err, domainerrors.ErrItemAlreadyExists):
		http.Error(w, "service error", http.StatusConflict)
	case errors.As(err, &alreadyRunning):
		http.Error(w, "service error", http.StatusConflict)
	default:
		http.Error(w, "service error", http.StatusInternalServerError)
	}
}

func (m *MockErrorHandler) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HandleValidationErrorCalls = nil
	m.HandleServiceErrorCalls = nil
}
