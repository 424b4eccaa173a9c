package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"embedqueue/internal/application/common"
	"embedqueue/internal/application/dto"
	domainerrors "embedqueue/internal/domain/errors/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// errorBody mirrors dto.ErrorResponse with concrete detail typing for
// assertions.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details struct {
		Errors []dto.ValidationError `json:"errors"`
	} `json:"details"`
}

func decodeErrorBody(t *testing.T, recorder *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestDefaultErrorHandler_HandleServiceError(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedCode    string
		expectedMessage string
	}{
		{
			name:            "item_not_found_maps_to_404",
			err:             domainerrors.ErrItemNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedCode:    "ITEM_NOT_FOUND",
			expectedMessage: "Queue item not found",
		},
		{
			name:            "wrapped_item_not_found_still_maps_to_404",
			err:             common.WrapServiceError(common.OpRetrieveItem, domainerrors.ErrItemNotFound),
			expectedStatus:  http.StatusNotFound,
			expectedCode:    "ITEM_NOT_FOUND",
			expectedMessage: "Queue item not found",
		},
		{
			name:            "wrapped_duplicate_maps_to_409",
			err:             common.WrapServiceError(common.OpEnqueueItem, domainerrors.ErrItemAlreadyExists),
			expectedStatus:  http.StatusConflict,
			expectedCode:    "ITEM_ALREADY_EXISTS",
			expectedMessage: "Queue item already exists",
		},
		{
			name:            "already_running_maps_to_409",
			err:             &domainerrors.AlreadyRunningError{WorkerID: "worker-a1b2", Status: "running"},
			expectedStatus:  http.StatusConflict,
			expectedCode:    "WORKER_ALREADY_RUNNING",
			expectedMessage: "worker worker-a1b2 is already running",
		},
		{
			name:            "unknown_error_maps_to_500",
			err:             errors.New("pgx: connection refused"),
			expectedStatus:  http.StatusInternalServerError,
			expectedCode:    "INTERNAL_ERROR",
			expectedMessage: "An internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewDefaultErrorHandler()

			req := httptest.NewRequest(http.MethodGet, "/queue/items", nil)
			recorder := httptest.NewRecorder()

			handler.HandleServiceError(recorder, req, tt.err)

			assert.Equal(t, tt.expectedStatus, recorder.Code)
			assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

			body := decodeErrorBody(t, recorder)
			assert.Equal(t, tt.expectedCode, body.Error)
			assert.Equal(t, tt.expectedMessage, body.Message)
		})
	}
}

func TestDefaultErrorHandler_InternalErrorsDoNotLeak(t *testing.T) {
	handler := NewDefaultErrorHandler()

	req := httptest.NewRequest(http.MethodGet, "/queue/status", nil)
	recorder := httptest.NewRecorder()

	handler.HandleServiceError(recorder, req, errors.New("dial tcp 10.0.0.5:5432: connect: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.NotContains(t, recorder.Body.String(), "10.0.0.5")
	assert.NotContains(t, recorder.Body.String(), "connection refused")
}

func TestDefaultErrorHandler_ServiceErrorCarryingValidation(t *testing.T) {
	handler := NewDefaultErrorHandler()

	req := httptest.NewRequest(http.MethodPost, "/queue/items", nil)
	recorder := httptest.NewRecorder()

	err := common.WrapServiceError(
		common.OpEnqueueItem,
		domainerrors.NewValidationError("Granularity", "must be hourly or daily"),
	)
	handler.HandleServiceError(recorder, req, err)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	body := decodeErrorBody(t, recorder)
	assert.Equal(t, "INVALID_REQUEST", body.Error)
	require.Len(t, body.Details.Errors, 1)
	assert.Equal(t, "Granularity", body.Details.Errors[0].Field)
}

func TestDefaultErrorHandler_HandleValidationError(t *testing.T) {
	t.Run("field_error_includes_details", func(t *testing.T) {
		handler := NewDefaultErrorHandler()

		req := httptest.NewRequest(http.MethodPost, "/queue/items", nil)
		recorder := httptest.NewRecorder()

		handler.HandleValidationError(recorder, req, domainerrors.NewValidationError("source_type", "source_type is required"))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		body := decodeErrorBody(t, recorder)
		assert.Equal(t, "INVALID_REQUEST", body.Error)
		assert.Equal(t, "Validation failed", body.Message)
		require.Len(t, body.Details.Errors, 1)
		assert.Equal(t, "source_type", body.Details.Errors[0].Field)
		assert.Equal(t, "source_type is required", body.Details.Errors[0].Message)
	})

	t.Run("plain_error_uses_its_message", func(t *testing.T) {
		handler := NewDefaultErrorHandler()

		req := httptest.NewRequest(http.MethodPost, "/queue/items", nil)
		recorder := httptest.NewRecorder()

		handler.HandleValidationError(recorder, req, errors.New("request body is required"))

		assert.Equal(t, http.StatusBadRequest, recorder.Code)

		body := decodeErrorBody(t, recorder)
		assert.Equal(t, "INVALID_REQUEST", body.Error)
		assert.Equal(t, "request body is required", body.Message)
		assert.Empty(t, body.Details.Errors)
	})
}

func TestDefaultErrorHandler_PreservesCorrelationID(t *testing.T) {
	handler := NewDefaultErrorHandler()

	req := httptest.NewRequest(http.MethodGet, "/queue/items", nil)
	req.Header.Set("X-Correlation-ID", "corr-123")
	recorder := httptest.NewRecorder()

	handler.HandleServiceError(recorder, req, domainerrors.ErrItemNotFound)

	assert.Equal(t, "corr-123", recorder.Header().Get("X-Correlation-ID"))
}
