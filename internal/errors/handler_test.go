package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/infrastructure"
)

func newTestHandler(includeStack bool) (*ErrorHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewErrorHandler(logger, includeStack), &buf
}

func decodeProblem(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&got))
	return got
}

type limitQuery struct {
	Limit int `validate:"min=1,max=100"`
}

func TestErrorHandler_ErrorToProblem(t *testing.T) {
	h, _ := newTestHandler(false)
	fieldErr := validator.New().Struct(limitQuery{Limit: 500})
	require.Error(t, fieldErr)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, TypeTimeout},
		{"wrapped cancel", fmt.Errorf("load: %w", context.Canceled), http.StatusGatewayTimeout, TypeTimeout},
		{"validation api error", ErrValidationFailed, http.StatusBadRequest, TypeValidation},
		{"operation not found", fmt.Errorf("cancel: %w", ErrOperationNotFound), http.StatusNotFound, TypeOperationNotFound},
		{"unknown pipeline", ErrUnknownPipeline, http.StatusNotFound, TypePipelineUnknown},
		{"finished", ErrOperationFinished, http.StatusConflict, TypeOperationFinished},
		{"predictions unavailable", ErrPredictionsUnavailable, http.StatusServiceUnavailable, TypePredictionsUnavailable},
		{"validator errors", fieldErr, http.StatusBadRequest, TypeValidation},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, TypePayloadTooLarge},
		{"plain error", fmt.Errorf("user not found"), http.StatusInternalServerError, TypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/test", nil)
			problem := h.ErrorToProblem(tt.err, r)
			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "/api/v1/test", problem.Instance)
		})
	}
}

func TestErrorHandler_ValidatorDetails(t *testing.T) {
	h, _ := newTestHandler(false)
	err := validator.New().Struct(limitQuery{Limit: 0})

	problem := h.ErrorToProblem(err, httptest.NewRequest(http.MethodGet, "/", nil))
	details, ok := problem.Extensions["errors"].([]ValidationError)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, ValidationError{Field: "Limit", Message: "must be at least 1"}, details[0])
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		includeStack bool
		wantStatus   int
		wantLevel    string
		wantStack    bool
	}{
		{"client error logs warn", ErrOperationNotFound, true, http.StatusNotFound, "WARN", false},
		{"server error logs error", fmt.Errorf("disk full"), false, http.StatusInternalServerError, "ERROR", false},
		{"stack on server errors", fmt.Errorf("disk full"), true, http.StatusInternalServerError, "ERROR", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, logs := newTestHandler(tt.includeStack)
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/operations", nil)
			r = r.WithContext(infrastructure.WithTraceID(r.Context(), "trace-123"))

			h.HandleError(w, r, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			got := decodeProblem(t, w.Body)
			assert.Equal(t, "trace-123", got["trace_id"])
			_, hasStack := got["stack"]
			assert.Equal(t, tt.wantStack, hasStack)
			assert.Contains(t, logs.String(), `"level":"`+tt.wantLevel+`"`)
			assert.Contains(t, logs.String(), "request failed")
		})
	}
}

func TestErrorHandler_HandleErrorNil(t *testing.T) {
	h, logs := newTestHandler(false)
	w := httptest.NewRecorder()
	h.HandleError(w, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, 0, w.Body.Len())
	assert.Empty(t, logs.String())
}

func TestErrorHandler_NotFoundAndMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(false)

	w := httptest.NewRecorder()
	h.NotFound(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, TypeNotFound, decodeProblem(t, w.Body)["type"])

	w = httptest.NewRecorder()
	h.MethodNotAllowed(w, httptest.NewRequest(http.MethodDelete, "/api/v1/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	got := decodeProblem(t, w.Body)
	assert.Equal(t, TypeMethodNotAllow, got["type"])
	assert.True(t, strings.Contains(got["detail"].(string), "DELETE"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h, logs := newTestHandler(true)
	handler := RecoveryMiddleware(h)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("something went wrong")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	got := decodeProblem(t, w.Body)
	assert.Equal(t, TypeInternal, got["type"])
	assert.Equal(t, "something went wrong", got["panic"])
	assert.Contains(t, logs.String(), "panic recovered")
}

func TestRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	h, _ := newTestHandler(false)
	handler := RecoveryMiddleware(h)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestLimitBody(t *testing.T) {
	h, _ := newTestHandler(false)
	handler := LimitBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			h.HandleError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("this body is too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
