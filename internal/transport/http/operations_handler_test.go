package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/middleware"
	"valuepulse/internal/operations"
	"valuepulse/internal/services"
)

func newOperationsRouter(t *testing.T, svc *MockOperationsService, guard func(http.Handler) http.Handler) http.Handler {
	t.Helper()
	h := NewOperationsHandler(svc, testValidator(t), testErrorHandler(), guard, discardLogger())
	r := chi.NewRouter()
	r.Mount("/operations", h.Routes())
	return r
}

func sampleState(id, pipeline string, status operations.OperationStatusValue) *operations.OperationState {
	s := operations.NewOperationState(id)
	s.Pipeline = pipeline
	s.Status = status
	s.StepOrder = []string{pipeline}
	return s
}

func TestOperationsHandler_StartOperation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantReq    *operations.OperationRequest
		err        error
		wantStatus int
		wantType   string
	}{
		{
			name:       "single pipeline",
			body:       `{"pipeline":"train_forwards","parameters":{"league":"EPL"}}`,
			wantReq:    &operations.OperationRequest{Pipeline: "train_forwards", Parameters: map[string]string{"league": "EPL"}},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "everything",
			body:       `{}`,
			wantReq:    &operations.OperationRequest{},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "with dependencies",
			body:       `{"pipeline":"predict_forwards","with_dependencies":true}`,
			wantReq:    &operations.OperationRequest{Pipeline: "predict_forwards", WithDependencies: true},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "malformed json",
			body:       `{"pipeline":`,
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/validation",
		},
		{
			name:       "invalid pipeline name",
			body:       `{"pipeline":"Robert'); DROP TABLE"}`,
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/validation",
		},
		{
			name:       "unknown pipeline",
			body:       `{"pipeline":"train_goalkeepers"}`,
			wantReq:    &operations.OperationRequest{Pipeline: "train_goalkeepers"},
			err:        fmt.Errorf("%w: %q", services.ErrUnknownPipeline, "train_goalkeepers"),
			wantStatus: http.StatusNotFound,
			wantType:   "/errors/pipeline/unknown",
		},
		{
			name:       "shutting down",
			body:       `{"pipeline":"train_forwards"}`,
			wantReq:    &operations.OperationRequest{Pipeline: "train_forwards"},
			err:        fmt.Errorf("failed to start operation: %w", operations.ErrManagerClosed),
			wantStatus: http.StatusServiceUnavailable,
			wantType:   "/errors/service-unavailable",
		},
		{
			name:       "nothing to run",
			body:       `{"pipeline":"train_forwards"}`,
			wantReq:    &operations.OperationRequest{Pipeline: "train_forwards"},
			err:        fmt.Errorf("failed to start operation: %w", operations.NewValidationError("", "no steps to run")),
			wantStatus: http.StatusBadRequest,
			wantType:   "/errors/validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockOperationsService{}
			if tt.wantReq != nil {
				call := svc.On("StartOperation", mock.Anything, *tt.wantReq).Once()
				if tt.err != nil {
					call.Return(nil, tt.err)
				} else {
					call.Return(sampleState("op-1", tt.wantReq.Pipeline, operations.OperationStatusPending), nil)
				}
			}

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/operations/", strings.NewReader(tt.body))
			r.Header.Set("Content-Type", "application/json")
			newOperationsRouter(t, svc, nil).ServeHTTP(w, r)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, decodeProblem(t, w)["type"])
			} else {
				var got operations.OperationState
				env := decodeEnvelope(t, w, &got)
				assert.Equal(t, StatusSuccess, env.Status)
				assert.Equal(t, "op-1", got.ID)
				assert.Equal(t, "/operations/op-1", w.Header().Get("Location"))
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_StartRejectsOversizedParameters(t *testing.T) {
	params := make([]string, 0, 21)
	for i := range 21 {
		params = append(params, fmt.Sprintf(`"p%d":"v"`, i))
	}
	body := `{"pipeline":"train_forwards","parameters":{` + strings.Join(params, ",") + `}}`

	svc := &MockOperationsService{}
	w := httptest.NewRecorder()
	newOperationsRouter(t, svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/operations/", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "StartOperation", mock.Anything, mock.Anything)
}

func TestOperationsHandler_GetOperation(t *testing.T) {
	svc := &MockOperationsService{}
	svc.On("GetOperation", mock.Anything, "op-1").Return(sampleState("op-1", "clean_fbref", operations.OperationStatusRunning), nil)
	svc.On("GetOperation", mock.Anything, "missing").Return(nil, fmt.Errorf("missing: %w", operations.ErrOperationNotFound))
	router := newOperationsRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operations/op-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var got operations.OperationState
	decodeEnvelope(t, w, &got)
	assert.Equal(t, operations.OperationStatusRunning, got.Status)
	assert.Equal(t, "clean_fbref", got.Pipeline)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operations/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "OPERATION_NOT_FOUND", decodeProblem(t, w)["error_code"])
}

func TestOperationsHandler_ListOperations(t *testing.T) {
	ops := []*operations.OperationState{
		sampleState("a", "clean_fbref", operations.OperationStatusCompleted),
		sampleState("b", "train_forwards", operations.OperationStatusRunning),
	}

	tests := []struct {
		name       string
		url        string
		setup      func(*MockOperationsService)
		wantStatus int
		wantCount  int
	}{
		{
			name: "all",
			url:  "/operations/",
			setup: func(m *MockOperationsService) {
				m.On("ListOperations", mock.Anything).Return(ops, nil)
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name: "by status",
			url:  "/operations/?status=running",
			setup: func(m *MockOperationsService) {
				m.On("ListOperationsByStatus", mock.Anything, operations.OperationStatusRunning).Return(ops[1:], nil)
			},
			wantStatus: http.StatusOK,
			wantCount:  1,
		},
		{
			name:       "bad status",
			url:        "/operations/?status=sleeping",
			setup:      func(*MockOperationsService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "service failure",
			url:  "/operations/",
			setup: func(m *MockOperationsService) {
				m.On("ListOperations", mock.Anything).Return(nil, errors.New("boom"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockOperationsService{}
			tt.setup(svc)

			w := httptest.NewRecorder()
			newOperationsRouter(t, svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				env := decodeEnvelope(t, w, nil)
				assert.Equal(t, tt.wantCount, *env.Count)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_CancelOperation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"running", nil, http.StatusAccepted, ""},
		{"unknown", operations.ErrOperationNotFound, http.StatusNotFound, "OPERATION_NOT_FOUND"},
		{"already finished", operations.ErrOperationCompleted, http.StatusConflict, "OPERATION_FINISHED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockOperationsService{}
			svc.On("CancelOperation", mock.Anything, "op-1").Return(tt.err).Once()

			w := httptest.NewRecorder()
			newOperationsRouter(t, svc, nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/operations/op-1/cancel", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeProblem(t, w)["error_code"])
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_GuardProtectsMutations(t *testing.T) {
	svc := &MockOperationsService{}
	svc.On("ListOperations", mock.Anything).Return([]*operations.OperationState{}, nil)
	svc.On("StartOperation", mock.Anything, mock.Anything).
		Return(sampleState("op-1", "clean_fbref", operations.OperationStatusPending), nil).Once()

	guard := middleware.APIKeyAuth(discardLogger(), map[string]string{"secret": "scheduler"})
	router := newOperationsRouter(t, svc, guard)

	// reads stay open
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operations/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/operations/", strings.NewReader(`{"pipeline":"clean_fbref"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/operations/op-1/cancel", nil)
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodPost, "/operations/", strings.NewReader(`{"pipeline":"clean_fbref"}`))
	r.Header.Set(middleware.APIKeyHeader, "secret")
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusAccepted, w.Code)

	svc.AssertExpectations(t)
}

func TestOperationsHandler_TypesAndMetrics(t *testing.T) {
	svc := &MockOperationsService{}
	svc.On("GetOperationTypes", mock.Anything).Return([]operations.OperationType{
		{ID: "clean_fbref", Name: "Clean FBref"},
		{ID: "train_forwards", Name: "Train forwards", Dependencies: []string{"clean_fbref"}},
	}, nil)
	svc.On("GetOperationMetrics", mock.Anything).Return(map[string]interface{}{
		"total_operations":  3,
		"active_operations": 1,
	}, nil)
	router := newOperationsRouter(t, svc, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operations/pipelines", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var types []operations.OperationType
	env := decodeEnvelope(t, w, &types)
	assert.Equal(t, 2, *env.Count)
	assert.Equal(t, []string{"clean_fbref"}, types[1].Dependencies)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/operations/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var m map[string]float64
	decodeEnvelope(t, w, &m)
	assert.Equal(t, float64(3), m["total_operations"])
}
