package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "valuepulse/internal/errors"
	"valuepulse/internal/middleware"
	"valuepulse/internal/operations"
	"valuepulse/internal/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator(t *testing.T) *middleware.Validator {
	t.Helper()
	v, err := middleware.NewValidator(discardLogger(), map[string]validator.Func{
		"pipeline_name": middleware.PipelineName,
	})
	require.NoError(t, err)
	return v
}

func testErrorHandler() *apierrors.ErrorHandler {
	return apierrors.NewErrorHandler(discardLogger(), false)
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Count  *int            `json:"count"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var p map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	return p
}

// MockPredictionService is a mock PredictionServiceInterface
type MockPredictionService struct {
	mock.Mock
}

func (m *MockPredictionService) Predict(ctx context.Context, query services.PredictionQuery) ([]services.Prediction, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.Prediction), args.Error(1)
}

func (m *MockPredictionService) Player(ctx context.Context, name string) (services.Prediction, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(services.Prediction), args.Error(1)
}

func (m *MockPredictionService) Team(ctx context.Context, team string) ([]services.Prediction, error) {
	args := m.Called(ctx, team)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.Prediction), args.Error(1)
}

func (m *MockPredictionService) League(ctx context.Context, league string, limit int) ([]services.TeamValuation, error) {
	args := m.Called(ctx, league, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]services.TeamValuation), args.Error(1)
}

func (m *MockPredictionService) Dropdowns(ctx context.Context) (services.Dropdowns, error) {
	args := m.Called(ctx)
	return args.Get(0).(services.Dropdowns), args.Error(1)
}

// MockOperationsService is a mock OperationServiceInterface
type MockOperationsService struct {
	mock.Mock
}

func (m *MockOperationsService) StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationState, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.OperationState), args.Error(1)
}

func (m *MockOperationsService) GetOperation(ctx context.Context, id string) (*operations.OperationState, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*operations.OperationState), args.Error(1)
}

func (m *MockOperationsService) ListOperations(ctx context.Context) ([]*operations.OperationState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*operations.OperationState), args.Error(1)
}

func (m *MockOperationsService) ListOperationsByStatus(ctx context.Context, status operations.OperationStatusValue) ([]*operations.OperationState, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*operations.OperationState), args.Error(1)
}

func (m *MockOperationsService) CancelOperation(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockOperationsService) GetOperationTypes(ctx context.Context) ([]operations.OperationType, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]operations.OperationType), args.Error(1)
}

func (m *MockOperationsService) GetOperationMetrics(ctx context.Context) (map[string]interface{}, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]interface{}), args.Error(1)
}
