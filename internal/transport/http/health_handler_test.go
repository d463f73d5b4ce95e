package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/operations"
	"valuepulse/internal/services"
)

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) Check(ctx context.Context) error { return f(ctx) }

type fixedOps []*operations.OperationState

func (f fixedOps) List() []*operations.OperationState { return f }

type fixedHub int

func (h fixedHub) ClientCount() int { return int(h) }

func newHealthHandler(predErr error) *HealthHandler {
	svc := services.NewHealthService("1.2.3", "2026-01-01T00:00:00Z", services.HealthDeps{
		StorageBackend: "local",
		Predictions:    checkerFunc(func(context.Context) error { return predErr }),
		Operations:     fixedOps{},
		Hub:            fixedHub(2),
	}, discardLogger())
	return NewHealthHandler(svc, discardLogger())
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		predErr    error
		wantStatus int
		wantBody   string
	}{
		{"ready", nil, http.StatusOK, "ready"},
		{"predictions missing", errors.New("predictions unavailable"), http.StatusServiceUnavailable, "not_ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newHealthHandler(tt.predErr).ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var body services.HealthStatus
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantBody, body.Status)
			assert.Contains(t, body.Services, "predictions")
		})
	}
}

func TestHealthHandler_LivenessAndVersion(t *testing.T) {
	h := newHealthHandler(errors.New("not loaded"))

	// liveness does not depend on predictions
	w := httptest.NewRecorder()
	h.LivenessCheck(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alive"`)

	w = httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.Version(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var v map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	assert.Equal(t, "1.2.3", v["version"])
	assert.Equal(t, "local", v["storage_backend"])
	assert.Equal(t, "2026-01-01T00:00:00Z", v["build_time"])
}
