package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"valuepulse/internal/operations"
)

type staticOperations []*operations.OperationState

func (s staticOperations) List() []*operations.OperationState { return s }

func TestHealthService_Readiness(t *testing.T) {
	running := operations.NewOperationState("running")
	running.Start()
	done := operations.NewOperationState("done")
	done.Complete()

	tests := []struct {
		name       string
		checkErr   error
		deps       func(*MockChecker) HealthDeps
		wantStatus string
		wantNot    []string
	}{
		{
			name: "all ready",
			deps: func(c *MockChecker) HealthDeps {
				return HealthDeps{StorageBackend: "fs", Predictions: c, Operations: staticOperations{running, done}, Hub: staticHub(2)}
			},
			wantStatus: "ready",
		},
		{
			name:     "predictions missing",
			checkErr: errors.New("predictions unavailable: values_predictions/attacking_predictions.csv not found"),
			deps: func(c *MockChecker) HealthDeps {
				return HealthDeps{StorageBackend: "gcs", Predictions: c, Operations: staticOperations{}, Hub: staticHub(0)}
			},
			wantStatus: "not_ready",
			wantNot:    []string{"predictions"},
		},
		{
			name: "nothing wired",
			deps: func(*MockChecker) HealthDeps {
				return HealthDeps{}
			},
			wantStatus: "not_ready",
			wantNot:    []string{"predictions", "operations", "websocket"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &MockChecker{}
			checker.On("Check", mock.Anything).Return(tt.checkErr).Maybe()

			hs := NewHealthService("1.2.0", "", tt.deps(checker), discardLogger())
			status := hs.ReadinessCheck(context.Background())
			assert.Equal(t, tt.wantStatus, status.Status)
			assert.Equal(t, "1.2.0", status.Version)
			for _, name := range tt.wantNot {
				assert.Equal(t, "not_ready", status.Services[name].(ServiceHealth).Status, name)
			}
		})
	}
}

func TestHealthService_ReadinessMessages(t *testing.T) {
	running := operations.NewOperationState("running")
	running.Start()

	checker := &MockChecker{}
	checker.On("Check", mock.Anything).Return(nil)
	hs := NewHealthService("dev", "", HealthDeps{
		StorageBackend: "postgres",
		Predictions:    checker,
		Operations:     staticOperations{running},
		Hub:            staticHub(1),
	}, discardLogger())

	status := hs.ReadinessCheck(context.Background())
	assert.Equal(t, "1 active operation", status.Services["operations"].(ServiceHealth).Message)
	assert.Equal(t, "1 connected client", status.Services["websocket"].(ServiceHealth).Message)
	assert.Equal(t, "predictions loaded from postgres", status.Services["predictions"].(ServiceHealth).Message)
	checker.AssertExpectations(t)
}

func TestHealthService_LivenessAndVersion(t *testing.T) {
	hs := NewHealthService("1.2.0", "2024-08-01T00:00:00Z", HealthDeps{StorageBackend: "fs"}, discardLogger())

	live := hs.LivenessCheck(context.Background())
	assert.Equal(t, "alive", live.Status)
	assert.Contains(t, live.Runtime, "goroutines")

	assert.Equal(t, "ok", hs.HealthCheck(context.Background()).Status)

	v := hs.Version()
	assert.Equal(t, "1.2.0", v["version"])
	assert.Equal(t, "fs", v["storage_backend"])
	assert.Equal(t, "2024-08-01T00:00:00Z", v["build_time"])
}
