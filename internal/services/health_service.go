package services

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"valuepulse/internal/operations"
)

// ReadinessChecker reports whether a dependency can serve requests
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// HubStats exposes websocket hub counters
type HubStats interface {
	ClientCount() int
}

// OperationLister lists tracked operations
type OperationLister interface {
	List() []*operations.OperationState
}

// HealthService provides health check functionality
type HealthService struct {
	version     string
	buildTime   string
	backend     string
	predictions ReadinessChecker
	operations  OperationLister
	hub         HubStats
	startTime   time.Time
	logger      *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// HealthDeps are the components readiness depends on. Nil fields are
// reported as not configured.
type HealthDeps struct {
	StorageBackend string
	Predictions    ReadinessChecker
	Operations     OperationLister
	Hub            HubStats
}

// NewHealthService creates a health service
func NewHealthService(version, buildTime string, deps HealthDeps, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("health service initialized",
		slog.String("version", version),
		slog.String("storage_backend", deps.StorageBackend))
	return &HealthService{
		version:     version,
		buildTime:   buildTime,
		backend:     deps.StorageBackend,
		predictions: deps.Predictions,
		operations:  deps.Operations,
		hub:         deps.Hub,
		startTime:   time.Now(),
		logger:      logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   hs.version,
	}
}

// ReadinessCheck reports each dependency; the service is ready only when
// all of them are
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"predictions": hs.checkPredictions(ctx),
			"operations":  hs.checkOperations(),
			"websocket":   hs.checkWebSocket(),
		},
	}
	for name, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			status.Status = "not_ready"
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("dependency", name),
				slog.String("message", sh.Message))
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	result := map[string]interface{}{
		"version":         hs.version,
		"go_version":      runtime.Version(),
		"os":              runtime.GOOS,
		"arch":            runtime.GOARCH,
		"storage_backend": hs.backend,
		"uptime":          time.Since(hs.startTime).Seconds(),
		"start_time":      hs.startTime.Format(time.RFC3339),
	}
	if hs.buildTime != "" {
		result["build_time"] = hs.buildTime
	}
	return result
}

func (hs *HealthService) checkPredictions(ctx context.Context) ServiceHealth {
	if hs.predictions == nil {
		return ServiceHealth{Status: "not_ready", Message: "predictions not configured"}
	}
	if err := hs.predictions.Check(ctx); err != nil {
		return ServiceHealth{Status: "not_ready", Message: err.Error()}
	}
	return ServiceHealth{Status: "ready", Message: "predictions loaded from " + hs.backend}
}

func (hs *HealthService) checkOperations() ServiceHealth {
	if hs.operations == nil {
		return ServiceHealth{Status: "not_ready", Message: "operation manager not initialized"}
	}
	active := 0
	for _, op := range hs.operations.List() {
		if !op.Status.Terminal() {
			active++
		}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: pluralize(active, "active operation"),
	}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "not_ready", Message: "websocket hub not initialized"}
	}
	return ServiceHealth{
		Status:  "ready",
		Message: pluralize(hs.hub.ClientCount(), "connected client"),
		Uptime:  time.Since(hs.startTime).Round(time.Second).String(),
	}
}

func pluralize(n int, noun string) string {
	if n != 1 {
		noun += "s"
	}
	return fmt.Sprintf("%d %s", n, noun)
}
