package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"valuepulse/internal/operations"
	"valuepulse/internal/pipeline"
)

// FinishHook runs after an operation reaches a terminal status
type FinishHook func(ctx context.Context, state *operations.OperationState)

// OperationServiceOption configures an OperationService
type OperationServiceOption func(*OperationService)

// OnFinish registers a hook run after every started operation finishes
func OnFinish(hook FinishHook) OperationServiceOption {
	return func(s *OperationService) { s.hooks = append(s.hooks, hook) }
}

// OperationService starts, tracks and cancels catalog pipelines
type OperationService struct {
	manager *operations.Manager
	catalog *pipeline.Catalog
	logger  *slog.Logger
	hooks   []FinishHook
	wg      sync.WaitGroup
}

// NewOperationService creates an operation service over manager. The
// catalog is used to validate pipeline names and describe them to clients.
func NewOperationService(manager *operations.Manager, catalog *pipeline.Catalog, logger *slog.Logger, opts ...OperationServiceOption) *OperationService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &OperationService{
		manager: manager,
		catalog: catalog,
		logger:  logger.With(slog.String("service", "operations")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Manager returns the underlying operations manager
func (s *OperationService) Manager() *operations.Manager {
	return s.manager
}

func (s *OperationService) validate(req operations.OperationRequest) error {
	if req.Pipeline == "" {
		return nil
	}
	if _, ok := s.catalog.Get(req.Pipeline); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPipeline, req.Pipeline)
	}
	return nil
}

// StartOperation starts an operation in the background and returns its
// initial state
func (s *OperationService) StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationState, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "starting operation",
		slog.String("pipeline", req.Pipeline),
		slog.Bool("with_dependencies", req.WithDependencies),
		slog.Any("parameters", req.Parameters))

	state, err := s.manager.Start(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start operation: %w", err)
	}
	done, err := s.manager.Done(state.ID)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-done
		s.finished(context.WithoutCancel(ctx), state.ID)
	}()

	s.logger.InfoContext(ctx, "operation started",
		slog.String("operation_id", state.ID),
		slog.Int("steps", len(state.StepOrder)))
	return state, nil
}

// ExecuteOperation runs an operation to completion
func (s *OperationService) ExecuteOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationResponse, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	resp, err := s.manager.Execute(ctx, req)
	if resp != nil {
		s.finished(ctx, resp.ID)
	}
	return resp, err
}

func (s *OperationService) finished(ctx context.Context, id string) {
	state, err := s.manager.Get(id)
	if err != nil {
		// already trimmed from history
		s.logger.DebugContext(ctx, "finished operation no longer tracked", slog.String("operation_id", id))
		return
	}
	s.logger.InfoContext(ctx, "operation finished",
		slog.String("operation_id", id),
		slog.String("status", string(state.Status)),
		slog.Duration("duration", state.Duration()))
	for _, hook := range s.hooks {
		hook(ctx, state)
	}
}

// GetStatus returns an operation in response form
func (s *OperationService) GetStatus(ctx context.Context, id string) (*operations.OperationResponse, error) {
	return s.manager.Response(id)
}

// GetOperation returns a snapshot of an operation's full state
func (s *OperationService) GetOperation(ctx context.Context, id string) (*operations.OperationState, error) {
	return s.manager.Get(id)
}

// ListOperations returns known operations, oldest first
func (s *OperationService) ListOperations(ctx context.Context) ([]*operations.OperationState, error) {
	return s.manager.List(), nil
}

// ListOperationsByStatus returns known operations with the given status
func (s *OperationService) ListOperationsByStatus(ctx context.Context, status operations.OperationStatusValue) ([]*operations.OperationState, error) {
	all, err := s.ListOperations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*operations.OperationState, 0, len(all))
	for _, op := range all {
		if op.Status == status {
			out = append(out, op)
		}
	}
	return out, nil
}

// CancelOperation cancels a pending or running operation
func (s *OperationService) CancelOperation(ctx context.Context, id string) error {
	if err := s.manager.Cancel(id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "operation cancel requested", slog.String("operation_id", id))
	return nil
}

// CancelAll cancels every unfinished operation
func (s *OperationService) CancelAll(ctx context.Context) error {
	var errs []error
	for _, op := range s.manager.List() {
		if op.Status.Terminal() {
			continue
		}
		if err := s.manager.Cancel(op.ID); err != nil && !errors.Is(err, ErrOperationCompleted) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// GetOperationTypes describes the pipelines clients can run
func (s *OperationService) GetOperationTypes(ctx context.Context) ([]operations.OperationType, error) {
	return operations.OperationTypes(s.catalog), nil
}

// GetOperationMetrics summarizes known operations by status
func (s *OperationService) GetOperationMetrics(ctx context.Context) (map[string]interface{}, error) {
	ops, err := s.ListOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	var active, completed, failed, cancelled int
	for _, op := range ops {
		switch op.Status {
		case operations.OperationStatusPending, operations.OperationStatusRunning:
			active++
		case operations.OperationStatusCompleted:
			completed++
		case operations.OperationStatusFailed:
			failed++
		case operations.OperationStatusCancelled:
			cancelled++
		}
	}

	s.logger.DebugContext(ctx, "retrieved operation metrics",
		slog.Int("total", len(ops)),
		slog.Int("active", active))

	return map[string]interface{}{
		"total_operations":     len(ops),
		"active_operations":    active,
		"completed_operations": completed,
		"failed_operations":    failed,
		"cancelled_operations": cancelled,
		"pipelines":            len(s.catalog.List()),
		"step_count":           s.manager.Registry().Count(),
		"steps":                s.manager.Registry().ListIDs(),
		"timestamp":            time.Now().Unix(),
	}, nil
}

// Shutdown cancels running operations and waits for them and their hooks
func (s *OperationService) Shutdown(ctx context.Context) error {
	err := s.manager.Shutdown(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Wait blocks until every started operation and its hooks have finished
func (s *OperationService) Wait() {
	s.manager.Wait()
	s.wg.Wait()
}

// RefreshOnSuccess returns a hook that invalidates predictions and tells
// websocket clients to reload after an operation completes
func RefreshOnSuccess(predictions *PredictionService, hub Refresher) FinishHook {
	return func(ctx context.Context, state *operations.OperationState) {
		if state.Status != operations.OperationStatusCompleted {
			return
		}
		if predictions != nil {
			predictions.Invalidate()
		}
		if hub != nil {
			hub.BroadcastRefresh("operation:"+state.ID, []string{"predictions", "dropdowns"})
		}
	}
}

// Refresher tells connected clients to reload data
type Refresher interface {
	BroadcastRefresh(source string, components []string)
}
