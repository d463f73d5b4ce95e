package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric/noop"
)

// Manager plans and runs operations. Each operation runs a dependency
// ordered list of registered steps with per-step timeouts and retries.
type Manager struct {
	registry    *Registry
	config      *Config
	broadcaster *StatusBroadcaster
	tracer      *OperationTracer
	logger      *slog.Logger

	mu         sync.RWMutex
	operations map[string]*entry
	order      []string
	closed     bool

	sem chan struct{}
	wg  sync.WaitGroup
}

type entry struct {
	state  *OperationState
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer used for spans and metrics
func WithTracer(tracer *OperationTracer) ManagerOption {
	return func(m *Manager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// NewManager creates a manager running steps from registry
func NewManager(hub WebSocketHub, registry *Registry, config *Config, opts ...ManagerOption) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if config == nil {
		config = NewConfig()
	}
	m := &Manager{
		registry:   registry,
		config:     config,
		logger:     slog.Default(),
		operations: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "operations"))
	if m.tracer == nil {
		m.tracer = noopTracer()
	}
	m.broadcaster = NewStatusBroadcaster(hub, m.logger)
	m.sem = make(chan struct{}, max(config.MaxConcurrent, 1))
	return m
}

func noopTracer() *OperationTracer {
	// instrument creation cannot fail on the noop provider
	t, _ := NewOperationTracer(noop.NewMeterProvider().Meter(instrumentationName))
	return t
}

// Registry returns the step registry
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Broadcaster returns the status broadcaster
func (m *Manager) Broadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// Plan returns the steps a request would run, in order
func (m *Manager) Plan(req OperationRequest) ([]Step, error) {
	if req.Pipeline == "" {
		return m.registry.GetDependencyOrder()
	}
	return m.registry.Resolve(req.Pipeline, req.WithDependencies)
}

// Start launches an operation in the background and returns its initial
// state. The operation outlives ctx; stop it with Cancel.
func (m *Manager) Start(ctx context.Context, req OperationRequest) (*OperationState, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e, steps, err := m.prepare(req, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	go func() {
		defer m.wg.Done()
		_ = m.run(runCtx, e, steps)
	}()
	return e.state.Clone(), nil
}

// Execute runs an operation and returns once it has finished
func (m *Manager) Execute(ctx context.Context, req OperationRequest) (*OperationResponse, error) {
	runCtx, cancel := context.WithCancel(ctx)
	e, steps, err := m.prepare(req, cancel)
	if err != nil {
		cancel()
		return nil, err
	}
	defer m.wg.Done()
	err = m.run(runCtx, e, steps)
	return createResponse(e.state), err
}

func (m *Manager) prepare(req OperationRequest, cancel context.CancelFunc) (*entry, []Step, error) {
	steps, err := m.Plan(req)
	if err != nil {
		return nil, nil, err
	}
	if len(steps) == 0 {
		return nil, nil, NewValidationError("", "no steps to run")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	state := NewOperationState(id)
	state.Pipeline = req.Pipeline
	for k, v := range req.Parameters {
		state.Params[k] = v
	}
	for _, step := range steps {
		state.AddStep(NewStepState(step.ID(), step.Name()))
	}
	e := &entry{state: state, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil, ErrManagerClosed
	}
	if _, exists := m.operations[id]; exists {
		m.mu.Unlock()
		return nil, nil, NewValidationError("", fmt.Sprintf("operation %s already exists", id))
	}
	m.operations[id] = e
	m.order = append(m.order, id)
	// counted under mu so Shutdown never misses an accepted operation
	m.wg.Add(1)
	m.mu.Unlock()

	m.broadcaster.CreateOperation(id, req.Pipeline, steps)
	m.logger.Info("operation_created",
		slog.String("operation_id", id),
		slog.String("pipeline", pipelineLabel(req.Pipeline)),
		slog.Int("step_count", len(steps)))
	return e, steps, nil
}

func (m *Manager) run(ctx context.Context, e *entry, steps []Step) error {
	state := e.state
	defer func() {
		e.cancel()
		close(e.done)
		m.trimHistory()
	}()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		m.skipRemaining(state, steps, "operation cancelled")
		state.Cancel()
		m.broadcaster.CancelOperation(state.ID)
		return NewCancellationError("")
	}

	ctx, span := m.tracer.TraceOperation(ctx, state.ID, state.Pipeline, len(steps))
	defer span.End()

	state.Start()
	m.broadcaster.StartOperation(state.ID)
	m.logger.InfoContext(ctx, "operation_started", slog.String("operation_id", state.ID))

	err := m.executeSteps(ctx, state, steps)
	switch {
	case err == nil:
		state.Complete()
		m.broadcaster.CompleteOperation(state.ID, fmt.Sprintf("%d steps completed", len(steps)))
		m.logger.InfoContext(ctx, "operation_completed",
			slog.String("operation_id", state.ID),
			slog.Duration("duration", state.Duration()))
	case ctx.Err() != nil && GetErrorType(err) == ErrorTypeCancellation:
		state.Cancel()
		m.broadcaster.CancelOperation(state.ID)
		m.logger.WarnContext(ctx, "operation_cancelled", slog.String("operation_id", state.ID))
	default:
		state.Fail(err)
		m.broadcaster.FailOperation(state.ID, err)
		m.logger.ErrorContext(ctx, "operation_failed",
			slog.String("operation_id", state.ID),
			slog.String("error", err.Error()))
	}
	m.tracer.RecordOperationCompletion(ctx, state.Pipeline, state.CurrentStatus(), state.Duration())
	return err
}

// executeSteps runs steps in order. A step whose dependency in this
// operation did not complete is skipped.
func (m *Manager) executeSteps(ctx context.Context, state *OperationState, steps []Step) error {
	var failures ErrorList
	for i, step := range steps {
		if ctx.Err() != nil {
			m.skipRemaining(state, steps[i:], "operation cancelled")
			return NewCancellationError(step.ID())
		}
		if dep, ok := m.unmetDependency(state, step); !ok {
			reason := fmt.Sprintf("dependency %s did not complete", dep)
			state.GetStep(step.ID()).Skip(reason)
			m.broadcaster.SkipStep(state.ID, step.ID(), reason)
			m.logger.WarnContext(ctx, "step_skipped",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("reason", reason))
			continue
		}

		m.logger.InfoContext(ctx, "executing_step",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("step_number", i+1),
			slog.Int("total_steps", len(steps)))
		err := m.executeStep(ctx, state, step)
		if err == nil {
			continue
		}
		if GetErrorType(err) == ErrorTypeCancellation {
			m.skipRemaining(state, steps[i+1:], "operation cancelled")
			return err
		}
		failures.Add(Classify(step.ID(), err))
		if !m.config.ContinueOnError {
			m.skipRemaining(state, steps[i+1:], fmt.Sprintf("step %s failed", step.ID()))
			return err
		}
	}
	if len(failures.Errors) == 1 {
		return failures.Errors[0]
	}
	if failures.HasErrors() {
		return &failures
	}
	return nil
}

// unmetDependency reports the first dependency planned in this operation
// that has not completed. Dependencies outside the plan are assumed to
// have run earlier.
func (m *Manager) unmetDependency(state *OperationState, step Step) (string, bool) {
	for _, dep := range step.GetDependencies() {
		ds := state.GetStep(dep)
		if ds == nil {
			continue
		}
		if ds.CurrentStatus() != StepStatusCompleted {
			return dep, false
		}
	}
	return "", true
}

// executeStep runs one step with retries. The timeout covers every
// attempt and the waits between them.
func (m *Manager) executeStep(ctx context.Context, state *OperationState, step Step) error {
	id := step.ID()
	ss := state.GetStep(id)
	if ss == nil {
		return NewFatalError("step state not found", nil)
	}

	if err := step.Validate(state); err != nil {
		verr := NewValidationError(id, err.Error())
		ss.Fail(verr)
		m.broadcaster.FailStep(state.ID, id, verr)
		return verr
	}

	timeout := m.config.GetStepTimeout(id)
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	attempts := max(m.config.RetryConfig.MaxAttempts, 1)
	started := time.Now()
	for attempt := 1; ; attempt++ {
		ss.Start()
		m.broadcaster.StartStep(state.ID, id, attempt)
		attemptCtx, span := m.tracer.TraceStep(stepCtx, state.ID, id, attempt)

		err := step.Execute(attemptCtx, state)
		if err == nil {
			res, _ := GetStepResult(state, id)
			ss.Complete(res.Rows, res.Outputs)
			m.broadcaster.CompleteStep(state.ID, id, res)
			m.tracer.RecordStepCompletion(attemptCtx, id, time.Since(started), res)
			span.End()
			m.logger.InfoContext(ctx, "step_completed",
				slog.String("operation_id", state.ID),
				slog.String("step", id),
				slog.Int("attempt", attempt),
				slog.Int("rows", res.Rows),
				slog.Duration("duration", time.Since(started)))
			return nil
		}

		err = m.stepError(ctx, stepCtx, id, err, timeout)
		m.tracer.RecordStepError(attemptCtx, id, err)
		span.End()

		if !IsRetryable(err) || attempt >= attempts || stepCtx.Err() != nil {
			return m.failStep(ctx, state, ss, id, err, started)
		}

		delay := m.config.RetryConfig.retryDelay(attempt)
		m.logger.WarnContext(ctx, "step_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", id),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		m.broadcaster.UpdateStepProgress(state.ID, id, 0, fmt.Sprintf("retrying in %s: %v", delay, err))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-stepCtx.Done():
			timer.Stop()
			return m.failStep(ctx, state, ss, id, m.stepError(ctx, stepCtx, id, stepCtx.Err(), timeout), started)
		}
	}
}

// stepError classifies a failed attempt. Once the operation is cancelled
// or the step deadline has passed nothing is retryable.
func (m *Manager) stepError(ctx, stepCtx context.Context, id string, err error, timeout time.Duration) error {
	switch {
	case ctx.Err() != nil:
		e := NewCancellationError(id)
		e.Cause = err
		return e
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		e := NewTimeoutError(id, timeout.String())
		e.Cause = err
		return e
	}
	return Classify(id, err)
}

func (m *Manager) failStep(ctx context.Context, state *OperationState, ss *StepState, id string, err error, started time.Time) error {
	ss.Fail(err)
	m.broadcaster.FailStep(state.ID, id, err)
	m.tracer.RecordStepFailure(ctx, id, time.Since(started))
	m.logger.ErrorContext(ctx, "step_failed",
		slog.String("operation_id", state.ID),
		slog.String("step", id),
		slog.String("error_type", string(GetErrorType(err))),
		slog.String("error", err.Error()))
	return err
}

func (m *Manager) skipRemaining(state *OperationState, steps []Step, reason string) {
	for _, step := range steps {
		ss := state.GetStep(step.ID())
		if ss == nil || ss.CurrentStatus() != StepStatusPending {
			continue
		}
		ss.Skip(reason)
		m.broadcaster.SkipStep(state.ID, step.ID(), reason)
	}
}

// Get returns a snapshot of an operation's state
func (m *Manager) Get(id string) (*OperationState, error) {
	m.mu.RLock()
	e, ok := m.operations[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return e.state.Clone(), nil
}

// Response returns an operation's state in response form
func (m *Manager) Response(id string) (*OperationResponse, error) {
	m.mu.RLock()
	e, ok := m.operations[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return createResponse(e.state), nil
}

// List returns snapshots of known operations, oldest first
func (m *Manager) List() []*OperationState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*OperationState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.operations[id].state.Clone())
	}
	return out
}

// Cancel stops a pending or running operation
func (m *Manager) Cancel(id string) error {
	m.mu.RLock()
	e, ok := m.operations[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	if e.state.CurrentStatus().Terminal() {
		return fmt.Errorf("%w: %s", ErrOperationCompleted, id)
	}
	m.logger.Info("cancelling_operation", slog.String("operation_id", id))
	e.cancel()
	return nil
}

// Done returns a channel closed when the operation finishes
func (m *Manager) Done(id string) (<-chan struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.operations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return e.done, nil
}

// Wait blocks until every started operation has finished
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown refuses new operations, cancels running ones and waits for
// them to stop or for ctx to expire
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	for _, e := range m.operations {
		e.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	defer m.broadcaster.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trimHistory drops the oldest finished operations beyond the history limit
func (m *Manager) trimHistory() {
	limit := m.config.History
	if limit <= 0 {
		limit = DefaultHistory
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	finished := 0
	for _, id := range m.order {
		if m.operations[id].state.CurrentStatus().Terminal() {
			finished++
		}
	}
	if finished <= limit {
		return
	}
	kept := m.order[:0]
	for _, id := range m.order {
		if finished > limit && m.operations[id].state.CurrentStatus().Terminal() {
			delete(m.operations, id)
			m.broadcaster.Forget(id)
			finished--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func createResponse(state *OperationState) *OperationResponse {
	snap := state.Clone()
	return &OperationResponse{
		ID:       snap.ID,
		Pipeline: snap.Pipeline,
		Status:   snap.Status,
		Duration: state.Duration(),
		Steps:    snap.Steps,
		Error:    snap.Error,
	}
}
