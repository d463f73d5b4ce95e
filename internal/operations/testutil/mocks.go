package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"valuepulse/internal/operations"
)

// MockStep is a configurable implementation of operations.Step
type MockStep struct {
	IDValue           string
	NameValue         string
	DependenciesValue []string

	ExecuteFunc  func(ctx context.Context, state *operations.OperationState) error
	ValidateFunc func(state *operations.OperationState) error

	mu           sync.Mutex
	executeCalls int
	executedAt   []time.Time
}

// NewMockStep returns a step that succeeds, depending on deps
func NewMockStep(id string, deps ...string) *MockStep {
	return &MockStep{IDValue: id, NameValue: id, DependenciesValue: deps}
}

func (m *MockStep) ID() string { return m.IDValue }

func (m *MockStep) Name() string {
	if m.NameValue == "" {
		return m.IDValue
	}
	return m.NameValue
}

func (m *MockStep) GetDependencies() []string {
	return append([]string(nil), m.DependenciesValue...)
}

// Execute counts the call and runs ExecuteFunc when set
func (m *MockStep) Execute(ctx context.Context, state *operations.OperationState) error {
	m.mu.Lock()
	m.executeCalls++
	m.executedAt = append(m.executedAt, time.Now())
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, state)
	}
	return nil
}

func (m *MockStep) Validate(state *operations.OperationState) error {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(state)
	}
	return nil
}

// ExecuteCalls returns how many times Execute ran
func (m *MockStep) ExecuteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executeCalls
}

// FailTimes returns an ExecuteFunc for stepID that fails n times with err
// and then succeeds, recording rows as the step result
func FailTimes(stepID string, n int, err error, rows int) func(context.Context, *operations.OperationState) error {
	var mu sync.Mutex
	calls := 0
	return func(_ context.Context, state *operations.OperationState) error {
		mu.Lock()
		calls++
		c := calls
		mu.Unlock()
		if c <= n {
			return err
		}
		operations.SetStepResult(state, stepID, operations.StepResult{Rows: rows})
		return nil
	}
}

// BlockUntilCancelled returns an ExecuteFunc that signals started and
// waits for its context to end
func BlockUntilCancelled(started chan<- struct{}) func(context.Context, *operations.OperationState) error {
	return func(ctx context.Context, _ *operations.OperationState) error {
		if started != nil {
			close(started)
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

// RecordingHub captures broadcast operation snapshots and error events
type RecordingHub struct {
	mu       sync.Mutex
	Messages []Message
	Errors   []ErrorEvent
}

// ErrorEvent is one captured failure broadcast
type ErrorEvent struct {
	Code        string
	Message     string
	Step        string
	Recoverable bool
}

// Message is one captured broadcast
type Message struct {
	EventType string
	ID        string
	Status    string
	Snapshot  *operations.OperationSnapshot
}

func (h *RecordingHub) BroadcastUpdate(eventType, id, status string, metadata interface{}) {
	snap, _ := metadata.(*operations.OperationSnapshot)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Messages = append(h.Messages, Message{EventType: eventType, ID: id, Status: status, Snapshot: snap})
}

func (h *RecordingHub) BroadcastError(code, message, step string, recoverable bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Errors = append(h.Errors, ErrorEvent{Code: code, Message: message, Step: step, Recoverable: recoverable})
}

// ErrorEvents returns a copy of the captured failure broadcasts
func (h *RecordingHub) ErrorEvents() []ErrorEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ErrorEvent(nil), h.Errors...)
}

// Statuses returns the sequence of distinct operation statuses seen for id
func (h *RecordingHub) Statuses(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.Messages {
		if m.ID != id {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != m.Status {
			out = append(out, m.Status)
		}
	}
	return out
}

// Last returns the most recent snapshot broadcast for id
func (h *RecordingHub) Last(id string) *operations.OperationSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.Messages) - 1; i >= 0; i-- {
		if h.Messages[i].ID == id {
			return h.Messages[i].Snapshot
		}
	}
	return nil
}

// CaptureHandler is a slog.Handler that keeps records in memory
type CaptureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *CaptureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

// HasMessage reports whether a record with msg was logged
func (h *CaptureHandler) HasMessage(msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Message == msg {
			return true
		}
	}
	return false
}

// NewTestLogger returns a logger writing into a CaptureHandler
func NewTestLogger() (*slog.Logger, *CaptureHandler) {
	h := &CaptureHandler{}
	return slog.New(h), h
}
