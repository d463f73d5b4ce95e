package operations

import (
	"sync"
	"time"
)

// OperationStatusValue represents the overall operation status enum
type OperationStatusValue string

const (
	OperationStatusPending   OperationStatusValue = "pending"
	OperationStatusRunning   OperationStatusValue = "running"
	OperationStatusCompleted OperationStatusValue = "completed"
	OperationStatusFailed    OperationStatusValue = "failed"
	OperationStatusCancelled OperationStatusValue = "cancelled"
)

// Terminal reports whether the status can no longer change
func (s OperationStatusValue) Terminal() bool {
	return s == OperationStatusCompleted || s == OperationStatusFailed || s == OperationStatusCancelled
}

// OperationState represents the complete state of a operation execution
type OperationState struct {
	mu sync.RWMutex

	ID        string               `json:"id"`
	Pipeline  string               `json:"pipeline,omitempty"`
	Status    OperationStatusValue `json:"status"`
	StartTime time.Time            `json:"start_time"`
	EndTime   *time.Time           `json:"end_time,omitempty"`

	// StepOrder lists step ids in execution order
	StepOrder []string              `json:"step_order"`
	Steps     map[string]*StepState `json:"steps"`

	// Params are passed to every step
	Params map[string]string `json:"params,omitempty"`

	// Context carries values between steps
	Context map[string]interface{} `json:"-"`

	Error string `json:"error,omitempty"`
}

// NewOperationState creates a pending operation
func NewOperationState(id string) *OperationState {
	return &OperationState{
		ID:        id,
		Status:    OperationStatusPending,
		StartTime: time.Now(),
		Steps:     make(map[string]*StepState),
		Params:    make(map[string]string),
		Context:   make(map[string]interface{}),
	}
}

// Start marks the operation as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the operation as completed
func (p *OperationState) Complete() {
	p.finish(OperationStatusCompleted, nil)
}

// Fail marks the operation as failed
func (p *OperationState) Fail(err error) {
	p.finish(OperationStatusFailed, err)
}

// Cancel marks the operation as cancelled
func (p *OperationState) Cancel() {
	p.finish(OperationStatusCancelled, nil)
}

func (p *OperationState) finish(status OperationStatusValue, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = status
	if err != nil {
		p.Error = err.Error()
	}
}

// CurrentStatus reads the status under the lock
func (p *OperationState) CurrentStatus() OperationStatusValue {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Status
}

// GetStep returns the state of a step
func (p *OperationState) GetStep(id string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Steps[id]
}

// AddStep appends a step in execution order
func (p *OperationState) AddStep(state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.Steps[state.ID]; !exists {
		p.StepOrder = append(p.StepOrder, state.ID)
	}
	p.Steps[state.ID] = state
}

// Param returns a request parameter
func (p *OperationState) Param(key string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Params[key]
}

// ParamsCopy returns a copy of the request parameters
func (p *OperationState) ParamsCopy() map[string]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.Params))
	for k, v := range p.Params {
		out[k] = v
	}
	return out
}

// GetContext retrieves a value from the operation context
func (p *OperationState) GetContext(key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	val, ok := p.Context[key]
	return val, ok
}

// SetContext sets a value in the operation context
func (p *OperationState) SetContext(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Context[key] = value
}

// Duration returns the duration of the operation execution
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// Clone creates a deep copy of the operation state
func (p *OperationState) Clone() *OperationState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := &OperationState{
		ID:        p.ID,
		Pipeline:  p.Pipeline,
		Status:    p.Status,
		StartTime: p.StartTime,
		StepOrder: append([]string(nil), p.StepOrder...),
		Steps:     make(map[string]*StepState, len(p.Steps)),
		Params:    make(map[string]string, len(p.Params)),
		Context:   make(map[string]interface{}, len(p.Context)),
		Error:     p.Error,
	}
	if p.EndTime != nil {
		end := *p.EndTime
		clone.EndTime = &end
	}
	for k, v := range p.Steps {
		clone.Steps[k] = v.clone()
	}
	for k, v := range p.Params {
		clone.Params[k] = v
	}
	for k, v := range p.Context {
		clone.Context[k] = v
	}
	return clone
}
