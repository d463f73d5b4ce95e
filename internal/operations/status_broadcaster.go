package operations

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// StatusBroadcaster is the single authority for operation status updates.
// Updates are applied one at a time and every change is broadcast to the
// hub as a complete snapshot.
type StatusBroadcaster struct {
	mu         sync.RWMutex
	operations map[string]*OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
	updates    chan updateRequest
	stop       chan struct{}
	stopOnce   sync.Once
}

// OperationSnapshot is the complete state of an operation at a point in
// time. It is the only structure sent to clients.
type OperationSnapshot struct {
	OperationID string         `json:"operation_id"`
	Pipeline    string         `json:"pipeline,omitempty"`
	Status      string         `json:"status"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step"`
	Steps       []StepSnapshot `json:"steps"`
	StartedAt   time.Time      `json:"started_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// StepSnapshot represents the state of a single step
type StepSnapshot struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	Attempt  int      `json:"attempt,omitempty"`
	Message  string   `json:"message,omitempty"`
	Error    string   `json:"error,omitempty"`
	Rows     int      `json:"rows,omitempty"`
	Outputs  []string `json:"outputs,omitempty"`
}

type updateRequest struct {
	operationID string
	updateFunc  func(*OperationSnapshot)
	done        chan struct{}
}

// NewStatusBroadcaster creates a broadcaster. A nil hub keeps snapshots
// without sending them anywhere.
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	sb := &StatusBroadcaster{
		operations: make(map[string]*OperationSnapshot),
		hub:        hub,
		logger:     logger.With(slog.String("component", "status_broadcaster")),
		updates:    make(chan updateRequest, 100),
		stop:       make(chan struct{}),
	}
	go sb.processUpdates()
	return sb
}

func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)
	select {
	case <-sb.stop:
		return
	default:
	}

	sb.mu.Lock()
	snapshot, exists := sb.operations[req.operationID]
	if !exists {
		now := time.Now()
		snapshot = &OperationSnapshot{
			OperationID: req.operationID,
			Status:      string(OperationStatusPending),
			StartedAt:   now,
			Steps:       []StepSnapshot{},
		}
		sb.operations[req.operationID] = snapshot
	}

	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	if len(snapshot.Steps) > 0 {
		total := 0
		for _, step := range snapshot.Steps {
			total += step.Progress
		}
		snapshot.Progress = total / len(snapshot.Steps)
	}
	if OperationStatusValue(snapshot.Status).Terminal() && snapshot.CompletedAt == nil {
		now := time.Now()
		snapshot.CompletedAt = &now
	}
	out := snapshot.copy()
	sb.mu.Unlock()

	sb.broadcast(out)
}

func (sb *StatusBroadcaster) broadcast(snapshot *OperationSnapshot) {
	if sb.hub == nil {
		return
	}
	sb.logger.Debug("broadcasting operation snapshot",
		slog.String("operation_id", snapshot.OperationID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep))
	sb.hub.BroadcastUpdate(EventTypeOperationSnapshot, snapshot.OperationID, snapshot.Status, snapshot)
}

// UpdateStatus applies updateFunc to the operation's snapshot and waits
// until it is broadcast. Updates after Stop are dropped.
func (sb *StatusBroadcaster) UpdateStatus(operationID string, updateFunc func(*OperationSnapshot)) {
	req := updateRequest{
		operationID: operationID,
		updateFunc:  updateFunc,
		done:        make(chan struct{}),
	}
	select {
	case sb.updates <- req:
	case <-sb.stop:
		return
	}
	select {
	case <-req.done:
	case <-sb.stop:
	}
}

// CreateOperation initializes an operation with its steps in run order
func (sb *StatusBroadcaster) CreateOperation(operationID, pipeline string, steps []Step) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Pipeline = pipeline
		snapshot.Status = string(OperationStatusPending)
		snapshot.Progress = 0
		snapshot.Steps = make([]StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = StepSnapshot{
				ID:     step.ID(),
				Name:   step.Name(),
				Status: string(StepStatusPending),
			}
		}
		snapshot.Message = "Operation created"
	})
}

// StartOperation marks an operation as running
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusRunning)
		snapshot.Message = "Operation started"
	})
}

func (sb *StatusBroadcaster) updateStep(operationID, stepID string, fn func(*StepSnapshot)) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				fn(&snapshot.Steps[i])
				return
			}
		}
		step := StepSnapshot{ID: stepID, Name: stepID}
		fn(&step)
		snapshot.Steps = append(snapshot.Steps, step)
	})
}

// StartStep marks a step attempt as running
func (sb *StatusBroadcaster) StartStep(operationID, stepID string, attempt int) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.CurrentStep = stepID
	})
	sb.updateStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusActive)
		s.Attempt = attempt
		s.Progress = 0
		s.Error = ""
		s.Message = "Step started"
	})
}

// UpdateStepProgress updates a running step's progress. Progress never
// moves backwards while the step runs.
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	progress = min(max(progress, 0), 100)
	sb.updateStep(operationID, stepID, func(s *StepSnapshot) {
		if progress > s.Progress || s.Status != string(StepStatusActive) {
			s.Progress = progress
		}
		s.Message = message
	})
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID string, res StepResult) {
	sb.updateStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusCompleted)
		s.Progress = 100
		s.Rows = res.Rows
		s.Outputs = append([]string(nil), res.Outputs...)
		s.Message = "Step completed"
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.updateStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusFailed)
		if err != nil {
			s.Error = err.Error()
		}
	})
}

// SkipStep marks a step as skipped
func (sb *StatusBroadcaster) SkipStep(operationID, stepID, reason string) {
	sb.updateStep(operationID, stepID, func(s *StepSnapshot) {
		s.Status = string(StepStatusSkipped)
		s.Message = reason
	})
}

// CompleteOperation marks an operation as completed
func (sb *StatusBroadcaster) CompleteOperation(operationID string, message string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCompleted)
		snapshot.CurrentStep = ""
		snapshot.Message = message
	})
}

// FailOperation marks an operation as failed
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusFailed)
		if err != nil {
			snapshot.Error = err.Error()
		}
		snapshot.CurrentStep = ""
	})
	if sb.hub == nil || err == nil {
		return
	}
	var step string
	var opErr *OperationError
	if errors.As(err, &opErr) {
		step = opErr.Step
	}
	sb.hub.BroadcastError(string(GetErrorType(err)), operationID+": "+err.Error(), step, IsRetryable(err))
}

// CancelOperation marks an operation as cancelled
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *OperationSnapshot) {
		snapshot.Status = string(OperationStatusCancelled)
		snapshot.CurrentStep = ""
		snapshot.Message = "Operation cancelled"
	})
}

// GetSnapshot returns a copy of an operation's snapshot
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*OperationSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	snapshot, exists := sb.operations[operationID]
	if !exists {
		return nil, false
	}
	return snapshot.copy(), true
}

// GetAllSnapshots returns copies of every snapshot, oldest first
func (sb *StatusBroadcaster) GetAllSnapshots() []*OperationSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	snapshots := make([]*OperationSnapshot, 0, len(sb.operations))
	for _, snapshot := range sb.operations {
		snapshots = append(snapshots, snapshot.copy())
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].StartedAt.Before(snapshots[j].StartedAt)
	})
	return snapshots
}

// Forget drops an operation's snapshot
func (sb *StatusBroadcaster) Forget(operationID string) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	delete(sb.operations, operationID)
}

// CleanupOldOperations removes finished operations older than maxAge
func (sb *StatusBroadcaster) CleanupOldOperations(maxAge time.Duration) int {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, snapshot := range sb.operations {
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.operations, id)
			removed++
		}
	}
	if removed > 0 {
		sb.logger.Info("cleaned up old operations", slog.Int("removed", removed))
	}
	return removed
}

// Stop shuts the broadcaster down. It is safe to call more than once.
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func (s *OperationSnapshot) copy() *OperationSnapshot {
	c := *s
	c.Steps = make([]StepSnapshot, len(s.Steps))
	for i, step := range s.Steps {
		step.Outputs = append([]string(nil), step.Outputs...)
		c.Steps[i] = step
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
