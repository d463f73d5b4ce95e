package operations

import (
	"time"
)

// WebSocket event types - using frontend format
const (
	EventTypeOperationSnapshot = "operation:snapshot"
	EventTypeOperationStatus   = "operation:status"
)

// Default timeouts
const (
	DefaultStepTimeout = 30 * time.Minute
	DefaultHistory     = 100
)

// RetryConfig defines retry behavior for steps
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig returns the default retry configuration
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// OperationRequest asks for one pipeline, optionally with every pipeline
// it depends on. An empty Pipeline runs the whole registry.
type OperationRequest struct {
	ID               string            `json:"id,omitempty"`
	Pipeline         string            `json:"pipeline,omitempty" validate:"omitempty,max=64"`
	WithDependencies bool              `json:"with_dependencies"`
	Parameters       map[string]string `json:"parameters,omitempty"`
}

// OperationResponse represents the response from a operation execution
type OperationResponse struct {
	ID       string                `json:"id"`
	Pipeline string                `json:"pipeline,omitempty"`
	Status   OperationStatusValue  `json:"status"`
	Duration time.Duration         `json:"duration"`
	Steps    map[string]*StepState `json:"steps"`
	Error    string                `json:"error,omitempty"`
}

// OperationType describes a runnable pipeline
type OperationType struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	Dependencies []string              `json:"dependencies"`
	CanRunAlone  bool                  `json:"can_run_alone"`
	Parameters   []ParameterDefinition `json:"parameters"`
}

// ParameterDefinition defines a parameter for an operation type
type ParameterDefinition struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}
