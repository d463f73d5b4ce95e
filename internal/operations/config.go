package operations

import (
	"time"

	"valuepulse/internal/config"
)

// Config represents the operation execution configuration
type Config struct {
	// StepTimeout bounds each step, retries included
	StepTimeout  time.Duration            `json:"step_timeout"`
	StepTimeouts map[string]time.Duration `json:"step_timeouts"`

	RetryConfig RetryConfig `json:"retry_config"`

	// Whether steps that do not depend on a failed step still run
	ContinueOnError bool `json:"continue_on_error"`

	// MaxConcurrent bounds operations running at once; extra ones wait
	MaxConcurrent int `json:"max_concurrent"`

	// History is how many finished operations stay queryable
	History int `json:"history"`
}

// NewConfig returns the default operation configuration
func NewConfig() *Config {
	return &Config{
		StepTimeout:   DefaultStepTimeout,
		StepTimeouts:  make(map[string]time.Duration),
		RetryConfig:   NewRetryConfig(),
		MaxConcurrent: 1,
		History:       DefaultHistory,
	}
}

// FromPipelineConfig derives the operation configuration from the
// application's pipeline settings. Zero values keep the defaults.
func FromPipelineConfig(pc config.PipelineConfig) *Config {
	c := NewConfig()
	if pc.OperationTimeout > 0 {
		c.StepTimeout = pc.OperationTimeout
	}
	if pc.MaxRetries > 0 {
		c.RetryConfig.MaxAttempts = pc.MaxRetries
	}
	if pc.RetryDelay > 0 {
		c.RetryConfig.InitialDelay = pc.RetryDelay
	}
	if pc.MaxConcurrent > 0 {
		c.MaxConcurrent = pc.MaxConcurrent
	}
	return c
}

// GetStepTimeout returns the timeout for a specific step
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok {
		return timeout
	}
	if c.StepTimeout > 0 {
		return c.StepTimeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for a specific step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// retryDelay is the wait before the attempt after attempt, growing by
// Multiplier and capped at MaxDelay
func (r RetryConfig) retryDelay(attempt int) time.Duration {
	delay := r.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * r.Multiplier)
		if r.MaxDelay > 0 && delay > r.MaxDelay {
			return r.MaxDelay
		}
	}
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		return r.MaxDelay
	}
	return delay
}
