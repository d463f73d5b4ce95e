package processing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"valuepulse/internal/table"
)

const tracerName = "valuepulse/processing"

var (
	// ErrUnknownStep is returned when a definition names an unregistered kind
	ErrUnknownStep = errors.New("unknown step kind")
	// ErrInvalidParams is returned when step parameters cannot be used
	ErrInvalidParams = errors.New("invalid step parameters")
)

// Processor is one named transformation over a table. Implementations must
// not mutate their input; they return a new table instead.
type Processor interface {
	Name() string
	Transform(ctx context.Context, t *table.Table) (*table.Table, error)
}

// Func adapts a plain function into a Processor
type Func struct {
	StepName string
	Fn       func(ctx context.Context, t *table.Table) (*table.Table, error)
}

// Name returns the step name
func (f Func) Name() string { return f.StepName }

// Transform calls the wrapped function
func (f Func) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	return f.Fn(ctx, t)
}

// StepError names the step that failed inside a composer
type StepError struct {
	Pipeline string
	Step     string
	Index    int
	Err      error
}

// Error implements the error interface
func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline %s: step %d (%s): %v", e.Pipeline, e.Index, e.Step, e.Err)
}

// Unwrap returns the step's error
func (e *StepError) Unwrap() error { return e.Err }

// StepObserver receives one callback per executed step
type StepObserver interface {
	ObserveStep(pipeline, step string, rowsIn, rowsOut int, duration time.Duration, err error)
}

// Composer reduces an ordered list of processors over a table. A Composer is
// itself a Processor, so chains nest.
type Composer struct {
	name     string
	steps    []Processor
	logger   *slog.Logger
	observer StepObserver
}

// Option configures a Composer
type Option func(*Composer)

// WithLogger sets the composer logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithObserver attaches a step observer, typically metrics
func WithObserver(o StepObserver) Option {
	return func(c *Composer) { c.observer = o }
}

// NewComposer creates a composer over steps
func NewComposer(name string, steps []Processor, opts ...Option) *Composer {
	c := &Composer{
		name:   name,
		steps:  append([]Processor(nil), steps...),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(slog.String("component", "composer"), slog.String("pipeline", name))
	return c
}

// Name returns the pipeline name
func (c *Composer) Name() string { return c.name }

// Steps returns the processors in execution order
func (c *Composer) Steps() []Processor {
	return append([]Processor(nil), c.steps...)
}

// Len returns the number of steps
func (c *Composer) Len() int { return len(c.steps) }

// Transform applies every step in order. The first failure stops the chain
// and is returned as a *StepError.
func (c *Composer) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if t == nil {
		return nil, &StepError{Pipeline: c.name, Step: "input", Index: -1, Err: table.ErrEmptyTable}
	}
	tracer := otel.Tracer(tracerName)
	current := t
	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return nil, &StepError{Pipeline: c.name, Step: step.Name(), Index: i, Err: err}
		}

		stepCtx, span := tracer.Start(ctx, "processing.step")
		span.SetAttributes(
			attribute.String("pipeline", c.name),
			attribute.String("step", step.Name()),
			attribute.Int("rows_in", current.Len()),
		)
		start := time.Now()
		next, err := step.Transform(stepCtx, current)
		duration := time.Since(start)

		rowsOut := 0
		if next != nil {
			rowsOut = next.Len()
		}
		if c.observer != nil {
			c.observer.ObserveStep(c.name, step.Name(), current.Len(), rowsOut, duration, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			c.logger.ErrorContext(ctx, "step failed",
				slog.String("step", step.Name()),
				slog.Int("index", i),
				slog.String("error", err.Error()))
			return nil, &StepError{Pipeline: c.name, Step: step.Name(), Index: i, Err: err}
		}
		span.SetAttributes(attribute.Int("rows_out", rowsOut))
		span.End()

		c.logger.DebugContext(ctx, "step completed",
			slog.String("step", step.Name()),
			slog.Int("rows_in", current.Len()),
			slog.Int("rows_out", rowsOut),
			slog.Duration("duration", duration))
		current = next
	}
	return current, nil
}
