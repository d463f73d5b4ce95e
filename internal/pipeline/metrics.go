package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StepMetrics records processing steps as OpenTelemetry instruments. It
// implements processing.StepObserver.
type StepMetrics struct {
	steps    metric.Int64Counter
	errors   metric.Int64Counter
	rows     metric.Int64Counter
	duration metric.Float64Histogram
}

// NewStepMetrics creates the step instruments on meter
func NewStepMetrics(meter metric.Meter) (*StepMetrics, error) {
	steps, err := meter.Int64Counter("pipeline_steps_total",
		metric.WithDescription("Total number of pipeline steps executed"))
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("pipeline_step_errors_total",
		metric.WithDescription("Total number of failed pipeline steps"))
	if err != nil {
		return nil, err
	}
	rows, err := meter.Int64Counter("pipeline_rows_processed_total",
		metric.WithDescription("Rows passed into pipeline steps"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("pipeline_step_duration_seconds",
		metric.WithDescription("Pipeline step duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &StepMetrics{steps: steps, errors: errs, rows: rows, duration: duration}, nil
}

// ObserveStep implements processing.StepObserver
func (m *StepMetrics) ObserveStep(pipeline, step string, rowsIn, rowsOut int, duration time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("pipeline", pipeline),
		attribute.String("step", step),
	)
	m.steps.Add(ctx, 1, attrs)
	m.rows.Add(ctx, int64(rowsIn), attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}
