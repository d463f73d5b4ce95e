package operations

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "valuepulse.operations"

// OperationTracer traces operations and their steps and records the
// matching metrics
type OperationTracer struct {
	tracer trace.Tracer

	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram
	activeOperations  metric.Int64UpDownCounter
	stepAttempts      metric.Int64Counter
	stepDuration      metric.Float64Histogram
	stepErrors        metric.Int64Counter
	rowsProduced      metric.Int64Counter
}

// NewOperationTracer creates a tracer using meter for its instruments.
// A nil meter falls back to the global meter provider.
func NewOperationTracer(meter metric.Meter) (*OperationTracer, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	t := &OperationTracer{tracer: otel.Tracer(instrumentationName)}

	var err error
	if t.operationsTotal, err = meter.Int64Counter("operations_total",
		metric.WithDescription("Finished operations by pipeline and status")); err != nil {
		return nil, err
	}
	if t.operationDuration, err = meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Operation wall time"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if t.activeOperations, err = meter.Int64UpDownCounter("operations_active",
		metric.WithDescription("Operations currently running")); err != nil {
		return nil, err
	}
	if t.stepAttempts, err = meter.Int64Counter("operation_step_attempts_total",
		metric.WithDescription("Step attempts, retries included")); err != nil {
		return nil, err
	}
	if t.stepDuration, err = meter.Float64Histogram("operation_step_duration_seconds",
		metric.WithDescription("Step wall time across all attempts"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if t.stepErrors, err = meter.Int64Counter("operation_step_errors_total",
		metric.WithDescription("Failed step attempts by error type")); err != nil {
		return nil, err
	}
	if t.rowsProduced, err = meter.Int64Counter("operation_rows_total",
		metric.WithDescription("Rows written by completed steps")); err != nil {
		return nil, err
	}
	return t, nil
}

// TraceOperation starts the span covering a whole operation
func (t *OperationTracer) TraceOperation(ctx context.Context, operationID, pipeline string, steps int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.pipeline", pipelineLabel(pipeline)),
			attribute.Int("operation.steps", steps),
		),
	)
	t.activeOperations.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipelineLabel(pipeline))))
	return ctx, span
}

// TraceStep starts the span for one attempt of a step
func (t *OperationTracer) TraceStep(ctx context.Context, operationID, stepID string, attempt int) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "operation.step",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
			attribute.Int("step.attempt", attempt),
		),
	)
	t.stepAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("step", stepID)))
	return ctx, span
}

// RecordOperationCompletion closes out an operation's metrics
func (t *OperationTracer) RecordOperationCompletion(ctx context.Context, pipeline string, status OperationStatusValue, duration time.Duration) {
	label := pipelineLabel(pipeline)
	t.activeOperations.Add(ctx, -1, metric.WithAttributes(attribute.String("pipeline", label)))
	attrs := metric.WithAttributes(
		attribute.String("pipeline", label),
		attribute.String("status", string(status)),
	)
	t.operationsTotal.Add(ctx, 1, attrs)
	t.operationDuration.Record(ctx, duration.Seconds(), attrs)

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attribute.String("operation.status", string(status)))
		if status == OperationStatusCompleted {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// RecordStepCompletion records a step that finished successfully
func (t *OperationTracer) RecordStepCompletion(ctx context.Context, stepID string, duration time.Duration, res StepResult) {
	attrs := metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("status", string(StepStatusCompleted)),
	)
	t.stepDuration.Record(ctx, duration.Seconds(), attrs)
	if res.Rows > 0 {
		t.rowsProduced.Add(ctx, int64(res.Rows), metric.WithAttributes(attribute.String("step", stepID)))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("step.completed", trace.WithAttributes(
			attribute.String("step.id", stepID),
			attribute.Int("step.rows", res.Rows),
			attribute.StringSlice("step.outputs", res.Outputs),
		))
	}
}

// RecordStepError records a failed attempt on the current span
func (t *OperationTracer) RecordStepError(ctx context.Context, stepID string, err error) {
	t.stepErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("error.type", string(GetErrorType(err))),
	))
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordStepFailure records a step that ran out of attempts
func (t *OperationTracer) RecordStepFailure(ctx context.Context, stepID string, duration time.Duration) {
	t.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("step", stepID),
		attribute.String("status", string(StepStatusFailed)),
	))
}

func pipelineLabel(pipeline string) string {
	if pipeline == "" {
		return "all"
	}
	return pipeline
}
