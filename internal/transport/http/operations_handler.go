package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "valuepulse/internal/errors"
	"valuepulse/internal/infrastructure"
	"valuepulse/internal/middleware"
	"valuepulse/internal/operations"
)

// OperationServiceInterface is what the operations handler needs from the
// operation service
type OperationServiceInterface interface {
	StartOperation(ctx context.Context, req operations.OperationRequest) (*operations.OperationState, error)
	GetOperation(ctx context.Context, id string) (*operations.OperationState, error)
	ListOperations(ctx context.Context) ([]*operations.OperationState, error)
	ListOperationsByStatus(ctx context.Context, status operations.OperationStatusValue) ([]*operations.OperationState, error)
	CancelOperation(ctx context.Context, id string) error
	GetOperationTypes(ctx context.Context) ([]operations.OperationType, error)
	GetOperationMetrics(ctx context.Context) (map[string]interface{}, error)
}

var operationStatuses = []string{
	string(operations.OperationStatusPending),
	string(operations.OperationStatusRunning),
	string(operations.OperationStatusCompleted),
	string(operations.OperationStatusFailed),
	string(operations.OperationStatusCancelled),
}

// StartRequest is the body of POST /operations. An empty pipeline runs
// every registered pipeline.
type StartRequest struct {
	Pipeline         string            `json:"pipeline" validate:"omitempty,pipeline_name"`
	WithDependencies bool              `json:"with_dependencies"`
	Parameters       map[string]string `json:"parameters" validate:"omitempty,max=20,dive,keys,max=64,endkeys,max=256"`
}

// OperationsHandler handles operation-related HTTP requests
type OperationsHandler struct {
	service   OperationServiceInterface
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	tracer    trace.Tracer
	logger    *slog.Logger

	// guard wraps the routes that start or cancel work
	guard func(http.Handler) http.Handler
}

// NewOperationsHandler creates a new operations handler. guard protects the
// mutating routes and may be nil.
func NewOperationsHandler(
	service OperationServiceInterface,
	validator *middleware.Validator,
	errorHandler *apierrors.ErrorHandler,
	guard func(http.Handler) http.Handler,
	logger *slog.Logger,
) *OperationsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OperationsHandler{
		service:   service,
		validator: validator,
		errors:    errorHandler,
		tracer:    otel.Tracer(infrastructure.MeterName + ".operations_handler"),
		logger:    logger.With(slog.String("handler", "operations")),
		guard:     guard,
	}
}

// Routes returns a chi router for operations endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListOperations)
	r.Get("/pipelines", h.GetOperationTypes)
	r.Get("/metrics", h.GetOperationMetrics)
	r.Get("/{id}", h.GetOperation)

	r.Group(func(r chi.Router) {
		if h.guard != nil {
			r.Use(h.guard)
		}
		r.Post("/", h.StartOperation)
		r.Post("/{id}/cancel", h.CancelOperation)
	})

	return r
}

// StartOperation handles POST /operations
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "operations_handler.start_operation")
	defer span.End()

	var body StartRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		span.SetAttributes(attribute.String("error.type", "decode"))
		h.errors.HandleError(w, r, decodeError(err))
		return
	}
	if err := h.validator.ValidateStruct(body); err != nil {
		span.SetAttributes(attribute.String("error.type", "validation"))
		h.errors.HandleError(w, r, err)
		return
	}

	req := operations.OperationRequest{
		Pipeline:         body.Pipeline,
		WithDependencies: body.WithDependencies,
		Parameters:       body.Parameters,
	}
	span.SetAttributes(
		attribute.String("operation.pipeline", req.Pipeline),
		attribute.Bool("operation.with_dependencies", req.WithDependencies),
	)

	state, err := h.service.StartOperation(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start failed")
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}

	span.SetAttributes(
		attribute.String("operation.id", state.ID),
		attribute.Int("operation.steps", len(state.StepOrder)),
	)
	h.logger.InfoContext(ctx, "operation accepted",
		slog.String("operation_id", state.ID),
		slog.String("pipeline", state.Pipeline),
		slog.String("client", middleware.ClientFromContext(ctx)))

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+state.ID)
	respond(w, r, http.StatusAccepted, state)
}

// GetOperation handles GET /operations/{id}
func (h *OperationsHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	state, err := h.service.GetOperation(r.Context(), id)
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respond(w, r, http.StatusOK, state)
}

// ListOperations handles GET /operations with an optional status filter
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status, err := middleware.QueryEnum(r, "status", operationStatuses, "")
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	var ops []*operations.OperationState
	if status != "" {
		ops, err = h.service.ListOperationsByStatus(ctx, operations.OperationStatusValue(status))
	} else {
		ops, err = h.service.ListOperations(ctx)
	}
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respondList(w, r, ops)
}

// CancelOperation handles POST /operations/{id}/cancel
func (h *OperationsHandler) CancelOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, span := h.tracer.Start(r.Context(), "operations_handler.cancel_operation",
		trace.WithAttributes(attribute.String("operation.id", id)))
	defer span.End()

	if err := h.service.CancelOperation(ctx, id); err != nil {
		span.RecordError(err)
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}

	h.logger.InfoContext(ctx, "operation cancel accepted",
		slog.String("operation_id", id),
		slog.String("client", middleware.ClientFromContext(ctx)))
	respond(w, r, http.StatusAccepted, map[string]interface{}{
		"id":     id,
		"status": "cancelling",
	})
}

// GetOperationTypes handles GET /operations/pipelines
func (h *OperationsHandler) GetOperationTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.service.GetOperationTypes(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respondList(w, r, types)
}

// GetOperationMetrics handles GET /operations/metrics
func (h *OperationsHandler) GetOperationMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetOperationMetrics(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respond(w, r, http.StatusOK, m)
}

// decodeError keeps oversized bodies as 413 and reports the rest as bad
// requests
func decodeError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return apierrors.InvalidRequestWithError(err)
}
