package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"valuepulse/internal/config"
	apierrors "valuepulse/internal/errors"
	"valuepulse/internal/infrastructure"
	"valuepulse/internal/middleware"
	"valuepulse/internal/services"
)

// PredictionServiceInterface is what the prediction handler needs from
// the prediction service
type PredictionServiceInterface interface {
	Predict(ctx context.Context, query services.PredictionQuery) ([]services.Prediction, error)
	Player(ctx context.Context, name string) (services.Prediction, error)
	Team(ctx context.Context, team string) ([]services.Prediction, error)
	League(ctx context.Context, league string, limit int) ([]services.TeamValuation, error)
	Dropdowns(ctx context.Context) (services.Dropdowns, error)
}

// PredictionHandler serves predicted market values and the filter values
// clients build their dropdowns from
type PredictionHandler struct {
	service   PredictionServiceInterface
	validator *middleware.Validator
	errors    *apierrors.ErrorHandler
	metrics   *infrastructure.BusinessMetrics
	logger    *slog.Logger
}

// NewPredictionHandler creates a prediction handler. metrics may be nil.
func NewPredictionHandler(
	service PredictionServiceInterface,
	validator *middleware.Validator,
	errorHandler *apierrors.ErrorHandler,
	metrics *infrastructure.BusinessMetrics,
	logger *slog.Logger,
) *PredictionHandler {
	return &PredictionHandler{
		service:   service,
		validator: validator,
		errors:    errorHandler,
		metrics:   metrics,
		logger:    logger.With(slog.String("handler", "predictions")),
	}
}

// Routes returns the /value_prediction routes
func (h *PredictionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/predict", h.Predict)
	r.Get("/player", h.Player)
	r.Get("/team", h.Team)
	r.Get("/league", h.League)
	return r
}

// DropdownRoutes returns the /dropdowns routes
func (h *PredictionHandler) DropdownRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/get", h.Dropdowns)
	return r
}

// Predict handles GET /value_prediction/predict
func (h *PredictionHandler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := middleware.QueryInt(r, "limit", 1, config.MaxPredictionLimit, config.DefaultPredictionLimit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}
	q := r.URL.Query()
	query := services.PredictionQuery{
		League:   strings.TrimSpace(q.Get("league")),
		Position: strings.TrimSpace(q.Get("position")),
		Country:  strings.TrimSpace(q.Get("country")),
		Limit:    limit,
	}
	if err := h.validator.ValidateStruct(query); err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.metrics.RecordPredictionQuery(ctx, query.League, query.Position)

	preds, err := h.service.Predict(ctx, query)
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}

	h.logger.DebugContext(ctx, "predictions returned",
		slog.String("league", query.League),
		slog.String("position", query.Position),
		slog.String("country", query.Country),
		slog.Int("limit", query.Limit),
		slog.Int("count", len(preds)))
	respondList(w, r, preds)
}

// Player handles GET /value_prediction/player
func (h *PredictionHandler) Player(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("player"))
	if name == "" {
		h.errors.HandleError(w, r, apierrors.ErrValidation("player", "player is required"))
		return
	}

	pred, err := h.service.Player(r.Context(), name)
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respond(w, r, http.StatusOK, pred)
}

// Team handles GET /value_prediction/team
func (h *PredictionHandler) Team(w http.ResponseWriter, r *http.Request) {
	team := strings.TrimSpace(r.URL.Query().Get("team"))
	if team == "" {
		h.errors.HandleError(w, r, apierrors.ErrValidation("team", "team is required"))
		return
	}

	preds, err := h.service.Team(r.Context(), team)
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respondList(w, r, preds)
}

// League handles GET /value_prediction/league
func (h *PredictionHandler) League(w http.ResponseWriter, r *http.Request) {
	league := strings.TrimSpace(r.URL.Query().Get("league"))
	if league == "" {
		h.errors.HandleError(w, r, apierrors.ErrValidation("league", "league is required"))
		return
	}
	limit, err := middleware.QueryInt(r, "limit", 1, config.MaxPredictionLimit, config.DefaultPredictionLimit)
	if err != nil {
		h.errors.HandleError(w, r, err)
		return
	}

	h.metrics.RecordPredictionQuery(r.Context(), league, "")

	teams, err := h.service.League(r.Context(), league, limit)
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	respondList(w, r, teams)
}

// Dropdowns handles GET /dropdowns/get. The body is the bare dropdowns
// object so existing clients keep working.
func (h *PredictionHandler) Dropdowns(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dropdowns(r.Context())
	if err != nil {
		h.errors.HandleError(w, r, toAPIError(err))
		return
	}
	render.JSON(w, r, d)
}
