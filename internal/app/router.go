package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"valuepulse/internal/config"
	apierrors "valuepulse/internal/errors"
	"valuepulse/internal/middleware"
	handlers "valuepulse/internal/transport/http"
	ws "valuepulse/internal/websocket"
)

// setupRouter builds the route tree. The websocket route only gets the
// middleware that leaves the ResponseWriter unwrapped, so upgrades work.
func (a *Application) setupRouter() error {
	cfg := a.Config
	errorHandler := apierrors.NewErrorHandler(a.Logger, cfg.Logging.Development)
	v, err := middleware.NewValidator(a.Logger, map[string]validator.Func{
		"pipeline_name": middleware.PipelineName,
	})
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.With(middleware.WebSocketTraceMiddleware(a.Logger)).
		Handle(config.WebSocketEndpoint, ws.NewHandler(a.Hub, cfg.WebSocket, cfg.Security.AllowedOrigins))

	if a.Telemetry.PrometheusHTTP != nil {
		r.Handle(config.MetricsEndpoint, a.Telemetry.PrometheusHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewOTelMiddleware(a.Telemetry.Tracer, a.Metrics, a.Logger).Handler)
		r.Use(middleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(errorHandler))

		headers := middleware.DefaultSecureHeaders()
		headers.DevMode = cfg.Logging.Development
		r.Use(headers.Handler)

		if cfg.Security.EnableCORS {
			r.Use(middleware.CORS(a.corsConfig()))
		}
		if cfg.Security.RateLimit.Enabled {
			r.Use(middleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, a.Logger).Handler)
		}
		r.Use(apierrors.LimitBody(cfg.Security.MaxBodyBytes))
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout, a.Logger))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		health := handlers.NewHealthHandler(a.Health, a.Logger)
		r.Get(config.HealthEndpoint, health.HealthCheck)
		r.Get(config.HealthEndpoint+"/ready", health.ReadinessCheck)
		r.Get(config.HealthEndpoint+"/live", health.LivenessCheck)
		r.Get(config.VersionEndpoint, health.Version)

		r.Route(cfg.APIV1Str, func(r chi.Router) {
			predictions := handlers.NewPredictionHandler(a.Predictions, v, errorHandler, a.Metrics, a.Logger)
			r.Mount("/value_prediction", predictions.Routes())
			r.Mount("/dropdowns", predictions.DropdownRoutes())

			ops := handlers.NewOperationsHandler(a.Operations, v, errorHandler, a.operationsGuard(), a.Logger)
			r.Mount("/operations", ops.Routes())
		})

		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)
	})

	a.Router = r
	return nil
}

// operationsGuard requires an API key on mutating operation routes when keys
// are configured and audits those calls either way
func (a *Application) operationsGuard() func(http.Handler) http.Handler {
	auth := middleware.APIKeyAuth(a.Logger, a.Config.Security.APIKeys)
	audit := middleware.AuditLog(a.Logger)
	return func(next http.Handler) http.Handler {
		return auth(audit(next))
	}
}

func (a *Application) corsConfig() middleware.CORSConfig {
	return middleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"X-API-Key",
			"X-Request-ID",
		},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
		Logger:         a.Logger,
	}
}
