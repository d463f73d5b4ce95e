package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"valuepulse/internal/config"
	"valuepulse/internal/infrastructure"
	"valuepulse/internal/operations"
	"valuepulse/internal/services"
	ws "valuepulse/internal/websocket"
)

// BuildTime is set at link time with -ldflags "-X valuepulse/internal/app.BuildTime=..."
var BuildTime = "unknown"

// Application holds the wired components of the web server
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Router    *chi.Mux
	Server    *http.Server
	Telemetry *infrastructure.OTelProviders
	Metrics   *infrastructure.BusinessMetrics

	Pipelines   *Pipelines
	Hub         *ws.Hub
	Operations  *services.OperationService
	Predictions *services.PredictionService
	Health      *services.HealthService
}

// NewApplication wires every component from cfg. Nothing is started until
// Start is called.
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return newApplication(ctx, cfg, logger)
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.InfoContext(ctx, "application starting",
		slog.String("name", cfg.ProjectName),
		slog.String("version", cfg.Version),
		slog.String("storage_backend", cfg.Storage.Backend))

	telemetry, err := infrastructure.InitializeOTel(infrastructure.OTelConfigFrom(cfg.Telemetry, cfg.Version), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	metrics, err := infrastructure.CreateBusinessMetrics(telemetry.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	a := &Application{
		Config:    cfg,
		Logger:    logger,
		Telemetry: telemetry,
		Metrics:   metrics,
	}
	if err := a.initializeServices(ctx); err != nil {
		a.release(ctx)
		return nil, err
	}
	if err := a.setupRouter(); err != nil {
		a.release(ctx)
		return nil, err
	}
	a.createServer()
	return a, nil
}

func (a *Application) initializeServices(ctx context.Context) error {
	pipelines, err := OpenPipelines(ctx, a.Config, a.Logger, a.Telemetry.Meter)
	if err != nil {
		return err
	}
	a.Pipelines = pipelines

	wsMetrics, err := ws.NewMetrics(a.Telemetry.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.Hub = ws.NewHub(a.Logger,
		ws.WithMetrics(wsMetrics),
		ws.WithKeepalive(a.Config.WebSocket.PingPeriod, a.Config.WebSocket.PongWait))

	registry := operations.NewRegistry()
	if err := operations.RegisterCatalog(registry, pipelines.Catalog, pipelines.Env); err != nil {
		return fmt.Errorf("failed to register pipelines: %w", err)
	}
	tracer, err := operations.NewOperationTracer(a.Telemetry.Meter)
	if err != nil {
		return fmt.Errorf("failed to create operation tracer: %w", err)
	}
	manager := operations.NewManager(a.Hub, registry, operations.FromPipelineConfig(a.Config.Pipeline),
		operations.WithLogger(a.Logger),
		operations.WithTracer(tracer))

	a.Predictions = services.NewPredictionService(pipelines.Store, a.Config.Predictions, a.Logger)
	a.Operations = services.NewOperationService(manager, pipelines.Catalog, a.Logger,
		services.OnFinish(services.RefreshOnSuccess(a.Predictions, a.Hub)),
		services.OnFinish(a.recordOperation))
	a.Health = services.NewHealthService(a.Config.Version, BuildTime, services.HealthDeps{
		StorageBackend: pipelines.Store.Backend(),
		Predictions:    a.Predictions,
		Operations:     manager,
		Hub:            a.Hub,
	}, a.Logger)
	return nil
}

func (a *Application) recordOperation(ctx context.Context, state *operations.OperationState) {
	a.Metrics.RecordOperation(ctx, state.Pipeline, string(state.Status), state.Duration())
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}
}

// Start runs the websocket hub and begins serving. Listen errors call
// cancel so Run can shut down.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Hub.Start()

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "server error")
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "application started",
		slog.String("address", a.Server.Addr),
		slog.String("api", a.Config.APIV1Str),
		slog.Int("pipelines", len(a.Pipelines.Catalog.List())))
	return nil
}

// Stop drains HTTP traffic, cancels running operations and releases
// storage and telemetry
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	if err := a.Operations.Shutdown(shutdownCtx); err != nil {
		infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "error stopping operations")
	}
	a.Hub.Stop()
	a.release(shutdownCtx)

	a.Logger.InfoContext(ctx, "application shutdown complete")
	return errors.Join(errs...)
}

func (a *Application) release(ctx context.Context) {
	if a.Pipelines != nil {
		if err := a.Pipelines.Close(); err != nil {
			infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "error closing storage")
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			infrastructure.WithError(a.Logger, err).ErrorContext(ctx, "error shutting down OpenTelemetry")
		}
	}
}

// Run serves until SIGINT or SIGTERM, or until the listener fails
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx, stop); err != nil {
		return err
	}
	<-ctx.Done()
	a.Logger.Info("received shutdown signal")

	stopCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout+5*time.Second)
	defer cancel()
	return a.Stop(stopCtx)
}
