// Package services implements the business logic between HTTP handlers and
// the storage and operations layers.
//
// # Available Services
//
//   - PredictionService: serves precomputed player value predictions and
//     the filter values clients build dropdowns from
//   - OperationService: starts, tracks and cancels catalog pipelines
//   - HealthService: liveness, readiness and version information
//
// # Caching
//
// PredictionService loads its table lazily and keeps it for the configured
// TTL. Concurrent misses share a single load. Completed operations can
// invalidate the cache through a finish hook:
//
//	predictions := services.NewPredictionService(store, cfg.Predictions, logger)
//	ops := services.NewOperationService(manager, catalog, logger,
//	    services.OnFinish(services.RefreshOnSuccess(predictions, hub)))
//
// # Error Handling
//
// Services return sentinel errors wrapped with %w so handlers can map them
// to HTTP statuses with errors.Is:
//
//   - ErrInvalidInput for rejected queries
//   - ErrPredictionsUnavailable when the predictions cannot be loaded
//   - ErrOperationNotFound and ErrOperationCompleted from the operations layer
//   - ErrUnknownPipeline for names missing from the catalog
package services
