package services

import (
	"errors"

	"valuepulse/internal/operations"
	"valuepulse/internal/pipeline"
)

// Service errors
var (
	// Prediction errors
	ErrPredictionsUnavailable = errors.New("predictions unavailable")
	ErrInvalidPredictions     = errors.New("predictions table is malformed")
	ErrPlayerNotFound         = errors.New("player not found")

	// operation errors, shared with the operations package so errors.Is
	// matches across layers
	ErrOperationNotFound  = operations.ErrOperationNotFound
	ErrOperationCompleted = operations.ErrOperationCompleted
	ErrUnknownPipeline    = pipeline.ErrUnknownPipeline

	// General errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
