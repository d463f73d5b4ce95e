package config

import "time"

// Application constants
const (
	AppName = "valuepulse"

	DefaultHTTPTimeout = 30 * time.Second

	// Endpoints outside the versioned API prefix
	HealthEndpoint    = "/health"
	MetricsEndpoint   = "/metrics"
	VersionEndpoint   = "/version"
	WebSocketEndpoint = "/ws"

	// Default prediction query limits
	DefaultPredictionLimit = 10
	MaxPredictionLimit     = 100
)
