package infrastructure

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelConfigFrom(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.TelemetryConfig
		wantTrace   string
		wantMetrics string
		wantService string
	}{
		{"defaults", config.Default().Telemetry, "none", "prometheus", "valuepulse"},
		{"tracing on", config.TelemetryConfig{ServiceName: "vp-api", TracingEnabled: true, MetricsEnabled: true}, "stdout", "prometheus", "vp-api"},
		{"everything off", config.TelemetryConfig{}, "none", "none", ServiceName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OTelConfigFrom(tt.cfg, "1.4.0")
			assert.Equal(t, tt.wantTrace, got.TraceExporter)
			assert.Equal(t, tt.wantMetrics, got.MetricExporter)
			assert.Equal(t, tt.wantService, got.ServiceName)
			assert.Equal(t, "1.4.0", got.ServiceVersion)
		})
	}
}

func TestInitializeOTel(t *testing.T) {
	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "prometheus",
		SampleRatio:    1,
	}, quietLogger())
	require.NoError(t, err)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, span := providers.Tracer.Start(context.Background(), "unit")
	assert.Len(t, TraceIDFromContext(ctx), 32)
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(ctx))
}

func TestInitializeOTel_Disabled(t *testing.T) {
	providers, err := InitializeOTel(OTelConfigFrom(config.TelemetryConfig{}, ""), quietLogger())
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.PrometheusHTTP)
	require.NotNil(t, providers.Tracer)
	require.NotNil(t, providers.Meter)

	_, err = CreateBusinessMetrics(providers.Meter)
	assert.NoError(t, err, "no-op meters still hand out instruments")
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_UnsupportedExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "jaeger"
	_, err := InitializeOTel(cfg, quietLogger())
	assert.ErrorContains(t, err, "unsupported trace exporter")

	cfg = DefaultOTelConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "statsd"
	_, err = InitializeOTel(cfg, quietLogger())
	assert.ErrorContains(t, err, "unsupported metric exporter")
}

func TestBusinessMetricsOnPrometheusEndpoint(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "none"
	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	metrics, err := CreateBusinessMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordOperation(ctx, "clean_fbref", "completed", 2*time.Second)
	metrics.RecordOperation(ctx, "train_forwards", "failed", time.Second)
	metrics.RecordPredictionQuery(ctx, "Premier League", "")

	server := httptest.NewServer(providers.PrometheusHTTP)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	text := string(body)
	assert.Contains(t, text, "operation_executions_total")
	assert.Contains(t, text, `pipeline="train_forwards"`)
	assert.Contains(t, text, "operation_errors_total")
	assert.Contains(t, text, `position="any"`)
	assert.Contains(t, text, "go_goroutines")
}

func TestBusinessMetrics_NilSafe(t *testing.T) {
	var m *BusinessMetrics
	assert.NotPanics(t, func() {
		m.RecordOperation(context.Background(), "x", "completed", time.Second)
		m.RecordPredictionQuery(context.Background(), "", "")
	})
}
