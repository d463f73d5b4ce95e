package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"valuepulse/internal/config"
	"valuepulse/internal/processing"
)

const predictionsCSV = `player,position,comp,squad,country,market_value_euro_mill,prediction
Erling Haaland,FW,Premier League,Manchester City,NOR,170,160.004
Phil Foden,MF,Premier League,Manchester City,ENG,110,101.236
Rafael Leao,FW,Serie A,Milan,POR,90,
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.LocalRoot = filepath.Join(dir, "data")
	cfg.Logging.FilePath = filepath.Join(dir, "logs", "app.log")
	cfg.Pipeline.DefinitionsDir = filepath.Join(dir, "pipelines")
	cfg.Security.RateLimit.Enabled = false
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := newApplication(context.Background(), cfg, logger)
	require.NoError(t, err)
	a.Hub.Start()
	t.Cleanup(func() {
		a.Operations.Wait()
		a.Hub.Stop()
		a.release(context.Background())
	})
	return a
}

func writePredictions(t *testing.T, cfg *config.Config) {
	t.Helper()
	dir := filepath.Join(cfg.Storage.LocalRoot, cfg.Predictions.Bucket)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, cfg.Predictions.Blob), []byte(predictionsCSV), 0o644))
}

func do(a *Application, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.Router.ServeHTTP(w, req)
	return w
}

func TestApplication_RoutesWithoutPredictions(t *testing.T) {
	a := newTestApp(t, testConfig(t))

	tests := []struct {
		name       string
		method     string
		target     string
		wantStatus int
		wantType   string
	}{
		{"health", http.MethodGet, "/health", http.StatusOK, ""},
		{"liveness", http.MethodGet, "/health/live", http.StatusOK, ""},
		{"readiness waits for predictions", http.MethodGet, "/health/ready", http.StatusServiceUnavailable, ""},
		{"version", http.MethodGet, "/version", http.StatusOK, ""},
		{"predict", http.MethodGet, "/api/v1/value_prediction/predict", http.StatusServiceUnavailable, "/errors/predictions/unavailable"},
		{"dropdowns", http.MethodGet, "/api/v1/dropdowns/get", http.StatusServiceUnavailable, "/errors/predictions/unavailable"},
		{"pipelines", http.MethodGet, "/api/v1/operations/pipelines", http.StatusOK, ""},
		{"operations", http.MethodGet, "/api/v1/operations", http.StatusOK, ""},
		{"unknown route", http.MethodGet, "/api/v1/nothing", http.StatusNotFound, "/errors/not-found"},
		{"metrics", http.MethodGet, "/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(a, tt.method, tt.target, "", nil)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantType != "" {
				assert.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
				var p map[string]interface{}
				require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
				assert.Equal(t, tt.wantType, p["type"])
			}
		})
	}
}

func TestApplication_ServesPredictions(t *testing.T) {
	cfg := testConfig(t)
	writePredictions(t, cfg)
	a := newTestApp(t, cfg)

	w := do(a, http.MethodGet, "/api/v1/value_prediction/predict?league=Premier+League", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Data []struct {
			Player     string  `json:"player"`
			Prediction float64 `json:"prediction"`
		} `json:"data"`
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "Erling Haaland", resp.Data[0].Player)
	assert.Equal(t, 160.0, resp.Data[0].Prediction)
	assert.Equal(t, 101.24, resp.Data[1].Prediction)

	w = do(a, http.MethodGet, "/api/v1/dropdowns/get", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"positions":["FW","MF"],"leagues":["Premier League","Serie A"],"countries":["NOR","ENG","POR"]}`,
		w.Body.String())

	w = do(a, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(a, http.MethodGet, "/api/v1/value_prediction/player?player=rafael+leao", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplication_OperationsGuard(t *testing.T) {
	cfg := testConfig(t)
	cfg.Security.APIKeys = map[string]string{"secret-key": "scheduler"}
	a := newTestApp(t, cfg)

	w := do(a, http.MethodPost, "/api/v1/operations", `{"pipeline":"split"}`, map[string]string{"Content-Type": "application/json"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// reads stay open
	w = do(a, http.MethodGet, "/api/v1/operations", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(a, http.MethodPost, "/api/v1/operations", `{"pipeline":"no-such-pipeline"}`, map[string]string{
		"Content-Type": "application/json",
		"X-API-Key":    "secret-key",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(a, http.MethodPost, "/api/v1/operations", `{"pipeline":"split"}`, map[string]string{
		"Content-Type": "application/json",
		"X-API-Key":    "secret-key",
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/api/v1/operations/"))
}

func TestOpenPipelines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.FIFACodesSource = ""
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := OpenPipelines(context.Background(), cfg, logger, nil)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, config.BackendFS, p.Store.Backend())
	assert.NotNil(t, p.Env.Exporter)
	assert.Nil(t, p.Env.Publisher, "no database configured")
	assert.Nil(t, p.Env.FIFACodes)
	assert.True(t, p.Env.Registry.Has("continent"))
	assert.DirExists(t, p.Paths.ExportsDir)

	cfg.Storage.Backend = "s3"
	_, err = OpenPipelines(context.Background(), cfg, logger, nil)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestBundledDefinitionsBuild(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pipeline.FIFACodesSource = ""
	p, err := OpenPipelines(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	require.NoError(t, err)
	defer p.Close()

	files, err := filepath.Glob(filepath.Join("..", "..", "configs", "pipelines", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			def, err := processing.LoadDefinition(file)
			require.NoError(t, err)
			_, err = p.Env.Registry.BuildDefinition(def)
			assert.NoError(t, err)
		})
	}
}

func TestCachedFIFACodes(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`<table class="wikitable"><tr><th>Country</th><th>Code</th></tr><tr><td>England</td><td>ENG</td></tr></table>`))
	}))
	defer srv.Close()

	load := cachedFIFACodes(srv.Client(), srv.URL)
	ctx := context.Background()

	_, err := load(ctx)
	require.Error(t, err, "first fetch fails")

	codes, err := load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "England", codes["ENG"])

	_, err = load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load(), "successful load is cached")
}
