package middleware

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyAuth(t *testing.T) {
	keys := map[string]string{"k-123": "scheduler"}

	tests := []struct {
		name       string
		keys       map[string]string
		header     string
		wantStatus int
		wantClient string
	}{
		{"no keys configured", nil, "", http.StatusOK, ""},
		{"missing key", keys, "", http.StatusUnauthorized, ""},
		{"wrong key", keys, "k-999", http.StatusUnauthorized, ""},
		{"valid key", keys, "k-123", http.StatusOK, "scheduler"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var client string
			h := APIKeyAuth(discardLogger(), tt.keys)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				client = ClientFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodPost, "/api/v1/operations", nil)
			if tt.header != "" {
				r.Header.Set(APIKeyHeader, tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantClient, client)
		})
	}
}

func TestSecureHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  *SecureHeaders
		tls      bool
		upgrade  bool
		wantHSTS bool
		wantCSP  bool
	}{
		{"plain http", DefaultSecureHeaders(), false, false, false, true},
		{"tls", DefaultSecureHeaders(), true, false, true, true},
		{"dev mode", &SecureHeaders{DevMode: true, HSTSMaxAge: 10, XFrameOptions: "DENY"}, true, false, false, false},
		{"websocket upgrade", DefaultSecureHeaders(), true, true, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			if tt.upgrade {
				r.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			tt.headers.Handler(okHandler).ServeHTTP(w, r)

			assert.Equal(t, tt.wantHSTS, w.Header().Get("Strict-Transport-Security") != "")
			assert.Equal(t, tt.wantCSP, w.Header().Get("Content-Security-Policy") != "")
			if !tt.upgrade {
				assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
			}
		})
	}
}

func TestAuditLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	h := APIKeyAuth(discardLogger(), map[string]string{"k": "ops"})(AuditLog(logger)(okHandler))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/operations", nil)
	r.Header.Set(APIKeyHeader, "k")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Empty(t, buf.String(), "reads are not audited")

	r = httptest.NewRequest(http.MethodPost, "/api/v1/operations", strings.NewReader("{}"))
	r.Header.Set(APIKeyHeader, "k")
	h.ServeHTTP(httptest.NewRecorder(), r)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit", entry["msg"])
	assert.Equal(t, "ops", entry["client"])
	assert.Equal(t, float64(200), entry["status"])
}
