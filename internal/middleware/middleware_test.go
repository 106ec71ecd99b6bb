package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garirakho/gate-backend/internal/middleware"
)

// =========================================================================
// RequireAPIKey
// =========================================================================

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestRequireAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{"matching key", "devkey", "devkey", http.StatusTeapot},
		{"missing header", "devkey", "", http.StatusUnauthorized},
		{"wrong key", "devkey", "devkex", http.StatusUnauthorized},
		{"prefix of key", "devkey", "dev", http.StatusUnauthorized},
		{"empty configured key never matches", "", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.RequireAPIKey(tt.configured, logger)(okHandler())

			req := httptest.NewRequest(http.MethodPost, "/api/ingest", nil)
			if tt.header != "" {
				req.Header.Set("x-api-key", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"unauthenticated","message":"bad api key"}`, rr.Body.String())
			}
		})
	}
}

// =========================================================================
// Logger
// =========================================================================

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := chimiddleware.RequestID(middleware.Logger(logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("nope"))
		}),
	))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cmd/open-gate?deviceId=secret-gate", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	line := buf.String()
	assert.Contains(t, line, "level=WARN")
	assert.Contains(t, line, "status=404")
	assert.Contains(t, line, "bytes=4")
	assert.Contains(t, line, "path=/api/cmd/open-gate")
	assert.Contains(t, line, "request_id=")
	assert.NotContains(t, line, "secret-gate")
}

func TestLogger_DefaultStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := middleware.Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Contains(t, buf.String(), "level=INFO")
	assert.Contains(t, buf.String(), "status=200")
}
