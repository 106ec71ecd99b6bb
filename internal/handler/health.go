package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether the device-messaging endpoint is connected.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves GET /healthz.
type HealthHandler struct {
	db        Pinger
	messaging HealthChecker // nil when no broker is configured
	logger    *slog.Logger
}

// NewHealthHandler creates a HealthHandler. messaging may be nil.
func NewHealthHandler(db Pinger, messaging HealthChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, messaging: messaging, logger: logger}
}

type healthResponse struct {
	Status    string `json:"status"`    // ok, degraded, down
	Database  string `json:"database"`  // ok, error
	Messaging string `json:"messaging"` // ok, disconnected, disabled
}

// HandleHealth reports 200 while the database is reachable, 503 otherwise.
// A disconnected broker degrades the status but keeps 200: logins and the
// device list still work without it.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok", Messaging: "disabled"}
	status := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database unreachable", slog.String("error", err.Error()))
		resp.Database = "error"
		resp.Status = "down"
		status = http.StatusServiceUnavailable
	}

	if h.messaging != nil {
		resp.Messaging = "ok"
		if err := h.messaging.HealthCheck(ctx); err != nil {
			resp.Messaging = "disconnected"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
	}

	writeJSON(w, status, resp)
}
