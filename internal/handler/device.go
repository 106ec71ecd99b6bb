package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/model"
)

// maxTelemetryBytes bounds one ingest body. Readings are a few hundred bytes.
const maxTelemetryBytes = 64 << 10

// DeviceRegistry is what the HTTP layer needs from the device service.
// *service.DeviceService satisfies it.
type DeviceRegistry interface {
	Ingest(ctx context.Context, payload []byte, deviceIDOverride string) (*model.Device, error)
	List(ctx context.Context) ([]model.Device, error)
}

// LoginChecker resolves the session of a request.
type LoginChecker interface {
	RequireLogin(ctx context.Context, token string) (*model.User, error)
}

// DeviceHandler serves the device list and the telemetry ingest endpoint.
type DeviceHandler struct {
	devices DeviceRegistry
	auth    LoginChecker
	logger  *slog.Logger
}

// NewDeviceHandler creates a DeviceHandler.
func NewDeviceHandler(devices DeviceRegistry, a LoginChecker, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, auth: a, logger: logger}
}

// deviceResponse is one row of GET /api/devices.
//
// isAdmin is the VIEWER's admin flag, repeated per row so the dashboard can
// decide whether to render command buttons next to each device.
type deviceResponse struct {
	DeviceID     string  `json:"deviceId"`
	EntranceCm   int64   `json:"entranceCm"`
	ExitApproved bool    `json:"exitApproved"`
	Slots        []bool  `json:"slots"`
	LastMsgCount int64   `json:"lastMsgCount"`
	LastSeen     *string `json:"lastSeen"`
	IsAdmin      bool    `json:"isAdmin"`
}

func toDeviceResponse(d model.Device, viewerIsAdmin bool) deviceResponse {
	slots := d.Slots
	if slots == nil {
		slots = []bool{}
	}

	var lastSeen *string
	if !d.LastSeen.IsZero() {
		s := d.LastSeen.UTC().Format(time.RFC3339Nano)
		lastSeen = &s
	}

	return deviceResponse{
		DeviceID:     d.DeviceID,
		EntranceCm:   d.EntranceCm,
		ExitApproved: d.ExitApproved,
		Slots:        slots,
		LastMsgCount: d.LastMsgCount,
		LastSeen:     lastSeen,
		IsAdmin:      viewerIsAdmin,
	}
}

// HandleList returns every device, most recently seen first.
//
// HTTP: GET /api/devices (login required)
func (h *DeviceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.RequireLogin(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	devices, err := h.devices.List(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		resp = append(resp, toDeviceResponse(d, user.IsAdmin))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleIngest records one device reading.
//
// HTTP: POST /api/ingest (x-api-key required, checked by middleware.RequireAPIKey)
// REQUEST:  {"deviceId": "d1", "entranceCm": 12, "exitApproved": true, "slots": [true, false], "msgCount": 5}
// RESPONSE: {"ok": true}
func (h *DeviceHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, h.logger, apperror.ValidationFailed("body", "body too large"))
			return
		}
		writeError(w, r, h.logger, apperror.ValidationFailed("body", "could not read body"))
		return
	}

	if _, err := h.devices.Ingest(r.Context(), payload, ""); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}
