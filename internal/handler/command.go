package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/relay"
)

// CommandSender authorizes and relays a command.
// *service.CommandService satisfies it.
type CommandSender interface {
	Send(ctx context.Context, token, deviceID string, command relay.Command) error
}

// CommandHandler serves the admin command endpoints. All three take their
// arguments from the query string and answer {"ok": true} once the broker
// has accepted the message.
type CommandHandler struct {
	commands CommandSender
	logger   *slog.Logger
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(commands CommandSender, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{commands: commands, logger: logger}
}

// HandleOpenGate sends {"openGate": true}.
//
// HTTP: POST /api/cmd/open-gate?deviceId=gate-01
func (h *CommandHandler) HandleOpenGate(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(*http.Request) (relay.Command, error) {
		return relay.OpenGate(), nil
	})
}

// HandleExitApproved sends {"exitApproved": <approved>}.
//
// HTTP: POST /api/cmd/exit-approved?deviceId=gate-01&approved=true
func (h *CommandHandler) HandleExitApproved(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(r *http.Request) (relay.Command, error) {
		raw := r.URL.Query().Get("approved")
		if raw == "" {
			return nil, apperror.ValidationFailed("approved", "approved is required")
		}
		approved, err := parseBoolParam("approved", raw)
		if err != nil {
			return nil, err
		}
		return relay.ExitApproved(approved), nil
	})
}

// HandleBookSlots sends {"slot1Booked": .., "slot4Booked": ..}. Omitted slots
// are false.
//
// HTTP: POST /api/cmd/book-slots?deviceId=gate-01&slot1=true&slot3=1
func (h *CommandHandler) HandleBookSlots(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, func(r *http.Request) (relay.Command, error) {
		var slots [4]bool
		for i := range slots {
			name := fmt.Sprintf("slot%d", i+1)
			raw := r.URL.Query().Get(name)
			if raw == "" {
				continue
			}
			v, err := parseBoolParam(name, raw)
			if err != nil {
				return nil, err
			}
			slots[i] = v
		}
		return relay.BookSlots(slots[0], slots[1], slots[2], slots[3]), nil
	})
}

// send validates deviceId, builds the command and hands it to the service,
// which checks the caller is an admin before anything is published.
func (h *CommandHandler) send(w http.ResponseWriter, r *http.Request, build func(*http.Request) (relay.Command, error)) {
	deviceID := r.URL.Query().Get("deviceId")
	if deviceID == "" {
		writeError(w, r, h.logger, apperror.ValidationFailed("deviceId", "deviceId is required"))
		return
	}

	command, err := build(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.commands.Send(r.Context(), auth.TokenFromRequest(r), deviceID, command); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// parseBoolParam accepts true/false, 1/0, yes/no and on/off, case-insensitively.
func parseBoolParam(name, raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	default:
		return false, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a boolean, got %q", name, raw))
	}
}
