package service

import (
	"context"
	"log/slog"

	"github.com/garirakho/gate-backend/internal/relay"
)

// CommandSender is the outbound command path. *relay.Relay satisfies it.
type CommandSender interface {
	SendCommand(ctx context.Context, deviceKey string, command relay.Command) error
}

// CommandService authorizes and relays administrator commands.
type CommandService struct {
	auth   *AuthService
	sender CommandSender
	logger *slog.Logger
}

// NewCommandService creates a CommandService.
func NewCommandService(authSvc *AuthService, sender CommandSender, logger *slog.Logger) *CommandService {
	return &CommandService{auth: authSvc, sender: sender, logger: logger}
}

// Send checks that token belongs to an administrator and then delivers
// command to deviceID.
//
// The admin check runs in its own unit of work, which has completed before
// the network call starts; no transaction is held open while the broker is
// contacted.
func (s *CommandService) Send(ctx context.Context, token, deviceID string, command relay.Command) error {
	admin, err := s.auth.RequireAdmin(ctx, token)
	if err != nil {
		return err
	}

	if err := s.sender.SendCommand(ctx, deviceID, command); err != nil {
		return err
	}

	s.logger.Info("admin command relayed",
		slog.Int64("user_id", admin.ID),
		slog.String("device_id", deviceID),
	)
	return nil
}
