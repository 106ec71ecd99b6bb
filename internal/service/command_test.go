package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/relay"
)

type sentCommand struct {
	deviceID string
	command  relay.Command
}

type fakeSender struct {
	sent []sentCommand
	err  error
}

func (f *fakeSender) SendCommand(_ context.Context, deviceID string, command relay.Command) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCommand{deviceID, command})
	return nil
}

func TestCommandSend(t *testing.T) {
	authSvc, _ := newTestAuthService(t)
	admin := signup(t, authSvc, "admin@x.io")
	user := signup(t, authSvc, "user@x.io")

	sender := &fakeSender{}
	svc := NewCommandService(authSvc, sender, quietLogger())
	ctx := context.Background()

	t.Run("admin", func(t *testing.T) {
		require.NoError(t, svc.Send(ctx, admin.Token, "gate-01", relay.OpenGate()))
		require.Len(t, sender.sent, 1)
		assert.Equal(t, "gate-01", sender.sent[0].deviceID)
		assert.Equal(t, relay.OpenGate(), sender.sent[0].command)
	})

	t.Run("non-admin never reaches the relay", func(t *testing.T) {
		before := len(sender.sent)
		err := svc.Send(ctx, user.Token, "gate-01", relay.OpenGate())
		assert.ErrorIs(t, err, apperror.ErrForbidden)
		assert.Len(t, sender.sent, before)
	})

	t.Run("anonymous never reaches the relay", func(t *testing.T) {
		before := len(sender.sent)
		err := svc.Send(ctx, "", "gate-01", relay.OpenGate())
		assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
		assert.Len(t, sender.sent, before)
	})
}

func TestCommandSend_TransportErrorPropagates(t *testing.T) {
	authSvc, _ := newTestAuthService(t)
	admin := signup(t, authSvc, "admin@x.io")

	sender := &fakeSender{err: apperror.Transport("device messaging is unavailable", nil)}
	svc := NewCommandService(authSvc, sender, quietLogger())

	err := svc.Send(context.Background(), admin.Token, "gate-01", relay.ExitApproved(true))
	assert.ErrorIs(t, err, apperror.ErrTransport)
}
