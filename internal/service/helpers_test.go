package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/repository/sqlstore"
)

// =========================================================================
// FIXTURES
// =========================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestStore opens a migrated in-memory SQLite store.
func newTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	store, err := sqlstore.Open(context.Background(),
		sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"}, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestCodec(t *testing.T) *auth.SessionCodec {
	t.Helper()
	codec, err := auth.NewSessionCodec("test-secret-at-least-16-chars!!", auth.SessionPurpose, 0)
	require.NoError(t, err)
	return codec
}

// newTestAuthService wires an AuthService with cheap argon2 parameters.
func newTestAuthService(t *testing.T) (*AuthService, *sqlstore.Store) {
	t.Helper()
	store := newTestStore(t)
	svc := NewAuthService(store, newTestCodec(t), auth.NewPasswordServiceForTest(), quietLogger())
	return svc, store
}

func signup(t *testing.T, svc *AuthService, email string) *AuthResult {
	t.Helper()
	res, err := svc.Signup(context.Background(), SignupInput{
		FullName:        "Test User",
		Email:           email,
		Password:        "hunter22",
		ConfirmPassword: "hunter22",
	})
	require.NoError(t, err)
	return res
}
