package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/handler"
	"github.com/garirakho/gate-backend/internal/relay"
	"github.com/garirakho/gate-backend/internal/repository/sqlstore"
	"github.com/garirakho/gate-backend/internal/service"
)

// =========================================================================
// FIXTURES
// =========================================================================

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

// fakePublisher records what the relay hands to the broker.
type fakePublisher struct {
	mu   sync.Mutex
	msgs []publishedMessage
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.msgs...)
}

// testApp wires real services on an in-memory store. Only the broker is fake.
type testApp struct {
	auth      *handler.AuthHandler
	devices   *handler.DeviceHandler
	commands  *handler.CommandHandler
	deviceSvc *service.DeviceService
	publisher *fakePublisher
	store     *sqlstore.Store
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	logger := quietLogger()

	store, err := sqlstore.Open(context.Background(),
		sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	codec, err := auth.NewSessionCodec("test-secret-at-least-16-chars!!", auth.SessionPurpose, 0)
	require.NoError(t, err)

	authSvc := service.NewAuthService(store, codec, auth.NewPasswordServiceForTest(), logger)
	deviceSvc := service.NewDeviceService(store, func() time.Time {
		return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	}, logger)

	pub := &fakePublisher{}
	commandSvc := service.NewCommandService(authSvc, relay.New(pub, "garirakho", 1, logger), logger)

	return &testApp{
		auth:      handler.NewAuthHandler(authSvc, 0, false, logger),
		devices:   handler.NewDeviceHandler(deviceSvc, authSvc, logger),
		commands:  handler.NewCommandHandler(commandSvc, logger),
		deviceSvc: deviceSvc,
		publisher: pub,
		store:     store,
	}
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withSession(req *http.Request, cookie *http.Cookie) *http.Request {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	return req
}

func sessionCookie(rr *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

// signupAs registers a user through the handler and returns their cookie.
func (a *testApp) signupAs(t *testing.T, email string) *http.Cookie {
	t.Helper()
	body := `{"fullName":"Test User","email":"` + email + `","password":"hunter22","confirmPassword":"hunter22"}`
	rr := httptest.NewRecorder()
	a.auth.HandleSignup(rr, jsonRequest(http.MethodPost, "/api/signup", body))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	cookie := sessionCookie(rr)
	require.NotNil(t, cookie)
	return cookie
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}
