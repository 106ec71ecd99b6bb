// Package service holds the business rules, between the HTTP handlers and
// the repositories:
//
//	AuthHandler (HTTP) → AuthService (business rules) → repository.Store (DB)
//	                   ↘ SessionCodec / PasswordService (auth)
//
// Services never see HTTP. Every operation runs in its own unit of work
// (Store.WithTx) and re-reads current state; nothing is cached between
// calls.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/model"
	"github.com/garirakho/gate-backend/internal/repository"
)

// MinPasswordLength is the shortest password signup accepts.
const MinPasswordLength = 6

// AuthService handles signup, login and session resolution.
//
// DEPENDENCIES (injected via NewAuthService):
//   - store      repository.Store        → units of work over users
//   - sessions   *auth.SessionCodec      → issue session tokens
//   - passwords  *auth.PasswordService   → argon2id hashing
//   - gate       *auth.Gate              → login/admin checks
//   - logger     *slog.Logger            → structured logging
type AuthService struct {
	store     repository.Store
	sessions  *auth.SessionCodec
	passwords *auth.PasswordService
	gate      *auth.Gate
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
func NewAuthService(
	store repository.Store,
	sessions *auth.SessionCodec,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		store:     store,
		sessions:  sessions,
		passwords: passwords,
		gate:      auth.NewGate(sessions),
		logger:    logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignupInput is the raw signup form.
type SignupInput struct {
	FullName        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Signup registers a user and returns a session for them.
//
// VALIDATION (in this order, first failure wins):
//   - full name is trimmed and must not be empty
//   - email is trimmed and lowercased and must look like an address
//   - password and confirmation must match
//   - password must be at least MinPasswordLength characters
//
// FIRST USER IS ADMIN:
// The admin flag is decided by the INSERT itself, inside the same unit of
// work as the duplicate-email check, so two concurrent first signups cannot
// both become admin.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*AuthResult, error) {
	fullName := strings.TrimSpace(in.FullName)
	email := NormalizeEmail(in.Email)

	if fullName == "" {
		return nil, apperror.ValidationFailed("full_name", "full name is required")
	}
	if !looksLikeEmail(email) {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if in.Password != in.ConfirmPassword {
		return nil, apperror.ValidationFailed("confirm_password", "passwords do not match")
	}
	if len([]rune(in.Password)) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	// Hash before opening the transaction: argon2 takes tens of milliseconds
	// and must not hold the users table lock.
	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, s.credentialFailure("hashing password", err)
	}

	user := &model.User{
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
	}

	err = s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		exists, err := tx.Users().EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return apperror.Conflict("user", email)
		}
		return tx.Users().CreateUser(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("service/auth: signing up %q: %w", email, err)
	}

	s.logger.Info("user signed up",
		slog.Int64("user_id", user.ID),
		slog.Bool("is_admin", user.IsAdmin),
	)

	return s.issue(user)
}

// Login verifies credentials and returns a session.
//
// An unknown email and a wrong password produce the same error, and an
// unknown email still pays for one argon2 verification, so neither the
// response nor its timing reveals which emails are registered.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)

	var user *model.User
	err := s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.Users().GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("service/auth: looking up %q: %w", email, err)
	}

	if user == nil {
		s.passwords.VerifyDummy(password)
		return nil, invalidCredentials()
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		return nil, invalidCredentials()
	}

	s.logger.Info("user logged in", slog.Int64("user_id", user.ID))

	return s.issue(user)
}

func invalidCredentials() error {
	return apperror.Unauthenticated("invalid email or password")
}

func (s *AuthService) issue(user *model.User) (*AuthResult, error) {
	token, err := s.sessions.Issue(user.ID)
	if err != nil {
		return nil, s.credentialFailure(fmt.Sprintf("issuing session for user %d", user.ID), err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// credentialFailure reports a hashing or signing fault as an authentication
// error. The cause is logged here and kept on the error, never shown to the
// client.
func (s *AuthService) credentialFailure(op string, err error) error {
	s.logger.Error("credential operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return &apperror.AppError{
		Err:     apperror.ErrUnauthenticated,
		Message: "could not sign in, please try again",
		Cause:   fmt.Errorf("service/auth: %s: %w", op, err),
	}
}

// CurrentUser resolves the session token. A nil user with a nil error means
// the caller is anonymous.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	var user *model.User
	err := s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.gate.ResolveIdentity(ctx, token, tx.Users())
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequireLogin resolves the session or fails with apperror.ErrUnauthenticated.
func (s *AuthService) RequireLogin(ctx context.Context, token string) (*model.User, error) {
	var user *model.User
	err := s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.gate.RequireLogin(ctx, token, tx.Users())
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// RequireAdmin resolves the session and additionally fails with
// apperror.ErrForbidden for non-admins. The unit of work has committed by the
// time it returns, so callers may perform outbound calls right after.
func (s *AuthService) RequireAdmin(ctx context.Context, token string) (*model.User, error) {
	var user *model.User
	err := s.store.WithTx(ctx, nil, func(ctx context.Context, tx repository.Tx) error {
		u, err := s.gate.RequireAdmin(ctx, token, tx.Users())
		user = u
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// NormalizeEmail trims surrounding whitespace and lowercases.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// looksLikeEmail is a shape check, not RFC 5322: one '@', something on both
// sides, a dot in the domain, no whitespace.
func looksLikeEmail(email string) bool {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return false
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}
	return strings.IndexFunc(email, unicode.IsSpace) < 0
}
