package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/model"
)

// UserLookup is the capability the Gate needs to turn a user ID into a user.
// It returns an error wrapping apperror.ErrNotFound when no such user exists.
//
// repository.UserRepository satisfies it; callers pass the repository of
// their current unit of work.
type UserLookup interface {
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// Gate derives login and admin requirements from a session token.
//
// The three checks are pure functions of (token, lookup): they read, never
// write, and hold no state besides the immutable codec.
type Gate struct {
	sessions *SessionCodec
}

// NewGate creates a Gate that decodes tokens with the given codec.
func NewGate(sessions *SessionCodec) *Gate {
	return &Gate{sessions: sessions}
}

// ResolveIdentity returns the user a token belongs to.
//
// Returns (nil, nil) when the token is missing or invalid, and when it names
// a user that no longer exists. A non-nil error means the lookup itself
// failed (database down) and must not be mistaken for "anonymous".
func (g *Gate) ResolveIdentity(ctx context.Context, token string, users UserLookup) (*model.User, error) {
	uid, ok := g.sessions.Decode(token)
	if !ok {
		return nil, nil
	}

	user, err := users.GetUserByID(ctx, uid)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("auth: resolving session user %d: %w", uid, err)
	}

	return user, nil
}

// RequireLogin is ResolveIdentity that turns "nobody" into an
// apperror.ErrUnauthenticated error (HTTP 401).
func (g *Gate) RequireLogin(ctx context.Context, token string, users UserLookup) (*model.User, error) {
	user, err := g.ResolveIdentity(ctx, token, users)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.Unauthenticated("not logged in")
	}
	return user, nil
}

// RequireAdmin is RequireLogin plus an apperror.ErrForbidden error (HTTP 403)
// when the user is not an administrator.
func (g *Gate) RequireAdmin(ctx context.Context, token string, users UserLookup) (*model.User, error) {
	user, err := g.RequireLogin(ctx, token, users)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin {
		return nil, apperror.Forbidden("admin only")
	}
	return user, nil
}
