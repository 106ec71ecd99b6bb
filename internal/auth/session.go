// Package auth provides credential hashing, session tokens and the
// authorization gate for the gate-management API.
//
// SESSION FLOW OVERVIEW:
//  1. User signs up or logs in with email + password
//  2. Server issues a signed session token and stores it in an HttpOnly cookie
//  3. On every API call the token is decoded back into a user ID
//  4. The Gate looks that user up and enforces login / admin requirements
//
// Sessions are stateless: nothing is stored server side. The signature is the
// only thing that makes a token trustworthy, so the signing secret is loaded
// once at startup and never changes while the process runs. Rotating it logs
// every user out, which is the expected way to invalidate all sessions.
//
// TOKEN STRUCTURE (a compact JWT, three base64url parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header:    {"alg":"HS256","typ":"JWT"}
//	- Payload:   {"uid":42,"aud":["session"],"iat":1700000000}
//	- Signature: HMAC-SHA256(header+"."+payload, purposeKey)
//
// Only [A-Za-z0-9-_.] appear in a token, so it goes into a cookie unescaped.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionPurpose is the domain tag for login session tokens. Any other use of
// signed tokens in this service must pick a different purpose.
const SessionPurpose = "session"

// minSecretLen is the shortest signing secret NewSessionCodec accepts.
const minSecretLen = 16

// SessionCodec issues and verifies session tokens for one purpose.
//
// It is immutable after construction and safe for concurrent use.
type SessionCodec struct {
	key     []byte
	purpose string
	ttl     time.Duration
}

// NewSessionCodec creates a SessionCodec bound to the given purpose.
//
// The signing key is derived from secret and purpose, so a token minted for
// one purpose fails signature verification under any other purpose even
// when the process-wide secret is the same.
//
// ttl <= 0 means tokens never expire.
func NewSessionCodec(secret, purpose string, ttl time.Duration) (*SessionCodec, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("auth: session secret must be at least %d characters", minSecretLen)
	}
	if purpose == "" {
		return nil, errors.New("auth: session purpose must not be empty")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("garirakho.signer." + purpose))

	return &SessionCodec{
		key:     mac.Sum(nil),
		purpose: purpose,
		ttl:     ttl,
	}, nil
}

// TTL returns the configured token lifetime (0 = unbounded).
func (c *SessionCodec) TTL() time.Duration {
	if c.ttl < 0 {
		return 0
	}
	return c.ttl
}

// sessionClaims is the token payload.
//
// UserID is a pointer so a token without "uid" is distinguishable from uid 0.
// A non-integer uid (string, float) fails JSON decoding and so fails Parse.
type sessionClaims struct {
	UserID *int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issue creates a signed token for the given user ID. User IDs are
// positive; anything else is refused, since Decode would never accept it.
func (c *SessionCodec) Issue(userID int64) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("auth: issuing session: invalid user id %d", userID)
	}

	now := time.Now()

	claims := sessionClaims{
		UserID: &userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience: jwt.ClaimStrings{c.purpose},
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("auth: signing session token: %w", err)
	}

	return signed, nil
}

// Decode verifies a token and returns the user ID it carries.
//
// Every failure (empty, tampered, wrong purpose, malformed, missing or
// non-integer uid, expired) yields (0, false). Callers treat that as
// "anonymous"; the reason is deliberately not reported.
func (c *SessionCodec) Decode(tokenStr string) (int64, bool) {
	if tokenStr == "" {
		return 0, false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(c.purpose),
		jwt.WithStrictDecoding(),
	}
	if c.ttl > 0 {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	token, err := jwt.ParseWithClaims(
		tokenStr,
		&sessionClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return c.key, nil
		},
		opts...,
	)
	if err != nil || !token.Valid {
		return 0, false
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || claims.UserID == nil || *claims.UserID <= 0 {
		return 0, false
	}

	return *claims.UserID, true
}
