package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/garirakho/gate-backend/internal/apperror"
	"github.com/garirakho/gate-backend/internal/auth"
	"github.com/garirakho/gate-backend/internal/model"
	"github.com/garirakho/gate-backend/internal/service"
)

// maxFormBytes bounds signup and login bodies.
const maxFormBytes = 64 << 10

// Authenticator is what the HTTP layer needs from the auth service.
// *service.AuthService satisfies it.
type Authenticator interface {
	Signup(ctx context.Context, in service.SignupInput) (*service.AuthResult, error)
	Login(ctx context.Context, email, password string) (*service.AuthResult, error)
	RequireLogin(ctx context.Context, token string) (*model.User, error)
}

// AuthHandler manages signup, login, logout and the current-user endpoint.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup → create the account, set the session cookie
//   - HandleLogin  → check credentials, set the session cookie
//   - HandleLogout → clear the session cookie
//   - HandleMe     → return the logged-in user's profile
type AuthHandler struct {
	auth         Authenticator
	sessionTTL   time.Duration
	cookieSecure bool
	logger       *slog.Logger
}

// NewAuthHandler creates an AuthHandler. sessionTTL is the cookie lifetime
// (0 = browser session); cookieSecure sets the Secure attribute.
func NewAuthHandler(a Authenticator, sessionTTL time.Duration, cookieSecure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:         a,
		sessionTTL:   sessionTTL,
		cookieSecure: cookieSecure,
		logger:       logger,
	}
}

// userResponse is the public view of a user. The password hash never
// leaves the service layer.
type userResponse struct {
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	IsAdmin  bool   `json:"isAdmin"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{Email: u.Email, FullName: u.FullName, IsAdmin: u.IsAdmin}
}

// credentialsRequest accepts both the dashboard's camelCase JSON and the
// snake_case names of the HTML form.
type credentialsRequest struct {
	FullName             string `json:"fullName"`
	FullNameSnake        string `json:"full_name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	ConfirmPassword      string `json:"confirmPassword"`
	ConfirmPasswordSnake string `json:"confirm_password"`
}

func (c credentialsRequest) fullName() string {
	return firstNonEmpty(c.FullName, c.FullNameSnake)
}

func (c credentialsRequest) confirmPassword() string {
	return firstNonEmpty(c.ConfirmPassword, c.ConfirmPasswordSnake)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// decodeCredentials reads a JSON body, or a urlencoded/multipart form.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxFormBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, apperror.ValidationFailed("body", "invalid form body")
		}
		req.FullNameSnake = r.PostFormValue("full_name")
		req.FullName = r.PostFormValue("fullName")
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
		req.ConfirmPasswordSnake = r.PostFormValue("confirm_password")
		req.ConfirmPassword = r.PostFormValue("confirmPassword")
		return req, nil
	default:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return req, apperror.ValidationFailed("body", "invalid JSON body")
		}
		return req, nil
	}
}

// HandleSignup registers a user and logs them in.
//
// HTTP: POST /api/signup
// REQUEST:  {"fullName": "...", "email": "...", "password": "...", "confirmPassword": "..."}
// RESPONSE: 201 {"email": "...", "fullName": "...", "isAdmin": true} + session cookie
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Signup(r.Context(), service.SignupInput{
		FullName:        req.fullName(),
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.confirmPassword(),
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionTTL, h.cookieSecure)
	writeJSON(w, http.StatusCreated, toUserResponse(result.User))
}

// HandleLogin checks credentials and sets the session cookie.
//
// HTTP: POST /api/login
// REQUEST:  {"email": "...", "password": "..."}
// RESPONSE: 200 {"email": "...", "fullName": "...", "isAdmin": false} + session cookie
//
// A wrong password and an unknown email both produce the same 401.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	auth.SetSessionCookie(w, result.Token, h.sessionTTL, h.cookieSecure)
	writeJSON(w, http.StatusOK, toUserResponse(result.User))
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /api/logout → 200 {"ok": true}
// HTTP: GET  /logout     → 302 to /login
//
// Sessions are stateless, so a copied token stays valid until the secret
// rotates or the optional TTL elapses.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, h.cookieSecure)

	if r.Method == http.MethodGet {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

// HandleMe returns the logged-in user's profile.
//
// HTTP: GET /api/me → {"email": "...", "fullName": "...", "isAdmin": true}
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.auth.RequireLogin(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
