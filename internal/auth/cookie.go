package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "session"

// TokenFromRequest returns the session token from the request cookie, or ""
// when the cookie is absent. An empty token decodes as anonymous.
//
// COOKIE FLOW:
//  1. Set-Cookie: session=<token>; HttpOnly; SameSite=Lax (set on login/signup)
//  2. Browser automatically sends Cookie: session=<token> on subsequent requests
//  3. We read r.Cookie("session") and hand the value to the Gate
func TokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		// http.ErrNoCookie means the cookie isn't present: anonymous, not an error
		return ""
	}
	return cookie.Value
}

// SetSessionCookie stores the token in an HttpOnly, SameSite=Lax cookie.
//
// HttpOnly = JavaScript cannot read this cookie (XSS protection).
// SameSite=Lax = cookie is sent on top-level navigations but not cross-site POSTs.
// A ttl of 0 makes it a browser-session cookie, matching an unbounded token.
func SetSessionCookie(w http.ResponseWriter, token string, ttl time.Duration, secure bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		cookie.MaxAge = int(ttl.Seconds())
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie tells the browser to drop the session cookie.
//
// Sessions are stateless, so this is all "logout" means: a copy of the token
// kept elsewhere stays valid (no revocation list).
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // tells the browser to delete the cookie immediately
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
