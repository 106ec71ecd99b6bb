package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
)

// APIKeyHeader carries the shared device key on /api/ingest.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey rejects requests whose X-API-Key header does not equal key
// with 401 {"error":"unauthenticated","message":"bad api key"}.
//
// The comparison is constant-time.
func RequireAPIKey(key string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(key)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(APIKeyHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				logger.Warn("rejected ingest with bad api key",
					slog.String("remote_addr", r.RemoteAddr),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "unauthenticated",
					"message": "bad api key",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
