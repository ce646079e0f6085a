package api

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuthMiddleware rejects requests without the configured credentials.
// When no user is configured every request passes.
func BasicAuthMiddleware(user, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if user == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 ||
				subtle.ConstantTimeCompare([]byte(p), []byte(password)) != 1 {
				w.Header().Add("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Message: "Unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
