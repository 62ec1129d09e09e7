package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// BearerAuth admits only requests whose Authorization header is exactly
// "Bearer <token>". Anything else gets 403, including a missing header.
func BearerAuth(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	expected := []byte(bearerPrefix + token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get("Authorization")
			if token == "" || !strings.HasPrefix(got, bearerPrefix) ||
				subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				respondErrorJSON(w, r, http.StatusForbidden, "Forbidden", "Invalid API token", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
