package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the note client, which calls from an app:// or file origin,
// to use the todo API from any origin. Credentials travel in the
// Authorization header, so cookies are never involved.
func CORS() func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	return c.Handler
}
