package middleware

import (
	"net/http"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/request"
	"go.uber.org/zap"
)

// DefaultMaxRequestSize caps bodies on every route. Handlers may set a
// tighter limit of their own.
const DefaultMaxRequestSize int64 = 1 << 20

// MaxRequestSize rejects bodies larger than maxBytes. A declared
// Content-Length over the limit is answered with 413 before the handler
// runs; undeclared bodies are cut off by http.MaxBytesReader and the handler
// sees the read error. A non-positive maxBytes selects the default.
func MaxRequestSize(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				logger.Warn("request_too_large",
					zap.String("path", r.URL.Path),
					zap.Int64("content_length", r.ContentLength),
					zap.Int64("limit", maxBytes),
					zap.String("request_id", request.RequestID(r.Context())),
				)
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "Request Entity Too Large", "Request body exceeds the size limit", logger)
				return
			}

			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
