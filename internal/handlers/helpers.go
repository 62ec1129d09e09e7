// Package handlers implements the HTTP surface: the Slack events endpoint,
// the polling todo API and health checks.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"
)

const maxErrorMessageRunes = 200

// writeJSON sends v as-is. The todo API keeps the bare shapes the note
// client parses, so it does not use the envelope.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds messages sent to clients
func sanitizeErrorMessage(message string) string {
	if utf8.RuneCountInString(message) <= maxErrorMessageRunes {
		return message
	}
	r := []rune(message)
	return string(r[:maxErrorMessageRunes]) + "..."
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	writeJSON(w, status, map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// respondText sends a plain text body, which is what Slack expects as an ack
func respondText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
