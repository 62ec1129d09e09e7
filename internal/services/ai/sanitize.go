package ai

import (
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
)

const (
	// MaxPreviewLength caps prompt and response previews in logs
	MaxPreviewLength = 200
	// MaxDebugContentLength caps previews when full logging is on
	MaxDebugContentLength = 10000
)

// SanitizePrompt returns a log-safe preview of a prompt. Message text is
// user content, so it is cleaned even in full mode.
func SanitizePrompt(prompt string, fullLog bool) string {
	return logger.SanitizeString(prompt, previewLength(fullLog))
}

// SanitizeResponse returns a log-safe preview of a model response
func SanitizeResponse(response string, fullLog bool) string {
	return logger.SanitizeString(response, previewLength(fullLog))
}

func previewLength(fullLog bool) int {
	if fullLog {
		return MaxDebugContentLength
	}
	return MaxPreviewLength
}
