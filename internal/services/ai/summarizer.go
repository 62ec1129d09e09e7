// Package ai turns captured chat messages into single-line todo texts.
package ai

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// FallbackLength is the number of runes kept when summarization fails
	FallbackLength = 80
	// EmptyTextPlaceholder stands in for a message with no text
	EmptyTextPlaceholder = "(no content)"
)

// Summary is the result of summarizing a message. UsedFallback is set when
// no model produced a result and Text is the truncated original.
type Summary struct {
	Text         string
	UsedFallback bool
}

// Summarizer produces a todo line for a message. It never fails: when the
// backing service is unavailable it degrades to Fallback.
type Summarizer interface {
	Summarize(ctx context.Context, text string) Summary
}

// Fallback returns the first FallbackLength runes of text, with "..." when
// anything was cut.
func Fallback(text string) Summary {
	if strings.TrimSpace(text) == "" {
		return Summary{Text: EmptyTextPlaceholder, UsedFallback: true}
	}
	if utf8.RuneCountInString(text) <= FallbackLength {
		return Summary{Text: text, UsedFallback: true}
	}
	runes := []rune(text)
	return Summary{Text: string(runes[:FallbackLength]) + "...", UsedFallback: true}
}

// FallbackSummarizer always degrades. It is used when no model is configured.
type FallbackSummarizer struct{}

var _ Summarizer = FallbackSummarizer{}

// Summarize implements Summarizer
func (FallbackSummarizer) Summarize(_ context.Context, text string) Summary {
	return Fallback(text)
}

var (
	listPrefix = regexp.MustCompile(`^[-*]\s*(\[.\]\s*)?`)
	whitespace = regexp.MustCompile(`\s+`)
)

// NormalizeSummary strips a leading markdown list or checkbox marker and
// collapses whitespace so the result fits on one line.
func NormalizeSummary(s string) string {
	s = strings.TrimSpace(s)
	s = listPrefix.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
