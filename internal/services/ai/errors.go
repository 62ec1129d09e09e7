package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// FailureKind groups summarizer failures for logging and for deciding
// whether the next model is worth a try
type FailureKind string

const (
	FailureRateLimited FailureKind = "rate_limited"
	FailureQuota       FailureKind = "quota_exceeded"
	FailureAuth        FailureKind = "unauthorized"
	FailureTimeout     FailureKind = "timeout"
	FailureUnavailable FailureKind = "unavailable"
	FailureOther       FailureKind = "other"
)

// ModelError is a failed completion for one model
type ModelError struct {
	Model      string
	StatusCode int
	Code       string
	Message    string
}

func (e *ModelError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("model %s: %s", e.Model, e.Message)
	}
	return fmt.Sprintf("model %s (status %d, code %s): %s", e.Model, e.StatusCode, e.Code, e.Message)
}

// newModelError converts an SDK error for model, or returns nil when err did
// not come from the API
func newModelError(model string, err error) *ModelError {
	var sdkErr *openai.Error
	if !errors.As(err, &sdkErr) {
		return nil
	}

	modelErr := &ModelError{
		Model:      model,
		StatusCode: sdkErr.StatusCode,
		Code:       sdkErr.Code,
		Message:    sdkErr.Message,
	}
	if modelErr.Message == "" {
		modelErr.Message = http.StatusText(sdkErr.StatusCode)
	}
	return modelErr
}

// Classify reports the kind of a summarizer failure
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	var modelErr *ModelError
	if errors.As(err, &modelErr) {
		switch {
		case modelErr.Code == "insufficient_quota":
			return FailureQuota
		case modelErr.StatusCode == http.StatusTooManyRequests:
			return FailureRateLimited
		case modelErr.StatusCode == http.StatusUnauthorized || modelErr.StatusCode == http.StatusForbidden:
			return FailureAuth
		case modelErr.StatusCode >= http.StatusInternalServerError:
			return FailureUnavailable
		}
		return FailureOther
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient_quota") || strings.Contains(msg, "billing"):
		return FailureQuota
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests"):
		return FailureRateLimited
	}
	return FailureOther
}

// tryNextModel reports whether another model could succeed after kind.
// Auth and quota failures apply to the API key, not the model.
func tryNextModel(kind FailureKind) bool {
	return kind != FailureAuth && kind != FailureQuota
}
