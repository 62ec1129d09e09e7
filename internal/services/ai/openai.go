package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout is the default timeout for API calls
	DefaultTimeout = 30 * time.Second
	// maxOutputTokens bounds the length of a generated todo line
	maxOutputTokens = 500

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
	// ErrEmptyResponse is returned when the model answered with blank text
	ErrEmptyResponse = "empty response"
)

// DefaultModels is the model order tried when none is configured
var DefaultModels = []string{"gpt-4o-mini", "gpt-4.1-mini", "gpt-4.1-nano"}

const systemPrompt = "You rewrite chat messages as a single todo line. Respond with the rewritten line only."

const promptTemplate = `Rewrite the following chat message as a todo item. Every action in the original must be kept.

Rules:
- Do not omit or abbreviate anything; include every action as written
- The sentence must be complete and read as a task
- Plain text only: no markdown, links or special characters
- Output exactly one line, with no explanation or prefix

Example:
Input: "Triage the Linear issues, then review the global project issues"
Output: Triage the Linear issues and review the global project issues

Chat message:
%s`

// OpenAISummarizer summarizes with the chat completions API, trying each
// configured model once in order and falling back when all fail.
type OpenAISummarizer struct {
	client    openai.Client
	models    []string
	logger    *zap.Logger
	debugMode bool
}

// NewOpenAISummarizer creates a summarizer. An empty baseURL or models list
// selects the defaults.
func NewOpenAISummarizer(apiKey, baseURL string, models []string, logger *zap.Logger, debugMode bool) *OpenAISummarizer {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if len(models) == 0 {
		models = DefaultModels
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{
		Timeout: DefaultTimeout,
	}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		// each model gets exactly one attempt
		option.WithMaxRetries(0),
	)

	return &OpenAISummarizer{
		client:    client,
		models:    append([]string(nil), models...),
		logger:    logger,
		debugMode: debugMode,
	}
}

var _ Summarizer = (*OpenAISummarizer)(nil)

// Models returns the model order in use
func (s *OpenAISummarizer) Models() []string {
	return append([]string(nil), s.models...)
}

// Summarize implements Summarizer
func (s *OpenAISummarizer) Summarize(ctx context.Context, text string) Summary {
	if strings.TrimSpace(text) == "" {
		return Fallback(text)
	}

	for _, model := range s.models {
		summary, err := s.complete(ctx, model, text)
		if err != nil {
			kind := Classify(err)
			fields := []zap.Field{
				zap.String("model", model),
				zap.String("failure", string(kind)),
				zap.Error(err),
			}
			var modelErr *ModelError
			if errors.As(err, &modelErr) {
				fields = append(fields,
					zap.Int("status_code", modelErr.StatusCode),
					zap.String("error_code", modelErr.Code),
				)
			}
			s.logger.Warn("summarizer_model_failed", fields...)
			if ctx.Err() != nil || !tryNextModel(kind) {
				break
			}
			continue
		}
		return Summary{Text: summary}
	}

	s.logger.Error("summarizer_all_models_failed", zap.Int("model_count", len(s.models)))
	return Fallback(text)
}

func (s *OpenAISummarizer) complete(ctx context.Context, model, text string) (string, error) {
	prompt := fmt.Sprintf(promptTemplate, text)
	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(maxOutputTokens),
	}

	if s.debugMode {
		s.logger.Debug("llm_api_request",
			zap.String("operation", "summarize"),
			zap.String("model", model),
			zap.Int("prompt_length", len(prompt)),
			zap.String("prompt_preview", SanitizePrompt(prompt, true)),
		)
	}

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		if modelErr := newModelError(model, err); modelErr != nil {
			return "", fmt.Errorf("failed to summarize: %w", modelErr)
		}
		return "", fmt.Errorf("failed to summarize with %s: %w", model, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if s.debugMode {
		s.logger.Debug("llm_api_response",
			zap.String("operation", "summarize"),
			zap.String("model", model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	summary := NormalizeSummary(content)
	if summary == "" {
		return "", errors.New(ErrEmptyResponse)
	}
	return summary, nil
}
