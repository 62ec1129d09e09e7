// Package slack holds the Slack webhook boundary: request signature
// verification, payload decoding, modal views and the Web API client.
package slack

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the Slack Web API root
	DefaultBaseURL = "https://slack.com/api"
	// DefaultTimeout bounds every Web API call
	DefaultTimeout = 10 * time.Second
)

// ChatPlatform is the subset of the Slack Web API the capture flow needs
type ChatPlatform interface {
	FetchMessageText(ctx context.Context, channelID, messageTs string) (string, error)
	GetPermalink(ctx context.Context, channelID, messageTs string) (string, error)
	PostEphemeral(ctx context.Context, channelID, userID, text string) error
	OpenModal(ctx context.Context, triggerID string, view View) error
}

// APIError is returned when Slack answers with ok=false or a non-200 status
type APIError struct {
	Method string
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s: %s", e.Method, e.Code)
}

// Client calls the Slack Web API with a bot token
type Client struct {
	api    *slackapi.Client
	logger *zap.Logger
}

type clientConfig struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// ClientOption configures a Client
type ClientOption func(*clientConfig)

// WithBaseURL overrides the API root, mainly for tests
func WithBaseURL(baseURL string) ClientOption {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *clientConfig) { c.httpClient = httpClient }
}

// WithLogger attaches a logger for debug output
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}

// NewClient creates a Web API client authenticated with token
func NewClient(token string, opts ...ClientOption) *Client {
	cfg := clientConfig{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	// slack-go joins the method name straight onto the API root
	apiURL := strings.TrimRight(cfg.baseURL, "/") + "/"
	return &Client{
		api: slackapi.New(token,
			slackapi.OptionAPIURL(apiURL),
			slackapi.OptionHTTPClient(cfg.httpClient),
		),
		logger: cfg.logger,
	}
}

var _ ChatPlatform = (*Client)(nil)

// FetchMessageText returns the text of the message at messageTs, or "" if
// the history lookup finds nothing.
func (c *Client) FetchMessageText(ctx context.Context, channelID, messageTs string) (string, error) {
	var text string
	err := c.call("conversations.history", func() error {
		resp, err := c.api.GetConversationHistoryContext(ctx, &slackapi.GetConversationHistoryParameters{
			ChannelID: channelID,
			Latest:    messageTs,
			Inclusive: true,
			Limit:     1,
		})
		if err != nil {
			return err
		}
		if len(resp.Messages) > 0 {
			text = resp.Messages[0].Text
		}
		return nil
	})
	return text, err
}

// GetPermalink returns the permalink for a message
func (c *Client) GetPermalink(ctx context.Context, channelID, messageTs string) (string, error) {
	var link string
	err := c.call("chat.getPermalink", func() error {
		var err error
		link, err = c.api.GetPermalinkContext(ctx, &slackapi.PermalinkParameters{
			Channel: channelID,
			Ts:      messageTs,
		})
		return err
	})
	return link, err
}

// PostEphemeral posts text visible only to userID in channelID
func (c *Client) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	return c.call("chat.postEphemeral", func() error {
		_, err := c.api.PostEphemeralContext(ctx, channelID, userID, slackapi.MsgOptionText(text, false))
		return err
	})
}

// OpenModal opens view in response to triggerID
func (c *Client) OpenModal(ctx context.Context, triggerID string, view View) error {
	return c.call("views.open", func() error {
		_, err := c.api.OpenViewContext(ctx, triggerID, view)
		return err
	})
}

// ArchiveURL builds the permalink Slack would return for a message, for use
// when chat.getPermalink is unavailable.
func ArchiveURL(channelID, messageTs string) string {
	return fmt.Sprintf("https://slack.com/archives/%s/p%s", channelID, strings.Replace(messageTs, ".", "", 1))
}

func (c *Client) call(method string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.logger.Debug("slack_api_call",
		zap.String("method", method),
		zap.Bool("ok", err == nil),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	if err != nil {
		return classifyError(method, err)
	}
	return nil
}

// classifyError maps slack-go failures onto APIError codes. Transport
// failures are wrapped as they are.
func classifyError(method string, err error) error {
	var slackErr slackapi.SlackErrorResponse
	if errors.As(err, &slackErr) {
		return &APIError{Method: method, Code: slackErr.Err}
	}
	var limited *slackapi.RateLimitedError
	if errors.As(err, &limited) {
		return &APIError{Method: method, Code: "ratelimited"}
	}
	var status slackapi.StatusCodeError
	if errors.As(err, &status) {
		return &APIError{Method: method, Code: fmt.Sprintf("http_%d", status.Code)}
	}
	return fmt.Errorf("slack %s request failed: %w", method, err)
}
