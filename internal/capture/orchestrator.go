// Package capture runs the reaction and modal capture sequences that turn a
// Slack message into a stored todo record.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/dedup"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/services/ai"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"go.uber.org/zap"
)

// User-facing ephemeral messages
const (
	MessageRegistered        = "✅ Todo registered."
	MessageUpdated           = "✅ Todo updated."
	MessageAlreadyRegistered = "This todo is already registered."
	FallbackNote             = " (summary failed, saved the original text)"
	MessageNotQueued         = "⚠️ Could not save the todo right now. Please try again."
)

// TodoRepository is the record storage the orchestrator reads and writes
type TodoRepository interface {
	Get(ctx context.Context, key string) (*models.Todo, error)
	Put(ctx context.Context, key string, todo *models.Todo) error
}

var _ TodoRepository = (*store.TodoStore)(nil)

// Config carries the capture settings
type Config struct {
	AllowedUserID string
	TriggerEmoji  string
}

// Orchestrator processes capture events end to end
type Orchestrator struct {
	cfg        Config
	todos      TodoRepository
	chat       slack.ChatPlatform
	summarizer ai.Summarizer
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithClock replaces the clock used for created_at and target_date
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator
func New(cfg Config, todos TodoRepository, chat slack.ChatPlatform, summarizer ai.Summarizer, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		cfg:        cfg,
		todos:      todos,
		chat:       chat,
		summarizer: summarizer,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// HandleReaction captures the message a trigger reaction was added to.
// Failures are logged with the record key and never returned.
func (o *Orchestrator) HandleReaction(ctx context.Context, ev slack.ReactionEvent) {
	if ev.Reaction != o.cfg.TriggerEmoji || ev.User != o.cfg.AllowedUserID || ev.Item.Type != slack.ItemTypeMessage {
		return
	}

	key := store.MakeKey(ev.Item.Channel, ev.Item.Ts)
	o.guard(key, "reaction", func() error {
		return o.captureReaction(ctx, key, ev)
	})
}

func (o *Orchestrator) captureReaction(ctx context.Context, key string, ev slack.ReactionEvent) error {
	existing, err := o.todos.Get(ctx, key)
	if err != nil {
		return err
	}
	if dedup.Decide(existing, models.SourceEmoji) == models.DecisionIgnore {
		o.logger.Debug("capture_ignored", zap.String("key", key), zap.String("source", string(models.SourceEmoji)))
		return nil
	}

	channelID, messageTs := ev.Item.Channel, ev.Item.Ts

	text, err := o.chat.FetchMessageText(ctx, channelID, messageTs)
	if err != nil {
		o.logger.Warn("message_text_unavailable", zap.String("key", key), zap.Error(err))
		text = ""
	}
	permalink := o.permalink(ctx, key, channelID, messageTs)

	summary := o.summarizer.Summarize(ctx, text)

	now := o.now()
	todo := &models.Todo{
		TodoText:     summary.Text,
		MessageURL:   permalink,
		Source:       models.SourceEmoji,
		TargetDate:   models.TargetDate(now),
		Status:       models.TodoStatusPending,
		CreatedAt:    now.UTC(),
		PreviousText: nil,
	}
	if err := o.todos.Put(ctx, key, todo); err != nil {
		return err
	}
	o.logger.Info("todo_captured",
		zap.String("key", key),
		zap.String("source", string(todo.Source)),
		zap.Bool("used_fallback", summary.UsedFallback),
	)

	if summary.UsedFallback {
		o.notify(ctx, key, channelID, ev.User, MessageRegistered+FallbackNote)
	}
	return nil
}

// HandleModalSubmission captures a submitted capture modal. Failures are
// logged with the record key and never returned.
func (o *Orchestrator) HandleModalSubmission(ctx context.Context, sub slack.ModalSubmission) {
	key := store.MakeKey(sub.Metadata.ChannelID, sub.Metadata.MessageTs)
	o.guard(key, "modal_submission", func() error {
		return o.captureSubmission(ctx, key, sub)
	})
}

func (o *Orchestrator) captureSubmission(ctx context.Context, key string, sub slack.ModalSubmission) error {
	meta := sub.Metadata

	existing, err := o.todos.Get(ctx, key)
	if err != nil {
		return err
	}
	decision := dedup.Decide(existing, models.SourceShortcut)
	if decision == models.DecisionIgnore {
		o.notify(ctx, key, meta.ChannelID, sub.UserID, MessageAlreadyRegistered)
		return nil
	}

	var (
		todoText     string
		usedFallback bool
	)
	if override := strings.TrimSpace(sub.OverrideText); override != "" {
		todoText = override
	} else {
		summary := o.summarizer.Summarize(ctx, o.submittedText(ctx, key, meta))
		todoText, usedFallback = summary.Text, summary.UsedFallback
	}

	status := models.TodoStatusPending
	if decision == models.DecisionOverwrite {
		status = models.TodoStatusUpdated
	}

	var previous *string
	if existing != nil && existing.TodoText != "" {
		prev := existing.TodoText
		previous = &prev
	}

	now := o.now()
	todo := &models.Todo{
		TodoText:     todoText,
		MessageURL:   meta.Permalink,
		Source:       models.SourceShortcut,
		TargetDate:   models.TargetDate(now),
		Status:       status,
		CreatedAt:    now.UTC(),
		PreviousText: previous,
	}
	if err := o.todos.Put(ctx, key, todo); err != nil {
		return err
	}
	o.logger.Info("todo_captured",
		zap.String("key", key),
		zap.String("source", string(todo.Source)),
		zap.String("decision", string(decision)),
		zap.Bool("used_fallback", usedFallback),
	)

	msg := MessageRegistered
	if decision == models.DecisionOverwrite {
		msg = MessageUpdated
	}
	if usedFallback {
		msg += FallbackNote
	}
	o.notify(ctx, key, meta.ChannelID, sub.UserID, msg)
	return nil
}

// NotifyNotQueued tells the submitter that their modal could not be queued
// for capture. It is best-effort.
func (o *Orchestrator) NotifyNotQueued(ctx context.Context, sub slack.ModalSubmission) {
	key := store.MakeKey(sub.Metadata.ChannelID, sub.Metadata.MessageTs)
	o.notify(ctx, key, sub.Metadata.ChannelID, sub.UserID, MessageNotQueued)
}

// HandleShortcut opens the capture modal for an authorized user and the
// access-denied modal for anyone else. It runs while Slack waits for the
// response, since the trigger id expires within seconds.
func (o *Orchestrator) HandleShortcut(ctx context.Context, inv slack.ShortcutInvocation) error {
	if inv.UserID != o.cfg.AllowedUserID {
		if err := o.chat.OpenModal(ctx, inv.TriggerID, slack.AccessDeniedModal()); err != nil {
			return fmt.Errorf("failed to open access denied modal: %w", err)
		}
		return nil
	}

	key := store.MakeKey(inv.ChannelID, inv.MessageTs)
	text := inv.MessageText
	if text == "" {
		text = slack.EmptyMessagePlaceholder
	}

	view, err := slack.TodoModal(slack.ModalMetadata{
		ChannelID:   inv.ChannelID,
		MessageTs:   inv.MessageTs,
		MessageText: text,
		Permalink:   o.permalink(ctx, key, inv.ChannelID, inv.MessageTs),
	})
	if err != nil {
		return fmt.Errorf("failed to build todo modal: %w", err)
	}
	if err := o.chat.OpenModal(ctx, inv.TriggerID, view); err != nil {
		return fmt.Errorf("failed to open todo modal: %w", err)
	}
	return nil
}

// submittedText returns the message text carried by the modal, refetching it
// when private_metadata only had room for part of it.
func (o *Orchestrator) submittedText(ctx context.Context, key string, meta slack.ModalMetadata) string {
	if !meta.Truncated {
		return meta.MessageText
	}
	full, err := o.chat.FetchMessageText(ctx, meta.ChannelID, meta.MessageTs)
	if err != nil || full == "" {
		o.logger.Warn("message_refetch_failed", zap.String("key", key), zap.Error(err))
		return meta.MessageText
	}
	return full
}

func (o *Orchestrator) permalink(ctx context.Context, key, channelID, messageTs string) string {
	link, err := o.chat.GetPermalink(ctx, channelID, messageTs)
	if err != nil || link == "" {
		o.logger.Warn("permalink_unavailable", zap.String("key", key), zap.Error(err))
		return slack.ArchiveURL(channelID, messageTs)
	}
	return link
}

// notify posts a best-effort ephemeral message
func (o *Orchestrator) notify(ctx context.Context, key, channelID, userID, text string) {
	if err := o.chat.PostEphemeral(ctx, channelID, userID, text); err != nil {
		o.logger.Warn("ephemeral_failed", zap.String("key", key), zap.Error(err))
	}
}

// guard runs fn, logging any error or panic against key
func (o *Orchestrator) guard(key, path string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("capture_panic",
				zap.String("key", key),
				zap.String("path", path),
				zap.Any("panic", r),
			)
		}
	}()

	if err := fn(); err != nil {
		o.logger.Error("capture_failed",
			zap.String("key", key),
			zap.String("path", path),
			zap.Error(err),
		)
	}
}
