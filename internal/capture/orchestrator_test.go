package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/models"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/services/ai"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	owner   = "U_OWNER"
	emoji   = "memo"
	channel = "C123"
	ts      = "1700000000.000100"
)

var fixedNow = time.Date(2026, 2, 26, 15, 30, 0, 0, time.UTC)

type ephemeral struct {
	Channel, User, Text string
}

type mockChat struct {
	mu sync.Mutex

	fetchMessageTextFunc func(ctx context.Context, channelID, messageTs string) (string, error)
	getPermalinkFunc     func(ctx context.Context, channelID, messageTs string) (string, error)
	postEphemeralFunc    func(ctx context.Context, channelID, userID, text string) error
	openModalFunc        func(ctx context.Context, triggerID string, view slack.View) error

	ephemerals []ephemeral
	modals     []slack.View
	fetches    int
}

var _ slack.ChatPlatform = (*mockChat)(nil)

func (m *mockChat) FetchMessageText(ctx context.Context, channelID, messageTs string) (string, error) {
	m.mu.Lock()
	m.fetches++
	m.mu.Unlock()
	if m.fetchMessageTextFunc != nil {
		return m.fetchMessageTextFunc(ctx, channelID, messageTs)
	}
	return "please review the quarterly report", nil
}

func (m *mockChat) GetPermalink(ctx context.Context, channelID, messageTs string) (string, error) {
	if m.getPermalinkFunc != nil {
		return m.getPermalinkFunc(ctx, channelID, messageTs)
	}
	return "https://team.slack.com/archives/" + channelID + "/p" + strings.Replace(messageTs, ".", "", 1), nil
}

func (m *mockChat) PostEphemeral(ctx context.Context, channelID, userID, text string) error {
	m.mu.Lock()
	m.ephemerals = append(m.ephemerals, ephemeral{Channel: channelID, User: userID, Text: text})
	m.mu.Unlock()
	if m.postEphemeralFunc != nil {
		return m.postEphemeralFunc(ctx, channelID, userID, text)
	}
	return nil
}

func (m *mockChat) OpenModal(ctx context.Context, triggerID string, view slack.View) error {
	m.mu.Lock()
	m.modals = append(m.modals, view)
	m.mu.Unlock()
	if m.openModalFunc != nil {
		return m.openModalFunc(ctx, triggerID, view)
	}
	return nil
}

type mockSummarizer struct {
	summarizeFunc func(ctx context.Context, text string) ai.Summary
	calls         []string
}

var _ ai.Summarizer = (*mockSummarizer)(nil)

func (m *mockSummarizer) Summarize(ctx context.Context, text string) ai.Summary {
	m.calls = append(m.calls, text)
	if m.summarizeFunc != nil {
		return m.summarizeFunc(ctx, text)
	}
	return ai.Summary{Text: "Review the quarterly report"}
}

type mockRepo struct {
	getFunc func(ctx context.Context, key string) (*models.Todo, error)
	putFunc func(ctx context.Context, key string, todo *models.Todo) error
}

var _ TodoRepository = (*mockRepo)(nil)

func (m *mockRepo) Get(ctx context.Context, key string) (*models.Todo, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return nil, nil
}

func (m *mockRepo) Put(ctx context.Context, key string, todo *models.Todo) error {
	if m.putFunc != nil {
		return m.putFunc(ctx, key, todo)
	}
	return nil
}

type fixture struct {
	orch       *Orchestrator
	todos      *store.TodoStore
	chat       *mockChat
	summarizer *mockSummarizer
	logs       *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{
		todos:      store.NewTodoStore(store.NewMemoryKV()),
		chat:       &mockChat{},
		summarizer: &mockSummarizer{},
		logs:       logs,
	}
	f.orch = New(
		Config{AllowedUserID: owner, TriggerEmoji: emoji},
		f.todos, f.chat, f.summarizer, zap.New(core),
		WithClock(func() time.Time { return fixedNow }),
	)
	return f
}

func (f *fixture) seed(t *testing.T, todo *models.Todo) {
	t.Helper()
	if err := f.todos.Put(context.Background(), store.MakeKey(channel, ts), todo); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) stored(t *testing.T) *models.Todo {
	t.Helper()
	todo, err := f.todos.Get(context.Background(), store.MakeKey(channel, ts))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return todo
}

func reaction(user, name, itemType string) slack.ReactionEvent {
	return slack.ReactionEvent{
		Type:     slack.EventReactionAdded,
		User:     user,
		Reaction: name,
		Item:     slack.ReactionItem{Type: itemType, Channel: channel, Ts: ts},
	}
}

func submission(override string) slack.ModalSubmission {
	return slack.ModalSubmission{
		UserID: owner,
		Metadata: slack.ModalMetadata{
			ChannelID:   channel,
			MessageTs:   ts,
			MessageText: "please review the quarterly report",
			Permalink:   "https://team.slack.com/archives/C123/p1700000000000100",
		},
		OverrideText: override,
	}
}

func strPtr(s string) *string { return &s }

func TestHandleReaction_Creates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orch.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	got := f.stored(t)
	if got == nil {
		t.Fatal("expected a stored record")
	}
	want := models.Todo{
		TodoText:   "Review the quarterly report",
		MessageURL: "https://team.slack.com/archives/C123/p1700000000000100",
		Source:     models.SourceEmoji,
		TargetDate: "2026-02-27",
		Status:     models.TodoStatusPending,
		CreatedAt:  fixedNow,
	}
	if got.TodoText != want.TodoText || got.MessageURL != want.MessageURL || got.Source != want.Source ||
		got.TargetDate != want.TargetDate || got.Status != want.Status || !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("stored = %+v, want %+v", got, want)
	}
	if got.PreviousText != nil {
		t.Errorf("PreviousText = %q, want nil", *got.PreviousText)
	}
	if len(f.chat.ephemerals) != 0 {
		t.Errorf("unexpected ephemerals: %+v", f.chat.ephemerals)
	}
}

func TestHandleReaction_Filters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ev   slack.ReactionEvent
	}{
		{name: "other emoji", ev: reaction(owner, "eyes", slack.ItemTypeMessage)},
		{name: "other user", ev: reaction("U_OTHER", emoji, slack.ItemTypeMessage)},
		{name: "file item", ev: reaction(owner, emoji, "file")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			f.orch.HandleReaction(context.Background(), tt.ev)

			if f.stored(t) != nil {
				t.Error("expected no record")
			}
			if f.chat.fetches != 0 || len(f.summarizer.calls) != 0 || len(f.chat.ephemerals) != 0 {
				t.Error("expected no collaborator calls")
			}
		})
	}
}

func TestHandleReaction_IgnoresExisting(t *testing.T) {
	t.Parallel()

	for _, source := range []models.Source{models.SourceEmoji, models.SourceShortcut} {
		t.Run(string(source), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			seeded := &models.Todo{TodoText: "kept", Source: source, Status: models.TodoStatusWritten, CreatedAt: fixedNow}
			f.seed(t, seeded)

			f.orch.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

			got := f.stored(t)
			if got == nil || got.TodoText != "kept" || got.Status != models.TodoStatusWritten {
				t.Errorf("record changed: %+v", got)
			}
			if f.chat.fetches != 0 || len(f.summarizer.calls) != 0 {
				t.Error("expected no collaborator calls")
			}
		})
	}
}

func TestHandleReaction_FallbackNotifies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.summarizer.summarizeFunc = func(_ context.Context, text string) ai.Summary { return ai.Fallback(text) }

	f.orch.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	got := f.stored(t)
	if got == nil || got.TodoText != "please review the quarterly report" {
		t.Fatalf("stored = %+v", got)
	}
	if len(f.chat.ephemerals) != 1 {
		t.Fatalf("ephemerals = %+v, want one", f.chat.ephemerals)
	}
	e := f.chat.ephemerals[0]
	if e.Channel != channel || e.User != owner || e.Text != MessageRegistered+FallbackNote {
		t.Errorf("ephemeral = %+v", e)
	}
}

func TestHandleReaction_EphemeralFailureKeepsRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.summarizer.summarizeFunc = func(_ context.Context, text string) ai.Summary { return ai.Fallback(text) }
	f.chat.postEphemeralFunc = func(context.Context, string, string, string) error { return errors.New("channel_not_found") }

	f.orch.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	if f.stored(t) == nil {
		t.Fatal("expected record despite ephemeral failure")
	}
	if f.logs.FilterMessage("ephemeral_failed").Len() != 1 {
		t.Error("expected ephemeral_failed log")
	}
	if f.logs.FilterMessage("capture_failed").Len() != 0 {
		t.Error("ephemeral failure must not fail the capture")
	}
}

func TestHandleReaction_CollaboratorDefaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.chat.fetchMessageTextFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("not_in_channel")
	}
	f.chat.getPermalinkFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("ratelimited")
	}

	f.orch.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	if len(f.summarizer.calls) != 1 || f.summarizer.calls[0] != "" {
		t.Errorf("summarizer calls = %q, want one empty text", f.summarizer.calls)
	}
	got := f.stored(t)
	if got == nil {
		t.Fatal("expected a stored record")
	}
	if got.MessageURL != "https://slack.com/archives/C123/p1700000000000100" {
		t.Errorf("MessageURL = %q, want archive fallback", got.MessageURL)
	}
}

func TestHandleReaction_StoreFailureIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	repo := &mockRepo{
		putFunc: func(context.Context, string, *models.Todo) error { return errors.New("kv write failed") },
	}
	o := New(Config{AllowedUserID: owner, TriggerEmoji: emoji}, repo, &mockChat{}, &mockSummarizer{}, zap.New(core))

	o.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	entries := logs.FilterMessage("capture_failed").All()
	if len(entries) != 1 {
		t.Fatalf("capture_failed logs = %d, want 1", len(entries))
	}
	if key := entries[0].ContextMap()["key"]; key != store.MakeKey(channel, ts) {
		t.Errorf("logged key = %v", key)
	}
}

func TestHandleReaction_PanicIsRecovered(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	repo := &mockRepo{
		getFunc: func(context.Context, string) (*models.Todo, error) { panic("boom") },
	}
	o := New(Config{AllowedUserID: owner, TriggerEmoji: emoji}, repo, &mockChat{}, &mockSummarizer{}, zap.New(core))

	o.HandleReaction(context.Background(), reaction(owner, emoji, slack.ItemTypeMessage))

	if logs.FilterMessage("capture_panic").Len() != 1 {
		t.Error("expected capture_panic log")
	}
}

func TestHandleModalSubmission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		existing      *models.Todo
		override      string
		summary       ai.Summary
		wantText      string
		wantStatus    models.TodoStatus
		wantPrevious  *string
		wantEphemeral string
		wantSummarize bool
	}{
		{
			name:          "fresh capture with summary",
			wantText:      "Review the quarterly report",
			wantStatus:    models.TodoStatusPending,
			wantEphemeral: MessageRegistered,
			wantSummarize: true,
		},
		{
			name:          "override text is trimmed and used",
			override:      "  Send the report to finance \n",
			wantText:      "Send the report to finance",
			wantStatus:    models.TodoStatusPending,
			wantEphemeral: MessageRegistered,
		},
		{
			name:          "blank override falls back to summary",
			override:      "   ",
			wantText:      "Review the quarterly report",
			wantStatus:    models.TodoStatusPending,
			wantEphemeral: MessageRegistered,
			wantSummarize: true,
		},
		{
			name:          "overwrites emoji capture",
			existing:      &models.Todo{TodoText: "Original summary", Source: models.SourceEmoji, Status: models.TodoStatusPending},
			override:      "Corrected todo",
			wantText:      "Corrected todo",
			wantStatus:    models.TodoStatusUpdated,
			wantPrevious:  strPtr("Original summary"),
			wantEphemeral: MessageUpdated,
		},
		{
			name:          "overwrites written emoji capture",
			existing:      &models.Todo{TodoText: "Filed already", Source: models.SourceEmoji, Status: models.TodoStatusWritten},
			wantText:      "Review the quarterly report",
			wantStatus:    models.TodoStatusUpdated,
			wantPrevious:  strPtr("Filed already"),
			wantEphemeral: MessageUpdated,
			wantSummarize: true,
		},
		{
			name:          "degraded summary adds note",
			summary:       ai.Summary{Text: "please review the quarterly report", UsedFallback: true},
			wantText:      "please review the quarterly report",
			wantStatus:    models.TodoStatusPending,
			wantEphemeral: MessageRegistered + FallbackNote,
			wantSummarize: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.summary.Text != "" {
				f.summarizer.summarizeFunc = func(context.Context, string) ai.Summary { return tt.summary }
			}
			if tt.existing != nil {
				f.seed(t, tt.existing)
			}

			f.orch.HandleModalSubmission(context.Background(), submission(tt.override))

			got := f.stored(t)
			if got == nil {
				t.Fatal("expected a stored record")
			}
			if got.TodoText != tt.wantText {
				t.Errorf("TodoText = %q, want %q", got.TodoText, tt.wantText)
			}
			if got.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, tt.wantStatus)
			}
			if got.Source != models.SourceShortcut {
				t.Errorf("Source = %q, want shortcut", got.Source)
			}
			if got.MessageURL != "https://team.slack.com/archives/C123/p1700000000000100" {
				t.Errorf("MessageURL = %q", got.MessageURL)
			}
			switch {
			case tt.wantPrevious == nil && got.PreviousText != nil:
				t.Errorf("PreviousText = %q, want nil", *got.PreviousText)
			case tt.wantPrevious != nil && (got.PreviousText == nil || *got.PreviousText != *tt.wantPrevious):
				t.Errorf("PreviousText = %v, want %q", got.PreviousText, *tt.wantPrevious)
			}
			if summarized := len(f.summarizer.calls) > 0; summarized != tt.wantSummarize {
				t.Errorf("summarized = %v, want %v", summarized, tt.wantSummarize)
			}
			if len(f.chat.ephemerals) != 1 || f.chat.ephemerals[0].Text != tt.wantEphemeral {
				t.Errorf("ephemerals = %+v, want %q", f.chat.ephemerals, tt.wantEphemeral)
			}
		})
	}
}

func TestHandleModalSubmission_IgnoresShortcutRecord(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seed(t, &models.Todo{TodoText: "Mine", Source: models.SourceShortcut, Status: models.TodoStatusUpdated})

	f.orch.HandleModalSubmission(context.Background(), submission("another try"))

	got := f.stored(t)
	if got.TodoText != "Mine" || got.Status != models.TodoStatusUpdated {
		t.Errorf("record changed: %+v", got)
	}
	if len(f.chat.ephemerals) != 1 || f.chat.ephemerals[0].Text != MessageAlreadyRegistered {
		t.Errorf("ephemerals = %+v", f.chat.ephemerals)
	}
}

// Emoji capture, then a shortcut correction, then a second emoji that must
// not clobber it.
func TestCaptureSequence_EmojiThenShortcutThenEmoji(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.orch.HandleReaction(ctx, reaction(owner, emoji, slack.ItemTypeMessage))
	first := f.stored(t)
	if first == nil || first.Source != models.SourceEmoji {
		t.Fatalf("after emoji: %+v", first)
	}

	f.orch.HandleModalSubmission(ctx, submission("Corrected"))
	second := f.stored(t)
	if second.Status != models.TodoStatusUpdated || second.PreviousText == nil || *second.PreviousText != first.TodoText {
		t.Fatalf("after shortcut: %+v", second)
	}

	f.orch.HandleReaction(ctx, reaction(owner, emoji, slack.ItemTypeMessage))
	third := f.stored(t)
	if third.TodoText != "Corrected" || third.Source != models.SourceShortcut {
		t.Errorf("second emoji overwrote the correction: %+v", third)
	}
}

func TestHandleShortcut(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		inv          slack.ShortcutInvocation
		permalinkErr error
		wantTitle    string
		wantMeta     *slack.ModalMetadata
	}{
		{
			name:      "unauthorized user sees denial",
			inv:       slack.ShortcutInvocation{TriggerID: "T1", UserID: "U_OTHER", ChannelID: channel, MessageTs: ts, MessageText: "hi"},
			wantTitle: "Access denied",
		},
		{
			name:      "owner gets capture modal",
			inv:       slack.ShortcutInvocation{TriggerID: "T1", UserID: owner, ChannelID: channel, MessageTs: ts, MessageText: "hi"},
			wantTitle: "Add to Todo",
			wantMeta: &slack.ModalMetadata{
				ChannelID: channel, MessageTs: ts, MessageText: "hi",
				Permalink: "https://team.slack.com/archives/C123/p1700000000000100",
			},
		},
		{
			name:         "empty message and permalink failure",
			inv:          slack.ShortcutInvocation{TriggerID: "T1", UserID: owner, ChannelID: channel, MessageTs: ts},
			permalinkErr: errors.New("boom"),
			wantTitle:    "Add to Todo",
			wantMeta: &slack.ModalMetadata{
				ChannelID: channel, MessageTs: ts, MessageText: slack.EmptyMessagePlaceholder,
				Permalink: "https://slack.com/archives/C123/p1700000000000100",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.permalinkErr != nil {
				f.chat.getPermalinkFunc = func(context.Context, string, string) (string, error) { return "", tt.permalinkErr }
			}

			if err := f.orch.HandleShortcut(context.Background(), tt.inv); err != nil {
				t.Fatalf("HandleShortcut() error = %v", err)
			}
			if len(f.chat.modals) != 1 {
				t.Fatalf("modals opened = %d, want 1", len(f.chat.modals))
			}
			view := f.chat.modals[0]
			if view.Title == nil || view.Title.Text != tt.wantTitle {
				t.Errorf("title = %+v, want %q", view.Title, tt.wantTitle)
			}
			if tt.wantMeta != nil {
				var meta slack.ModalMetadata
				if err := json.Unmarshal([]byte(view.PrivateMetadata), &meta); err != nil {
					t.Fatalf("private_metadata: %v", err)
				}
				if meta != *tt.wantMeta {
					t.Errorf("metadata = %+v, want %+v", meta, *tt.wantMeta)
				}
			}
			if f.stored(t) != nil {
				t.Error("shortcut must not write the store")
			}
		})
	}
}

func TestHandleShortcut_OpenModalError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.chat.openModalFunc = func(context.Context, string, slack.View) error { return errors.New("expired_trigger_id") }

	if err := f.orch.HandleShortcut(context.Background(), slack.ShortcutInvocation{UserID: owner, ChannelID: channel, MessageTs: ts}); err == nil {
		t.Error("expected error")
	}
}

func TestHandleModalSubmission_TruncatedTextIsRefetched(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		fetchErr  error
		wantInput string
	}{
		{"refetched", nil, "please review the quarterly report"},
		{"refetch fails", errors.New("channel_not_found"), "please review"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			if tt.fetchErr != nil {
				f.chat.fetchMessageTextFunc = func(context.Context, string, string) (string, error) { return "", tt.fetchErr }
			}
			sub := submission("")
			sub.Metadata.MessageText = "please review"
			sub.Metadata.Truncated = true

			f.orch.HandleModalSubmission(context.Background(), sub)

			if f.chat.fetches != 1 {
				t.Errorf("fetches = %d, want 1", f.chat.fetches)
			}
			if len(f.summarizer.calls) != 1 || f.summarizer.calls[0] != tt.wantInput {
				t.Errorf("summarizer calls = %q, want [%q]", f.summarizer.calls, tt.wantInput)
			}
			if f.stored(t) == nil {
				t.Error("expected a stored record")
			}
		})
	}
}

func TestNotifyNotQueued(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.orch.NotifyNotQueued(context.Background(), submission(""))

	want := ephemeral{Channel: channel, User: owner, Text: MessageNotQueued}
	if len(f.chat.ephemerals) != 1 || f.chat.ephemerals[0] != want {
		t.Errorf("ephemerals = %+v, want [%+v]", f.chat.ephemerals, want)
	}
	if f.stored(t) != nil {
		t.Error("notice must not write the store")
	}
}
