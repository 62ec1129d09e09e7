package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/queue"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/workers"
	"go.uber.org/zap"
)

const testSecret = "test-signing-secret"

type mockScheduler struct {
	mu   sync.Mutex
	jobs []*queue.Job
	err  error
}

var _ workers.Scheduler = (*mockScheduler)(nil)

func (m *mockScheduler) Schedule(_ context.Context, job *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.jobs = append(m.jobs, job)
	return nil
}

type mockShortcuts struct {
	HandleShortcutFunc func(ctx context.Context, inv slack.ShortcutInvocation) error
	calls              []slack.ShortcutInvocation
}

var _ ShortcutOpener = (*mockShortcuts)(nil)

func (m *mockShortcuts) HandleShortcut(ctx context.Context, inv slack.ShortcutInvocation) error {
	m.calls = append(m.calls, inv)
	if m.HandleShortcutFunc != nil {
		return m.HandleShortcutFunc(ctx, inv)
	}
	return nil
}

type mockNotifier struct {
	mu    sync.Mutex
	calls []slack.ModalSubmission
}

var _ SubmissionNotifier = (*mockNotifier)(nil)

func (m *mockNotifier) NotifyNotQueued(_ context.Context, sub slack.ModalSubmission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sub)
}

func newSlackRequest(t *testing.T, contentType, body string, signed bool, ts time.Time) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	if signed {
		timestamp := strconv.FormatInt(ts.Unix(), 10)
		req.Header.Set(slack.HeaderTimestamp, timestamp)
		req.Header.Set(slack.HeaderSignature, slack.Sign(timestamp, []byte(body), testSecret))
	}
	return req
}

func formBody(t *testing.T, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return url.Values{"payload": {string(raw)}}.Encode()
}

const reactionBody = `{"type":"event_callback","event":{"type":"reaction_added","user":"U1","reaction":"memo","item":{"type":"message","channel":"C1","ts":"1700000000.000100"}}}`

func TestSlackHandler_Events(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name        string
		contentType string
		body        string
		signed      bool
		ts          time.Time
		wantStatus  int
		wantBody    string
		wantJobs    []queue.JobType
	}{
		{
			name:        "url verification is answered unsigned",
			contentType: "application/json",
			body:        `{"type":"url_verification","challenge":"abc"}`,
			wantStatus:  http.StatusOK,
			wantBody:    `{"challenge":"abc"}` + "\n",
		},
		{
			name:        "unsigned event callback",
			contentType: "application/json",
			body:        reactionBody,
			wantStatus:  http.StatusUnauthorized,
			wantBody:    "Invalid signature",
		},
		{
			name:        "stale signature",
			contentType: "application/json",
			body:        reactionBody,
			signed:      true,
			ts:          now.Add(-10 * time.Minute),
			wantStatus:  http.StatusUnauthorized,
			wantBody:    "Invalid signature",
		},
		{
			name:        "reaction is scheduled",
			contentType: "application/json; charset=utf-8",
			body:        reactionBody,
			signed:      true,
			ts:          now,
			wantStatus:  http.StatusOK,
			wantBody:    "ok",
			wantJobs:    []queue.JobType{queue.JobTypeCaptureReaction},
		},
		{
			name:        "other event is acknowledged",
			contentType: "application/json",
			body:        `{"type":"event_callback","event":{"type":"message"}}`,
			signed:      true,
			ts:          now,
			wantStatus:  http.StatusOK,
			wantBody:    "ok",
		},
		{
			name:        "unknown event type is acknowledged",
			contentType: "application/json",
			body:        `{"type":"event_callback","event":{"type":"not_a_real_event"}}`,
			signed:      true,
			ts:          now,
			wantStatus:  http.StatusOK,
			wantBody:    "ok",
		},
		{
			name:        "invalid json",
			contentType: "application/json",
			body:        `{`,
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "form without payload",
			contentType: "application/x-www-form-urlencoded",
			body:        "foo=bar",
			signed:      true,
			ts:          now,
			wantStatus:  http.StatusOK,
			wantBody:    "ok",
		},
		{
			name:        "unsigned form",
			contentType: "application/x-www-form-urlencoded",
			body:        "foo=bar",
			wantStatus:  http.StatusUnauthorized,
			wantBody:    "Invalid signature",
		},
		{
			name:        "unknown interaction",
			contentType: "application/x-www-form-urlencoded",
			body:        url.Values{"payload": {`{"type":"block_actions"}`}}.Encode(),
			signed:      true,
			ts:          now,
			wantStatus:  http.StatusOK,
			wantBody:    "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sched := &mockScheduler{}
			h := NewSlackHandler(testSecret, &mockShortcuts{}, &mockNotifier{}, sched, zap.NewNop())
			w := httptest.NewRecorder()
			h.Events(w, newSlackRequest(t, tt.contentType, tt.body, tt.signed, tt.ts))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if len(sched.jobs) != len(tt.wantJobs) {
				t.Fatalf("scheduled %d jobs, want %d", len(sched.jobs), len(tt.wantJobs))
			}
			for i, job := range sched.jobs {
				if job.Type != tt.wantJobs[i] {
					t.Errorf("job %d type = %s, want %s", i, job.Type, tt.wantJobs[i])
				}
			}
		})
	}
}

func TestSlackHandler_ReactionPayload(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{}
	h := NewSlackHandler(testSecret, &mockShortcuts{}, &mockNotifier{}, sched, zap.NewNop())
	w := httptest.NewRecorder()
	h.Events(w, newSlackRequest(t, "application/json", reactionBody, true, time.Now()))

	if len(sched.jobs) != 1 {
		t.Fatalf("scheduled %d jobs, want 1", len(sched.jobs))
	}
	var ev slack.ReactionEvent
	if err := sched.jobs[0].DecodePayload(&ev); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if ev.User != "U1" || ev.Reaction != "memo" || ev.Item.Channel != "C1" || ev.Item.Ts != "1700000000.000100" {
		t.Errorf("unexpected reaction payload: %+v", ev)
	}
}

func TestSlackHandler_ScheduleFailure(t *testing.T) {
	t.Parallel()

	sched := &mockScheduler{err: workers.ErrSchedulerClosed}
	h := NewSlackHandler(testSecret, &mockShortcuts{}, &mockNotifier{}, sched, zap.NewNop())
	w := httptest.NewRecorder()
	h.Events(w, newSlackRequest(t, "application/json", reactionBody, true, time.Now()))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 so Slack retries", w.Code)
	}
}

func TestSlackHandler_Shortcut(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"type":       "message_action",
		"trigger_id": "T123",
		"user":       map[string]string{"id": "U1"},
		"channel":    map[string]string{"id": "C1"},
		"message":    map[string]string{"ts": "1700000000.000100", "text": "ship it"},
	}

	tests := []struct {
		name string
		err  error
	}{
		{"modal opened", nil},
		{"open failure still acks", errors.New("views.open failed")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			shortcuts := &mockShortcuts{
				HandleShortcutFunc: func(context.Context, slack.ShortcutInvocation) error { return tt.err },
			}
			sched := &mockScheduler{}
			h := NewSlackHandler(testSecret, shortcuts, &mockNotifier{}, sched, zap.NewNop())
			w := httptest.NewRecorder()
			h.Events(w, newSlackRequest(t, "application/x-www-form-urlencoded", formBody(t, payload), true, time.Now()))

			if w.Code != http.StatusOK || w.Body.Len() != 0 {
				t.Errorf("got %d %q, want empty 200", w.Code, w.Body.String())
			}
			if len(shortcuts.calls) != 1 {
				t.Fatalf("HandleShortcut called %d times, want 1", len(shortcuts.calls))
			}
			want := slack.ShortcutInvocation{
				TriggerID:   "T123",
				UserID:      "U1",
				ChannelID:   "C1",
				MessageTs:   "1700000000.000100",
				MessageText: "ship it",
			}
			if shortcuts.calls[0] != want {
				t.Errorf("invocation = %+v, want %+v", shortcuts.calls[0], want)
			}
			if len(sched.jobs) != 0 {
				t.Error("shortcut must not schedule a capture")
			}
		})
	}
}

func TestSlackHandler_ViewSubmission(t *testing.T) {
	t.Parallel()

	meta, err := json.Marshal(slack.ModalMetadata{
		ChannelID:   "C1",
		MessageTs:   "1700000000.000100",
		MessageText: "ship it",
		Permalink:   "https://example.slack.com/archives/C1/p1700000000000100",
	})
	if err != nil {
		t.Fatal(err)
	}
	submission := func(callbackID, privateMetadata string) map[string]any {
		return map[string]any{
			"type": "view_submission",
			"user": map[string]string{"id": "U1"},
			"view": map[string]any{
				"callback_id":      callbackID,
				"private_metadata": privateMetadata,
				"state": map[string]any{
					"values": map[string]any{
						slack.TodoInputBlockID: map[string]any{
							slack.TodoInputActionID: map[string]any{"value": "Ship the release"},
						},
					},
				},
			},
		}
	}

	tests := []struct {
		name     string
		payload  map[string]any
		wantJobs int
	}{
		{"capture modal", submission(slack.TodoModalCallbackID, string(meta)), 1},
		{"foreign modal", submission("other_modal", string(meta)), 0},
		{"broken metadata", submission(slack.TodoModalCallbackID, "{"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sched := &mockScheduler{}
			h := NewSlackHandler(testSecret, &mockShortcuts{}, &mockNotifier{}, sched, zap.NewNop())
			w := httptest.NewRecorder()
			h.Events(w, newSlackRequest(t, "application/x-www-form-urlencoded", formBody(t, tt.payload), true, time.Now()))

			if w.Code != http.StatusOK || w.Body.Len() != 0 {
				t.Errorf("got %d %q, want empty 200", w.Code, w.Body.String())
			}
			if len(sched.jobs) != tt.wantJobs {
				t.Fatalf("scheduled %d jobs, want %d", len(sched.jobs), tt.wantJobs)
			}
			if tt.wantJobs == 0 {
				return
			}
			var sub slack.ModalSubmission
			if err := sched.jobs[0].DecodePayload(&sub); err != nil {
				t.Fatalf("DecodePayload() error = %v", err)
			}
			if sub.OverrideText != "Ship the release" || sub.Metadata.ChannelID != "C1" || sub.UserID != "U1" {
				t.Errorf("unexpected submission: %+v", sub)
			}
		})
	}
}

func TestSlackHandler_ViewSubmissionScheduleFailure(t *testing.T) {
	t.Parallel()

	meta, err := json.Marshal(slack.ModalMetadata{ChannelID: "C1", MessageTs: "1700000000.000100", MessageText: "ship it"})
	if err != nil {
		t.Fatal(err)
	}
	payload := map[string]any{
		"type": "view_submission",
		"user": map[string]string{"id": "U1"},
		"view": map[string]any{
			"callback_id":      slack.TodoModalCallbackID,
			"private_metadata": string(meta),
		},
	}

	notifier := &mockNotifier{}
	sched := &mockScheduler{err: workers.ErrSchedulerClosed}
	h := NewSlackHandler(testSecret, &mockShortcuts{}, notifier, sched, zap.NewNop())
	w := httptest.NewRecorder()
	h.Events(w, newSlackRequest(t, "application/x-www-form-urlencoded", formBody(t, payload), true, time.Now()))

	if w.Code != http.StatusOK || w.Body.Len() != 0 {
		t.Errorf("got %d %q, want empty 200 so the modal closes", w.Code, w.Body.String())
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("NotifyNotQueued called %d times, want 1", len(notifier.calls))
	}
	if got := notifier.calls[0]; got.UserID != "U1" || got.Metadata.ChannelID != "C1" {
		t.Errorf("notified submission = %+v", got)
	}
}

func TestSlackHandler_BodyTooLarge(t *testing.T) {
	t.Parallel()

	h := NewSlackHandler(testSecret, &mockShortcuts{}, &mockNotifier{}, &mockScheduler{}, zap.NewNop())
	body := strings.Repeat("x", int(MaxSlackBodySize)+1)
	w := httptest.NewRecorder()
	h.Events(w, newSlackRequest(t, "application/json", body, false, time.Time{}))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}
