package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	logpkg "github.com/PLUTO-NIX/slack-to-obsidian/internal/logger"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/queue"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/workers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// MaxSlackBodySize caps webhook bodies. Slack payloads are well under this.
const MaxSlackBodySize int64 = 512 << 10

// NotifyTimeout bounds the failure notice sent while Slack waits
const NotifyTimeout = 2 * time.Second

// ShortcutOpener opens the capture modal. It runs while Slack waits, since
// the trigger id expires within seconds.
type ShortcutOpener interface {
	HandleShortcut(ctx context.Context, inv slack.ShortcutInvocation) error
}

// SubmissionNotifier reports capture failures the closed modal can no longer show
type SubmissionNotifier interface {
	NotifyNotQueued(ctx context.Context, sub slack.ModalSubmission)
}

// SlackHandler receives Events API and interactivity requests
type SlackHandler struct {
	signingSecret string
	shortcuts     ShortcutOpener
	notifier      SubmissionNotifier
	scheduler     workers.Scheduler
	logger        *zap.Logger
	now           func() time.Time
}

// NewSlackHandler creates the events endpoint handler
func NewSlackHandler(signingSecret string, shortcuts ShortcutOpener, notifier SubmissionNotifier, scheduler workers.Scheduler, logger *zap.Logger) *SlackHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackHandler{
		signingSecret: signingSecret,
		shortcuts:     shortcuts,
		notifier:      notifier,
		scheduler:     scheduler,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterRoutes registers the events route
func (h *SlackHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/slack/events", h.Events).Methods(http.MethodPost)
}

// Events dispatches on the body encoding. JSON bodies carry Events API
// callbacks; form bodies carry interactivity payloads.
func (h *SlackHandler) Events(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSlackBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondText(w, http.StatusRequestEntityTooLarge, "Request too large")
			return
		}
		respondText(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		h.handleEvent(w, r, body)
	case "application/x-www-form-urlencoded":
		h.handleInteraction(w, r, body)
	default:
		if !h.verify(r, body) {
			respondText(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
		respondText(w, http.StatusOK, "ok")
	}
}

func (h *SlackHandler) verify(r *http.Request, body []byte) bool {
	ok := slack.VerifySignature(
		r.Header.Get(slack.HeaderTimestamp),
		r.Header.Get(slack.HeaderSignature),
		body,
		h.signingSecret,
		h.now(),
	)
	if !ok {
		h.logger.Warn("slack_signature_rejected",
			zap.String("timestamp", logpkg.SanitizeIdentifier(r.Header.Get(slack.HeaderTimestamp))),
		)
	}
	return ok
}

func (h *SlackHandler) handleEvent(w http.ResponseWriter, r *http.Request, body []byte) {
	if !json.Valid(body) {
		respondText(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	ev, parseErr := slack.ParseEvent(body)

	// the URL handshake is the one message Slack sends unsigned
	if parseErr == nil {
		if challenge, ok := slack.Challenge(ev); ok {
			writeJSON(w, http.StatusOK, map[string]string{"challenge": challenge})
			return
		}
	}

	if !h.verify(r, body) {
		respondText(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	// event types the SDK does not know are acknowledged so Slack stops retrying
	if parseErr != nil {
		h.logger.Debug("slack_event_unparsed", zap.Error(parseErr))
		respondText(w, http.StatusOK, "ok")
		return
	}

	if reaction, ok := slack.ReactionAdded(ev); ok {
		if err := h.schedule(r.Context(), queue.JobTypeCaptureReaction, reaction); err != nil {
			respondText(w, http.StatusServiceUnavailable, "Try again later")
			return
		}
	}

	respondText(w, http.StatusOK, "ok")
}

func (h *SlackHandler) handleInteraction(w http.ResponseWriter, r *http.Request, body []byte) {
	if !h.verify(r, body) {
		respondText(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		respondText(w, http.StatusBadRequest, "Invalid form body")
		return
	}
	raw := form.Get("payload")
	if raw == "" {
		respondText(w, http.StatusOK, "ok")
		return
	}

	payload, err := slack.ParseInteraction(raw)
	if err != nil {
		respondText(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	switch payload.Type {
	case slack.InteractionMessageAction:
		if err := h.shortcuts.HandleShortcut(r.Context(), payload.Shortcut()); err != nil {
			h.logger.Error("shortcut_failed",
				zap.String("user_id", logpkg.SanitizeIdentifier(payload.User.ID)),
				zap.Error(err),
			)
		}
		w.WriteHeader(http.StatusOK)

	case slack.InteractionViewSubmission:
		// an empty 200 closes the modal, whatever happens next
		if payload.View.CallbackID == slack.TodoModalCallbackID {
			sub, err := payload.Submission()
			if err != nil {
				h.logger.Warn("modal_submission_undecodable", zap.Error(err))
			} else if err := h.schedule(r.Context(), queue.JobTypeCaptureModalSubmission, sub); err != nil {
				ctx, cancel := context.WithTimeout(r.Context(), NotifyTimeout)
				h.notifier.NotifyNotQueued(ctx, sub)
				cancel()
			}
		}
		w.WriteHeader(http.StatusOK)

	default:
		respondText(w, http.StatusOK, "ok")
	}
}

// schedule hands the capture off so the request can be answered right away
func (h *SlackHandler) schedule(ctx context.Context, jobType queue.JobType, payload any) error {
	job, err := queue.NewJob(jobType, payload)
	if err != nil {
		h.logger.Error("capture_job_encode_failed", zap.String("job_type", string(jobType)), zap.Error(err))
		return err
	}
	if err := h.scheduler.Schedule(ctx, job); err != nil {
		h.logger.Error("capture_schedule_failed",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(jobType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
