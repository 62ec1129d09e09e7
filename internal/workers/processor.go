// Package workers runs detached capture jobs, inline in the server process
// or from the RabbitMQ queue in cmd/worker.
package workers

import (
	"context"
	"errors"
	"fmt"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/queue"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/slack"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrUnknownJobType is returned for jobs no handler exists for
var ErrUnknownJobType = errors.New("unknown job type")

// CaptureHandler runs the capture sequences. Implementations log and
// swallow their own failures.
type CaptureHandler interface {
	HandleReaction(ctx context.Context, ev slack.ReactionEvent)
	HandleModalSubmission(ctx context.Context, sub slack.ModalSubmission)
}

// JobRunner executes a single job
type JobRunner interface {
	Process(ctx context.Context, job *queue.Job) error
}

// Processor decodes capture jobs and dispatches them to the handler
type Processor struct {
	handler CaptureHandler
	logger  *zap.Logger
}

var _ JobRunner = (*Processor)(nil)

// NewProcessor creates a processor
func NewProcessor(handler CaptureHandler, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{handler: handler, logger: logger}
}

// Process runs job. It only fails when the job cannot be decoded, since the
// capture sequences absorb their own errors.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	ctx, span := telemetry.StartJobSpan(ctx, job)
	defer span.End()

	if err := p.dispatch(ctx, job); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job rejected")
		return err
	}
	return nil
}

func (p *Processor) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeCaptureReaction:
		var ev slack.ReactionEvent
		if err := job.DecodePayload(&ev); err != nil {
			return err
		}
		p.handler.HandleReaction(ctx, ev)
		return nil

	case queue.JobTypeCaptureModalSubmission:
		var sub slack.ModalSubmission
		if err := job.DecodePayload(&sub); err != nil {
			return err
		}
		p.handler.HandleModalSubmission(ctx, sub)
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
}

// ProcessMessage runs a queued job and settles the delivery: acked on
// success, dead-lettered without requeue when the job is unusable.
func (p *Processor) ProcessMessage(ctx context.Context, msg queue.Delivery) error {
	job := msg.Job()
	if msg.Redelivered() {
		// dedup makes the replay safe
		p.logger.Debug("job_redelivered", zap.String("job_id", job.ID.String()), zap.String("job_type", string(job.Type)))
	}

	if err := p.Process(ctx, job); err != nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job %s rejected: %w", job.ID, err)
	}

	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// RunConsumer feeds queued jobs to p until ctx is cancelled or the delivery
// channel closes.
func RunConsumer(ctx context.Context, jobQueue queue.JobQueue, p *Processor, prefetch int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	msgChan, errChan, err := jobQueue.Consume(ctx, prefetch)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			logger.Error("queue_error", zap.Error(err))
		case msg, ok := <-msgChan:
			if !ok {
				logger.Info("queue_channel_closed")
				return nil
			}
			if err := p.ProcessMessage(ctx, msg); err != nil {
				logger.Error("job_failed",
					zap.Error(err),
					zap.String("job_id", msg.Job().ID.String()),
					zap.String("job_type", string(msg.Job().Type)),
				)
			}
		}
	}
}
