package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PLUTO-NIX/slack-to-obsidian/internal/queue"
	"github.com/PLUTO-NIX/slack-to-obsidian/internal/telemetry"
	"go.uber.org/zap"
)

// ErrSchedulerClosed is returned by Schedule after Shutdown
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Scheduler hands a job off so the webhook can answer immediately
type Scheduler interface {
	Schedule(ctx context.Context, job *queue.Job) error
}

// InlineScheduler runs each job on its own goroutine inside the server
// process. Jobs outlive the request that scheduled them; there is no
// durability if the process dies mid-job.
type InlineScheduler struct {
	runner JobRunner
	logger *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ Scheduler = (*InlineScheduler)(nil)

// NewInlineScheduler creates an inline scheduler
func NewInlineScheduler(runner JobRunner, logger *zap.Logger) *InlineScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineScheduler{runner: runner, logger: logger}
}

// Schedule starts job in the background. The job keeps the request's values
// but not its cancellation.
func (s *InlineScheduler) Schedule(ctx context.Context, job *queue.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}

	s.wg.Add(1)
	detached := context.WithoutCancel(ctx)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job_panic", zap.String("job_id", job.ID.String()), zap.Any("panic", r))
			}
		}()

		if err := s.runner.Process(detached, job); err != nil {
			s.logger.Error("job_failed",
				zap.String("job_id", job.ID.String()),
				zap.String("job_type", string(job.Type)),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends.
// Jobs still running at that point are abandoned.
func (s *InlineScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background jobs still running: %w", ctx.Err())
	}
}

// QueueScheduler publishes jobs to the job queue for cmd/worker. Delivery
// is at least once.
type QueueScheduler struct {
	queue queue.JobQueue
}

var _ Scheduler = (*QueueScheduler)(nil)

// NewQueueScheduler creates a queue-backed scheduler
func NewQueueScheduler(jobQueue queue.JobQueue) *QueueScheduler {
	return &QueueScheduler{queue: jobQueue}
}

// Schedule implements Scheduler
func (s *QueueScheduler) Schedule(ctx context.Context, job *queue.Job) error {
	telemetry.InjectJob(ctx, job)
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", job.Type, err)
	}
	return nil
}
