package queue

import (
	"context"
)

// Delivery is a consumed job awaiting settlement. Exactly one of Ack or
// Nack must be called.
type Delivery interface {
	Job() *Job
	// Redelivered reports whether the broker handed this job out before
	Redelivered() bool
	Ack() error
	Nack(requeue bool) error
}

// JobQueue carries capture jobs from the server to cmd/worker
type JobQueue interface {
	// Enqueue publishes job and returns once the broker has accepted it
	Enqueue(ctx context.Context, job *Job) error

	// Consume streams deliveries until ctx is cancelled. At most
	// prefetchCount deliveries are outstanding at once. Both channels are
	// closed when consumption stops.
	Consume(ctx context.Context, prefetchCount int) (<-chan Delivery, <-chan error, error)

	Close() error

	// HealthCheck reports whether the broker connection is usable
	HealthCheck(ctx context.Context) error
}
