package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	jobsRoutingKey = "jobs"
	dlqRoutingKey  = "dlq"
)

var (
	// ErrQueueClosed is returned by HealthCheck once the connection is gone
	ErrQueueClosed = errors.New("queue connection closed")
	// ErrPublishNacked is returned when the broker refuses a published job
	ErrPublishNacked = errors.New("broker rejected the job")
)

// Topology names the broker objects the queue declares
type Topology struct {
	Exchange        string
	Queue           string
	DeadLetterQueue string
}

// DefaultTopology is the layout shared by the server and the worker
func DefaultTopology() Topology {
	return Topology{
		Exchange:        "capture",
		Queue:           "capture_jobs",
		DeadLetterQueue: "capture_jobs_dlq",
	}
}

// Option configures a RabbitMQQueue
type Option func(*RabbitMQQueue)

// WithTopology replaces the default exchange and queue names
func WithTopology(t Topology) Option {
	return func(q *RabbitMQQueue) { q.topology = t }
}

// RabbitMQQueue implements JobQueue on a direct exchange with a dead letter
// queue. Publishing waits for broker confirms.
type RabbitMQQueue struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	topology Topology
	logger   *zap.Logger
}

var _ JobQueue = (*RabbitMQQueue)(nil)

// NewRabbitMQQueue dials amqpURL and declares the topology
func NewRabbitMQQueue(amqpURL string, logger *zap.Logger, opts ...Option) (*RabbitMQQueue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	q := &RabbitMQQueue{
		conn:     conn,
		channel:  ch,
		topology: DefaultTopology(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.declare(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare topology: %w", err)
	}
	return q, nil
}

// declare is idempotent, so the server and the worker both run it
func (q *RabbitMQQueue) declare() error {
	t := q.topology
	if err := q.channel.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange %s: %w", t.Exchange, err)
	}

	if _, err := q.channel.QueueDeclare(t.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue %s: %w", t.DeadLetterQueue, err)
	}
	if err := q.channel.QueueBind(t.DeadLetterQueue, dlqRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.DeadLetterQueue, err)
	}

	// jobs nacked without requeue are routed to the dead letter queue
	args := amqp.Table{
		"x-dead-letter-exchange":    t.Exchange,
		"x-dead-letter-routing-key": dlqRoutingKey,
	}
	if _, err := q.channel.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("queue %s: %w", t.Queue, err)
	}
	if err := q.channel.QueueBind(t.Queue, jobsRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", t.Queue, err)
	}
	return nil
}

// Enqueue implements JobQueue
func (q *RabbitMQQueue) Enqueue(ctx context.Context, job *Job) error {
	publishing, err := newPublishing(job)
	if err != nil {
		return err
	}

	confirm, err := q.channel.PublishWithDeferredConfirmWithContext(ctx, q.topology.Exchange, jobsRoutingKey, false, false, publishing)
	if err != nil {
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for confirm of job %s: %w", job.ID, err)
	}
	if !acked {
		return fmt.Errorf("job %s: %w", job.ID, ErrPublishNacked)
	}
	return nil
}

func newPublishing(job *Job) (amqp.Publishing, error) {
	if job == nil {
		return amqp.Publishing{}, errors.New("cannot publish nil job")
	}
	if !job.Type.IsValid() {
		return amqp.Publishing{}, fmt.Errorf("refusing to publish job of type %q", job.Type)
	}
	body, err := json.Marshal(job)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal job: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID.String(),
		Timestamp:    job.CreatedAt,
		Type:         string(job.Type),
	}, nil
}

// decodeDelivery turns a raw delivery into a Message
func decodeDelivery(d amqp.Delivery) (*Message, error) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return nil, fmt.Errorf("failed to decode delivery %s: %w", d.MessageId, err)
	}
	return newMessage(&job, d), nil
}

// Consume implements JobQueue. Undecodable deliveries are dead-lettered
// here and never reach the caller.
func (q *RabbitMQQueue) Consume(ctx context.Context, prefetchCount int) (<-chan Delivery, <-chan error, error) {
	// a dedicated channel keeps consumer flow control away from publishing
	consumeCh, err := q.conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create consumer channel: %w", err)
	}
	if err := consumeCh.Qos(prefetchCount, 0, false); err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := consumeCh.Consume(q.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = consumeCh.Close()
		return nil, nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	out := make(chan Delivery, prefetchCount)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		defer func() { _ = consumeCh.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					errs <- errors.New("delivery channel closed")
					return
				}

				msg, err := decodeDelivery(d)
				if err != nil {
					q.logger.Warn("queue_message_undecodable", zap.String("message_id", d.MessageId), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				select {
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				case out <- msg:
				}
			}
		}
	}()

	return out, errs, nil
}

// HealthCheck implements JobQueue
func (q *RabbitMQQueue) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.conn == nil || q.conn.IsClosed() || q.channel == nil || q.channel.IsClosed() {
		return ErrQueueClosed
	}
	return nil
}

// Close closes the publishing channel and the connection
func (q *RabbitMQQueue) Close() error {
	var errs []error
	if q.channel != nil {
		errs = append(errs, q.channel.Close())
	}
	if q.conn != nil {
		errs = append(errs, q.conn.Close())
	}
	return errors.Join(errs...)
}
