package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a job consumed from RabbitMQ. Settlement goes through the
// delivery's own acknowledger, so it always targets the consuming channel.
type Message struct {
	job      *Job
	delivery amqp.Delivery
}

var _ Delivery = (*Message)(nil)

func newMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{job: job, delivery: delivery}
}

// Job returns the decoded job
func (m *Message) Job() *Job {
	return m.job
}

// Redelivered implements Delivery
func (m *Message) Redelivered() bool {
	return m.delivery.Redelivered
}

// Ack implements Delivery
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack implements Delivery. Without requeue the job is dead-lettered.
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}
