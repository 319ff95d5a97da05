package messaging

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
)

const (
	CommandExchange = "numpool.commands"
	PollQueue       = "numpool.poll"
	delayQueue      = "numpool.poll.delay"
)

// RabbitMQ owns the broker connection and the delayed-delivery topology.
// Messages published with a TTL land in the delay queue, then dead-letter
// into the poll queue when the TTL expires.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewRabbitMQ(uri string, logger *logrus.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	r := &RabbitMQ{conn: conn, channel: ch}
	if err := r.declareTopology(); err != nil {
		r.Close()
		return nil, err
	}

	logger.Info("Connected to RabbitMQ")
	return r, nil
}

func (r *RabbitMQ) Channel() *amqp.Channel {
	return r.channel
}

func (r *RabbitMQ) Close() error {
	if err := r.channel.Close(); err != nil {
		r.conn.Close()
		return fmt.Errorf("failed to close channel: %w", err)
	}
	return r.conn.Close()
}

func (r *RabbitMQ) declareTopology() error {
	if err := r.channel.ExchangeDeclare(
		CommandExchange,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare %s exchange: %w", CommandExchange, err)
	}

	// Delay queue: no consumer, per-message TTL, dead-letters into the poll
	// queue.
	if _, err := r.channel.QueueDeclare(
		delayQueue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": PollQueue,
		},
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", delayQueue, err)
	}

	if _, err := r.channel.QueueDeclare(
		PollQueue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", PollQueue, err)
	}

	if err := r.channel.QueueBind(
		delayQueue,
		"poll",
		CommandExchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", delayQueue, err)
	}

	return nil
}
