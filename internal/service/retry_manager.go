package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// codePollJob is the payload for one delayed carrier poll. The message sits in
// the delay queue until its TTL expires, then dead-letters into the poll queue.
type codePollJob struct {
	OrderID primitive.ObjectID `json:"order_id"`
	LeaseID string             `json:"lease_id"`
	Attempt int                `json:"attempt"`
}

type RetryManager struct {
	channel *amqp.Channel
	logger  *logrus.Logger
}

func NewRetryManager(channel *amqp.Channel, logger *logrus.Logger) *RetryManager {
	return &RetryManager{
		channel: channel,
		logger:  logger,
	}
}

// SchedulePoll enqueues the next carrier code poll for an order after delay.
func (r *RetryManager) SchedulePoll(ctx context.Context, orderID primitive.ObjectID, leaseID string, attempt int, delay time.Duration) error {
	data, err := json.Marshal(codePollJob{
		OrderID: orderID,
		LeaseID: leaseID,
		Attempt: attempt,
	})
	if err != nil {
		return err
	}

	return r.channel.Publish(
		"numpool.commands",
		"poll",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         data,
			DeliveryMode: amqp.Persistent,
			Expiration:   strconv.FormatInt(delay.Milliseconds(), 10),
		},
	)
}

// StartWorker consumes matured poll jobs and drives them through the order
// service. Blocks until ctx is cancelled.
func (r *RetryManager) StartWorker(ctx context.Context, orders *OrderService) {
	msgs, err := r.channel.Consume(
		"numpool.poll",
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		r.logger.Errorf("Failed to start poll worker: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var job codePollJob
			if err := json.Unmarshal(msg.Body, &job); err != nil {
				r.logger.Errorf("Failed to unmarshal poll job: %v", err)
				continue
			}

			if err := orders.PollCode(ctx, job.OrderID, job.LeaseID, job.Attempt); err != nil {
				r.logger.Debugf("Poll for order %s attempt %d: %v", job.OrderID.Hex(), job.Attempt, err)
			}
		}
	}
}
