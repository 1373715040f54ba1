package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQQueue is a durable queue for import jobs backed by a single
// AMQP channel. It implements both Publisher and Consumer.
type RabbitMQQueue struct {
	conn      *amqp091.Connection
	channel   *amqp091.Channel
	queueName string
	logger    *logrus.Logger
}

// NewRabbitMQQueue connects to the broker and declares the job queue.
func NewRabbitMQQueue(amqpURL, queueName string, logger *logrus.Logger) (*RabbitMQQueue, error) {
	conn, err := amqp091.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName, // queue name
		true,      // durable
		false,     // auto-delete
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	logger.WithField("queue", queueName).Info("RabbitMQ queue initialized")

	return &RabbitMQQueue{
		conn:      conn,
		channel:   channel,
		queueName: queueName,
		logger:    logger,
	}, nil
}

// Publish enqueues an import job as a persistent JSON message.
func (q *RabbitMQQueue) Publish(ctx context.Context, job *ImportJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal import job: %w", err)
	}

	err = q.channel.PublishWithContext(
		ctx,
		"",          // exchange (empty for direct queue)
		q.queueName, // routing key (queue name)
		false,       // mandatory
		false,       // immediate
		amqp091.Publishing{
			DeliveryMode: amqp091.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish import job: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"run_id": job.RunID,
		"resume": job.Resume,
	}).Debug("Published import job")

	return nil
}

// Consume delivers jobs to the handler one at a time until the context
// is cancelled.
func (q *RabbitMQQueue) Consume(ctx context.Context, handler func(context.Context, *ImportJob) error) error {
	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := q.channel.Consume(
		q.queueName, // queue
		"",          // consumer tag
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			var job ImportJob
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				q.logger.WithError(err).Error("Failed to unmarshal import job, dropping message")
				delivery.Nack(false, false)
				continue
			}

			if err := handler(ctx, &job); err != nil {
				q.logger.WithError(err).WithField("run_id", job.RunID).Error("Import job handler failed")
			}
			delivery.Ack(false)
		}
	}
}

// Close tears down the channel and connection.
func (q *RabbitMQQueue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
