package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"volunteer-manager/pkg/metrics"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/trace"
)

type MessageHandler func(ctx context.Context, data json.RawMessage) error

// RetryTracker counts handler failures per message across redeliveries.
type RetryTracker interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type Consumer struct {
	channel    *amqp091.Channel
	queue      amqp091.Queue
	routingKey string
	handler    MessageHandler
	conn       *amqp091.Connection
	logger     *zap.Logger

	retries    RetryTracker
	maxRetries int64
}

// NewConsumer creates a consumer for a specific routing key.
func NewConsumer(url, queueName, routingKey string, logger *zap.Logger) (*Consumer, error) {
	conn, err := NewConnection(url)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := DeclareDLQExchange(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare dlq exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(ch, routingKey); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	q, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, routingKey, ExchangeName, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("Consumer initialized",
		zap.String("routing_key", routingKey),
		zap.String("queue", queueName),
		zap.String("exchange", ExchangeName),
	)

	return &Consumer{
		conn:       conn,
		channel:    ch,
		queue:      q,
		routingKey: routingKey,
		logger:     logger,
	}, nil
}

func (c *Consumer) SetHandler(h MessageHandler) {
	c.handler = h
}

// WithRetryLimit dead-letters a message once its handler failed more than maxRetries times.
func (c *Consumer) WithRetryLimit(retries RetryTracker, maxRetries int64) *Consumer {
	c.retries = retries
	c.maxRetries = maxRetries
	return c
}

func (c *Consumer) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// StartConsuming blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	if c.handler == nil {
		return fmt.Errorf("consumer handler not set")
	}

	deliveries, err := c.channel.Consume(
		c.queue.Name,
		"",
		false, // 手动ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("Consumer started consuming messages",
		zap.String("routing_key", c.routingKey),
		zap.String("queue", c.queue.Name),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, msg)
		}
	}
}

// handle guarantees every delivery is acked, nacked or dead-lettered.
func (c *Consumer) handle(parent context.Context, msg amqp091.Delivery) {
	start := time.Now()
	ctx := otel.GetTextMapPropagator().Extract(parent, otel.MQHeaderCarrier(msg.Headers))
	if traceID, ok := msg.Headers[trace.HeaderName].(string); ok && traceID != "" {
		ctx = trace.WithContext(ctx, traceID)
	}
	ctx, span := otel.MQConsumeSpan(ctx, c.routingKey, c.queue.Name)

	var handlerErr error
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panic recovered",
				zap.String("routing_key", c.routingKey),
				zap.String("queue", c.queue.Name),
				zap.Any("panic", r),
			)
			handlerErr = fmt.Errorf("handler panic: %v", r)
			c.reject(ctx, msg, handlerErr)
		}
		otel.EndSpan(span, handlerErr)
		metrics.RecordMQConsumeLatency(c.routingKey, c.queue.Name, time.Since(start))
	}()

	c.logger.Debug("Received message",
		zap.String("routing_key", c.routingKey),
		zap.String("message_id", msg.MessageId),
		zap.Int("message_size", len(msg.Body)),
	)

	if handlerErr = c.handler(ctx, msg.Body); handlerErr != nil {
		c.logger.Error("Handler error",
			zap.String("routing_key", c.routingKey),
			zap.String("queue", c.queue.Name),
			zap.Error(handlerErr),
		)
		c.reject(ctx, msg, handlerErr)
		return
	}

	if c.retries != nil && msg.MessageId != "" {
		_ = c.retries.Reset(ctx, c.retryKey(msg))
	}
	if err := msg.Ack(false); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
}

// reject requeues the message, or dead-letters it once the retry limit is reached.
func (c *Consumer) reject(ctx context.Context, msg amqp091.Delivery, cause error) {
	if c.retries != nil && msg.MessageId != "" {
		count, err := c.retries.IncrementAndGet(ctx, c.retryKey(msg))
		if err == nil && count > c.maxRetries {
			if err := publishToDLQ(ctx, c.channel, msg, c.queue.Name, cause.Error()); err != nil {
				c.logger.Error("Failed to publish to DLQ",
					zap.String("routing_key", c.routingKey),
					zap.Error(err),
				)
			} else {
				c.logger.Warn("Message moved to DLQ",
					zap.String("routing_key", c.routingKey),
					zap.String("message_id", msg.MessageId),
					zap.Int64("retry_count", count),
				)
				_ = c.retries.Reset(ctx, c.retryKey(msg))
				_ = msg.Ack(false)
				return
			}
		}
	}

	if err := msg.Nack(false, true); err != nil {
		c.logger.Error("Failed to nack message",
			zap.String("routing_key", c.routingKey),
			zap.Error(err),
		)
	}
}

func (c *Consumer) retryKey(msg amqp091.Delivery) string {
	return fmt.Sprintf("retry:%s:%s", c.queue.Name, msg.MessageId)
}
