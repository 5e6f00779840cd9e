package kafka

import (
	"context"
	"errors"
	"fmt"

	"ms-ledger/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Handler processes one message. Returning an error leaves the offset
// uncommitted so the message is redelivered after a restart.
type Handler func(ctx context.Context, msg kafka.Message) error

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer creates a new Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: log}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, handle Handler) {
	topic := c.reader.Config().Topic
	c.logger.LogKafka("CONSUME", topic, "Consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.LogKafka("CONSUME", topic, "Consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading from %s: %v", topic, err))
			continue
		}

		if err := handle(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Handler failed for %s offset %d: %v", topic, msg.Offset, err))
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit %s offset %d: %v", topic, msg.Offset, err))
		}
	}
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
