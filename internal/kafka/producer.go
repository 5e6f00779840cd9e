package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-ledger/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Producer writes keyed messages to any topic through one shared writer.
type Producer struct {
	Writer  *kafka.Writer
	brokers []string
	logger  *logger.Logger
}

func NewProducer(brokers []string, log *logger.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{Writer: writer, brokers: brokers, logger: log}
}

// Publish writes value under key to topic. A missing topic is created once
// and the write retried.
func (p *Producer) Publish(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: value}
	err := p.Writer.WriteMessages(ctx, msg)
	if err == nil {
		p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d", key, len(value)))
		return nil
	}
	if !errors.Is(err, kafka.UnknownTopicOrPartition) {
		return err
	}

	p.logger.Warn("KAFKA", fmt.Sprintf("Topic %s missing, creating it", topic))
	if cerr := CreateTopicIfNotExists(p.brokers, topic, p.logger); cerr != nil {
		return fmt.Errorf("create topic %s: %w", topic, cerr)
	}
	if err := p.Writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.logger.LogKafka("PUBLISH", topic, fmt.Sprintf("key=%s bytes=%d after topic creation", key, len(value)))
	return nil
}

func (p *Producer) Close() error {
	return p.Writer.Close()
}
