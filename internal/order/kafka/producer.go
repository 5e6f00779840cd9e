package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-ledger/internal/config"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
)

// Publisher is the raw topic writer, satisfied by kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Emitter mirrors ledger events to live subscribers.
type Emitter interface {
	Emit(evt models.LedgerEvent)
}

// LedgerPublisher routes ledger events to their topics, keyed by order so a
// single order's events stay ordered within a partition.
type LedgerPublisher struct {
	Producer Publisher
	Emitter  Emitter
	Topics   config.TopicConfig
	Logger   *logger.Logger
}

func NewLedgerPublisher(producer Publisher, emitter Emitter, topics config.TopicConfig, log *logger.Logger) *LedgerPublisher {
	return &LedgerPublisher{Producer: producer, Emitter: emitter, Topics: topics, Logger: log}
}

func (p *LedgerPublisher) TopicFor(eventType string) (string, error) {
	switch eventType {
	case models.LedgerOrderPaid:
		return p.Topics.OrderPaid, nil
	case models.LedgerPaymentRecorded:
		return p.Topics.PaymentRecorded, nil
	case models.LedgerRefundIssued:
		return p.Topics.RefundIssued, nil
	case models.LedgerCartExpired:
		return p.Topics.CartExpired, nil
	case models.LedgerItemTransferred:
		return p.Topics.ItemTransferred, nil
	case models.LedgerTxnConfirmed:
		return p.Topics.TxnConfirmed, nil
	default:
		return "", fmt.Errorf("no topic for ledger event type %q", eventType)
	}
}

// PublishLedgerEvent streams evt to SSE subscribers and then to Kafka. A
// nil Producer only emits to SSE.
func (p *LedgerPublisher) PublishLedgerEvent(ctx context.Context, evt models.LedgerEvent) error {
	if p.Emitter != nil {
		p.Emitter.Emit(evt)
	}
	if p.Producer == nil {
		return nil
	}

	topic, err := p.TopicFor(evt.Type)
	if err != nil {
		return err
	}
	msgBytes, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	key := evt.OrderID
	if key == "" {
		key = evt.EventID
	}
	if err := p.Producer.Publish(ctx, topic, key, msgBytes); err != nil {
		return fmt.Errorf("publish %s: %w", evt.Type, err)
	}
	p.Logger.Debug("KAFKA", fmt.Sprintf("Published %s for order %s", evt.Type, evt.OrderID))
	return nil
}
