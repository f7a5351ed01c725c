// Package kafka publishes ledger change events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types.
const (
	TypeOperationApplied = "operation_applied"
	TypeAccountDeleted   = "account_deleted"
)

// Event is the JSON body of every published message.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	AccountID  string            `json:"account_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Operation  *ledger.Operation `json:"operation,omitempty"`
	OldBalance *decimal.Decimal  `json:"old_balance,omitempty"`
	NewBalance *decimal.Decimal  `json:"new_balance,omitempty"`
}

// PublisherConfig configures the event publisher.
type PublisherConfig struct {
	Brokers []string
	// Topic receives every event (default: "ledger.events")
	Topic string
	// BatchTimeout bounds how long a message waits for a batch (default: 10ms)
	BatchTimeout time.Duration
}

// DefaultPublisherConfig returns the default publisher configuration.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "ledger.events",
		BatchTimeout: 10 * time.Millisecond,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher is a ledger.Observer that emits one event per committed change.
// Messages are keyed by account so one account's events stay ordered.
type Publisher struct {
	writer messageWriter
	now    func() time.Time
	logger *logging.Logger
}

// NewPublisher creates a publisher writing to config.Topic.
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("events: at least one broker required")
	}
	if config.Topic == "" {
		config.Topic = "ledger.events"
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 10 * time.Millisecond
	}

	return newPublisher(&kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           config.BatchTimeout,
		AllowAutoTopicCreation: true,
	}), nil
}

func newPublisher(w messageWriter) *Publisher {
	return &Publisher{
		writer: w,
		now:    time.Now,
		logger: logging.Global().Named("events"),
	}
}

// OperationApplied implements ledger.Observer.
func (p *Publisher) OperationApplied(ctx context.Context, result ledger.Result) error {
	op := result.Operation
	return p.publish(ctx, Event{
		Type:       TypeOperationApplied,
		AccountID:  op.AccountID,
		Operation:  &op,
		OldBalance: &result.OldBalance,
		NewBalance: &result.NewBalance,
	})
}

// AccountDeleted implements ledger.Observer.
func (p *Publisher) AccountDeleted(ctx context.Context, accountID string) error {
	return p.publish(ctx, Event{
		Type:      TypeAccountDeleted,
		AccountID: accountID,
	})
}

func (p *Publisher) publish(ctx context.Context, event Event) error {
	event.ID = uuid.NewString()
	event.OccurredAt = p.now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", event.Type, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}

	p.logger.Debug("event published",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		logging.AccountID(event.AccountID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ ledger.Observer = (*Publisher)(nil)
