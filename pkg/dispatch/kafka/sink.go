package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"balance-ledger/pkg/dispatch"

	"github.com/segmentio/kafka-go"
)

// Sink publishes failures to a topic, keyed by job ID.
type Sink struct {
	writer *kafka.Writer
}

// NewSink creates a sink writing to topic (default: "ledger.jobs.failed").
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka sink: no brokers configured")
	}
	if topic == "" {
		topic = "ledger.jobs.failed"
	}
	return &Sink{writer: newWriter(brokers, topic, 10*time.Millisecond)}, nil
}

func (s *Sink) Record(ctx context.Context, failure dispatch.Failure) error {
	data, err := failure.Encode()
	if err != nil {
		return fmt.Errorf("kafka sink: encode: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(failure.Job.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "class", Value: []byte(failure.Class)},
			{Key: "outcome", Value: []byte(failure.Outcome)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka sink: record: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

var _ dispatch.FailureSink = (*Sink)(nil)
