// Package kafka provides a dispatch queue on a Kafka topic consumed by a
// consumer group, and a dead-letter sink for failed jobs.
//
// Jobs are keyed by account ID so that all jobs of one account land on the
// same partition in order. Ack commits the message offset. Kafka commits are
// cumulative per partition, so run a single dispatcher worker per Queue when
// redelivery after a crash must cover every unacked job.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"balance-ledger/pkg/dispatch"

	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
)

// QueueConfig configures the Kafka queue.
type QueueConfig struct {
	// Name identifies the queue in logs and metrics (default: "kafka")
	Name string

	Brokers []string

	// Topic carries the jobs (default: "ledger.jobs")
	Topic string

	// GroupID is the consumer group of the dispatcher (default: "ledger-dispatch")
	GroupID string

	// DeadLetterTopic receives payloads that cannot be decoded
	// (default: "ledger.jobs.dead")
	DeadLetterTopic string

	// BatchTimeout bounds how long a write waits to fill a batch (default: 10ms)
	BatchTimeout time.Duration

	MinBytes int
	MaxBytes int
}

// DefaultQueueConfig returns a configuration for a local broker.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:            "kafka",
		Brokers:         []string{"localhost:9092"},
		Topic:           "ledger.jobs",
		GroupID:         "ledger-dispatch",
		DeadLetterTopic: "ledger.jobs.dead",
		BatchTimeout:    10 * time.Millisecond,
		MinBytes:        1,
		MaxBytes:        10e6,
	}
}

// Queue writes jobs to a topic and reads them back through a consumer group.
type Queue struct {
	name   string
	writer *kafka.Writer
	reader *kafka.Reader
	dead   *kafka.Writer
}

// NewQueue creates the writer and the group reader. Connections are made
// lazily on first use.
func NewQueue(config QueueConfig) (*Queue, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka queue: no brokers configured")
	}
	defaults := DefaultQueueConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Topic == "" {
		config.Topic = defaults.Topic
	}
	if config.GroupID == "" {
		config.GroupID = defaults.GroupID
	}
	if config.DeadLetterTopic == "" {
		config.DeadLetterTopic = defaults.DeadLetterTopic
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = defaults.BatchTimeout
	}
	if config.MinBytes <= 0 {
		config.MinBytes = defaults.MinBytes
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaults.MaxBytes
	}

	return &Queue{
		name: config.Name,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Topic:                  config.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           config.BatchTimeout,
			AllowAutoTopicCreation: true,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  config.Brokers,
			GroupID:  config.GroupID,
			Topic:    config.Topic,
			MinBytes: config.MinBytes,
			MaxBytes: config.MaxBytes,
		}),
		dead: newWriter(config.Brokers, config.DeadLetterTopic, config.BatchTimeout),
	}, nil
}

func newWriter(brokers []string, topic string, batchTimeout time.Duration) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           batchTimeout,
		AllowAutoTopicCreation: true,
	}
}

// Enqueue writes job and waits for every in-sync replica to acknowledge it.
func (q *Queue) Enqueue(ctx context.Context, job dispatch.Job) error {
	data, err := job.Encode()
	if err != nil {
		return fmt.Errorf("kafka queue: encode: %w", err)
	}

	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.AccountID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("kafka queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue fetches the next message without committing it. Payloads that
// cannot be decoded are copied to the dead-letter topic and committed.
func (q *Queue) Dequeue(ctx context.Context) (*dispatch.Delivery, error) {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil, dispatch.ErrQueueClosed
			}
			return nil, fmt.Errorf("kafka queue: fetch: %w", err)
		}

		job, err := dispatch.DecodeJob(msg.Value)
		if err != nil {
			if deadErr := q.deadLetter(ctx, msg); deadErr != nil {
				return nil, deadErr
			}
			continue
		}

		return dispatch.NewDelivery(job, func(ctx context.Context) error {
			if err := q.reader.CommitMessages(ctx, msg); err != nil {
				return fmt.Errorf("kafka queue: commit: %w", err)
			}
			return nil
		}), nil
	}
}

func (q *Queue) deadLetter(ctx context.Context, msg kafka.Message) error {
	err := q.dead.WriteMessages(ctx, kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: []kafka.Header{
			{Key: "reason", Value: []byte(dispatch.ErrMalformedJob.Error())},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka queue: dead-letter malformed job: %w", err)
	}
	if err := q.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka queue: commit malformed job: %w", err)
	}
	return nil
}

// Len returns the consumer lag of the group reader.
func (q *Queue) Len(ctx context.Context) (int, error) {
	lag := q.reader.Stats().Lag
	if lag < 0 {
		lag = 0
	}
	return int(lag), nil
}

func (q *Queue) Name() string { return q.name }

// Close flushes pending writes and leaves the consumer group.
func (q *Queue) Close() error {
	return multierr.Combine(
		q.writer.Close(),
		q.reader.Close(),
		q.dead.Close(),
	)
}

var _ dispatch.Queue = (*Queue)(nil)
