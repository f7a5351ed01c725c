// Package redis provides a durable dispatch queue on Redis lists.
//
// Jobs are pushed onto a pending list. Dequeue atomically moves a job onto a
// processing list with BLMOVE; Ack removes it from there. Jobs left on the
// processing list by a crashed worker are returned to pending by Recover.
package redis

import (
	"context"
	"fmt"
	"time"

	"balance-ledger/pkg/dispatch"

	"github.com/redis/rueidis"
)

// QueueConfig configures the Redis queue.
type QueueConfig struct {
	// Name identifies the queue in logs and metrics (default: "redis")
	Name string

	Addr     string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces the pending, processing and malformed lists
	// (default: "ledger:jobs:")
	KeyPrefix string

	// BlockTimeout bounds a single BLMOVE wait (default: 1s)
	BlockTimeout time.Duration

	DialTimeout time.Duration
}

// DefaultQueueConfig returns a configuration for a local Redis.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Name:         "redis",
		Addr:         "localhost:6379",
		KeyPrefix:    "ledger:jobs:",
		BlockTimeout: time.Second,
		DialTimeout:  5 * time.Second,
	}
}

// Queue is a reliable FIFO of jobs on Redis.
type Queue struct {
	client     rueidis.Client
	name       string
	pending    string
	processing string
	malformed  string
	block      float64
	ownsClient bool
}

// NewQueue connects to Redis and returns a queue that owns the client.
func NewQueue(config QueueConfig) (*Queue, error) {
	if config.Addr == "" {
		return nil, fmt.Errorf("redis queue: no address configured")
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{config.Addr},
		Username:    config.Username,
		Password:    config.Password,
		SelectDB:    config.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis queue: failed to create client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis queue: failed to ping server: %w", err)
	}

	q := NewQueueWithClient(client, config)
	q.ownsClient = true
	return q, nil
}

// NewQueueWithClient builds a queue on an existing client. Close does not
// close the client.
func NewQueueWithClient(client rueidis.Client, config QueueConfig) *Queue {
	if config.Name == "" {
		config.Name = "redis"
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "ledger:jobs:"
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = time.Second
	}

	return &Queue{
		client:     client,
		name:       config.Name,
		pending:    config.KeyPrefix + "pending",
		processing: config.KeyPrefix + "processing",
		malformed:  config.KeyPrefix + "malformed",
		block:      config.BlockTimeout.Seconds(),
	}
}

// Client returns the underlying client, for building a Sink on it.
func (q *Queue) Client() rueidis.Client { return q.client }

// Enqueue pushes job onto the pending list. The job is durable once this
// returns (subject to the server's persistence settings).
func (q *Queue) Enqueue(ctx context.Context, job dispatch.Job) error {
	data, err := job.Encode()
	if err != nil {
		return fmt.Errorf("redis queue: encode: %w", err)
	}

	cmd := q.client.B().Lpush().Key(q.pending).Element(string(data)).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis queue: enqueue: %w", err)
	}
	return nil
}

// Dequeue moves the oldest pending job onto the processing list and returns
// it. Payloads that cannot be decoded are moved to the malformed list.
func (q *Queue) Dequeue(ctx context.Context) (*dispatch.Delivery, error) {
	for {
		cmd := q.client.B().Blmove().Source(q.pending).Destination(q.processing).Right().Left().Timeout(q.block).Build()
		payload, err := q.client.Do(ctx, cmd).ToString()
		if err != nil {
			if rueidis.IsRedisNil(err) {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis queue: dequeue: %w", err)
		}

		job, err := dispatch.DecodeJob([]byte(payload))
		if err != nil {
			if quarantineErr := q.quarantine(ctx, payload); quarantineErr != nil {
				return nil, quarantineErr
			}
			continue
		}

		return dispatch.NewDelivery(job, func(ctx context.Context) error {
			return q.remove(ctx, payload)
		}), nil
	}
}

func (q *Queue) remove(ctx context.Context, payload string) error {
	cmd := q.client.B().Lrem().Key(q.processing).Count(1).Element(payload).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis queue: ack: %w", err)
	}
	return nil
}

func (q *Queue) quarantine(ctx context.Context, payload string) error {
	cmds := []rueidis.Completed{
		q.client.B().Lpush().Key(q.malformed).Element(payload).Build(),
		q.client.B().Lrem().Key(q.processing).Count(1).Element(payload).Build(),
	}
	for _, resp := range q.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("redis queue: quarantine malformed job: %w", err)
		}
	}
	return nil
}

// Recover returns every job on the processing list to the head of the
// pending list. Run it once at startup, before any worker dequeues.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		cmd := q.client.B().Lmove().Source(q.processing).Destination(q.pending).Left().Right().Build()
		err := q.client.Do(ctx, cmd).Error()
		if rueidis.IsRedisNil(err) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("redis queue: recover: %w", err)
		}
		moved++
	}
}

// Len returns the number of pending jobs.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.client.Do(ctx, q.client.B().Llen().Key(q.pending).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("redis queue: len: %w", err)
	}
	return int(n), nil
}

func (q *Queue) Name() string { return q.name }

// Close releases the client if the queue created it.
func (q *Queue) Close() error {
	if q.ownsClient {
		q.client.Close()
	}
	return nil
}

var _ dispatch.Queue = (*Queue)(nil)
