package kafka

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"balance-ledger/pkg/dispatch"

	"github.com/google/uuid"
)

func brokersOrSkip(t *testing.T) []string {
	t.Helper()
	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("KAFKA_BROKERS not set")
	}
	return strings.Split(brokers, ",")
}

func TestNewQueue_RequiresBrokers(t *testing.T) {
	if _, err := NewQueue(QueueConfig{}); err == nil {
		t.Error("Expected an error without brokers")
	}
	if _, err := NewSink(nil, ""); err == nil {
		t.Error("Expected an error without brokers")
	}
}

func TestKafkaQueue_RoundTrip(t *testing.T) {
	brokers := brokersOrSkip(t)

	config := DefaultQueueConfig()
	config.Brokers = brokers
	config.Topic = "test.jobs." + uuid.NewString()
	config.GroupID = "test-" + uuid.NewString()

	q, err := NewQueue(config)
	if err != nil {
		t.Fatalf("NewQueue failed: %v", err)
	}
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job := dispatch.Job{ID: uuid.NewString(), AccountID: "acc-1"}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Skipf("Kafka not available: %v", err)
	}

	d, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if d.Job.ID != job.ID || d.Job.AccountID != "acc-1" {
		t.Errorf("Unexpected job: %+v", d.Job)
	}
	if err := d.Ack(ctx); err != nil {
		t.Errorf("Ack failed: %v", err)
	}
}

func TestKafkaSink_Record(t *testing.T) {
	brokers := brokersOrSkip(t)

	sink, err := NewSink(brokers, "test.failures."+uuid.NewString())
	if err != nil {
		t.Fatalf("NewSink failed: %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = sink.Record(ctx, dispatch.Failure{Job: dispatch.Job{ID: "j"}, Class: "not_found", Outcome: "failed"})
	if err != nil {
		t.Skipf("Kafka not available: %v", err)
	}
}
