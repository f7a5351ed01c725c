package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"balance-ledger/pkg/dispatch"

	"github.com/redis/rueidis"
)

// Sink keeps failures on a Redis list, newest first.
type Sink struct {
	client rueidis.Client
	key    string
}

// NewSink records failures under keyPrefix + "failures".
func NewSink(client rueidis.Client, keyPrefix string) *Sink {
	if keyPrefix == "" {
		keyPrefix = "ledger:jobs:"
	}
	return &Sink{client: client, key: keyPrefix + "failures"}
}

func (s *Sink) Record(ctx context.Context, failure dispatch.Failure) error {
	data, err := failure.Encode()
	if err != nil {
		return fmt.Errorf("redis sink: encode: %w", err)
	}

	cmd := s.client.B().Lpush().Key(s.key).Element(string(data)).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis sink: record: %w", err)
	}
	return nil
}

// Recent returns up to limit failures, newest first.
func (s *Sink) Recent(ctx context.Context, limit int) ([]dispatch.Failure, error) {
	if limit <= 0 {
		return nil, nil
	}

	cmd := s.client.B().Lrange().Key(s.key).Start(0).Stop(int64(limit - 1)).Build()
	items, err := s.client.Do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("redis sink: recent: %w", err)
	}

	failures := make([]dispatch.Failure, 0, len(items))
	for _, item := range items {
		var f dispatch.Failure
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			return nil, fmt.Errorf("redis sink: decode: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, nil
}

var _ dispatch.FailureSink = (*Sink)(nil)
