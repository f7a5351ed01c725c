package writer

import "errors"

// AsyncWriterStats is a point-in-time view of a writer's counters.
type AsyncWriterStats struct {
	QueueDepth    int   // writes waiting in the queue
	DroppedWrites int64 // rejected with ErrQueueFull
	TotalWrites   int64 // accepted into the queue
	FailedWrites  int64 // accepted but refused by the layer
}

var (
	// ErrQueueFull is returned when the queue stayed full for MaxWaitTime
	ErrQueueFull = errors.New("writer: queue full, write dropped")

	// ErrWriterClosed is returned when attempting to write to a closed writer
	ErrWriterClosed = errors.New("writer: writer is closed")

	// ErrFlushTimeout is returned when Flush() times out waiting for queue to drain
	ErrFlushTimeout = errors.New("writer: flush timeout exceeded")
)
