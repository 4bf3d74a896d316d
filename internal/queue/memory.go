package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Delivery is one attempt at handing a task to a Handler.
type Delivery struct {
	TaskID  uuid.UUID
	Attempt int
}

// MemoryQueue is a buffered in-process queue. Deliveries are lost when the
// process exits; the Reconciler fails whatever was left behind.
type MemoryQueue struct {
	mu       sync.RWMutex
	closed   bool
	messages chan Delivery
	logger   *slog.Logger
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue holding at most size pending deliveries.
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryQueue{
		messages: make(chan Delivery, size),
		logger:   logger.With(slog.String("component", "memory_queue")),
	}
}

// Enqueue adds a first delivery of taskID. It never blocks: a full queue
// returns ErrQueueFull.
func (q *MemoryQueue) Enqueue(_ context.Context, taskID uuid.UUID) error {
	return q.push(Delivery{TaskID: taskID, Attempt: 1})
}

func (q *MemoryQueue) push(d Delivery) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.messages <- d:
		q.logger.Debug("task enqueued",
			"task_id", d.TaskID,
			"attempt", d.Attempt,
			"queue_len", len(q.messages),
			"queue_cap", cap(q.messages))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.messages))
	}
}

// Close stops accepting deliveries. Pending ones can still be drained.
func (q *MemoryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.messages)
		q.logger.Info("task queue closed")
	}
}

// Deliveries returns the channel consumers read from.
func (q *MemoryQueue) Deliveries() <-chan Delivery {
	return q.messages
}

// Len returns the number of pending deliveries.
func (q *MemoryQueue) Len() int {
	return len(q.messages)
}
