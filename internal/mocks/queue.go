package mocks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/queue"
)

// MockQueue implements queue.Queue by recording enqueued IDs.
type MockQueue struct {
	// Err, when set, is returned by every Enqueue.
	Err error

	mu  sync.Mutex
	ids []uuid.UUID
}

var _ queue.Queue = (*MockQueue)(nil)

// Enqueue implements queue.Queue.
func (m *MockQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, id)
	return nil
}

// Enqueued returns the IDs enqueued so far.
func (m *MockQueue) Enqueued() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.ids...)
}
