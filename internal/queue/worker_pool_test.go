package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPoolConfig(workers int) WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:        workers,
		RedeliveryDelay:    time.Millisecond,
		MaxRedeliveryDelay: 5 * time.Millisecond,
		MaxAttempts:        3,
	}
}

func TestNewWorkerPool_Defaults(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(1, setupTestLogger())
	noop := func(context.Context, uuid.UUID) error { return nil }

	pool := NewWorkerPool(q, noop, WorkerPoolConfig{WorkerCount: -5}, setupTestLogger())
	assert.Equal(t, 1, pool.cfg.WorkerCount)
	assert.Equal(t, 5, pool.cfg.MaxAttempts)
	assert.NotNil(t, pool.ctx)
	assert.NotNil(t, pool.cancel)
}

func TestWorkerPool_ProcessesDeliveries(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, setupTestLogger())
	var (
		mu   sync.Mutex
		seen = map[uuid.UUID]int{}
	)
	handler := func(_ context.Context, id uuid.UUID) error {
		mu.Lock()
		seen[id]++
		mu.Unlock()
		return nil
	}

	pool := NewWorkerPool(q, handler, fastPoolConfig(3), setupTestLogger())
	pool.Start()
	defer pool.Stop()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), id))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(ids)
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		assert.Equal(t, 1, seen[id])
	}
}

func TestWorkerPool_RedeliversRetryableErrors(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, setupTestLogger())
	var calls int32
	handler := func(context.Context, uuid.UUID) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}

	pool := NewWorkerPool(q, handler, fastPoolConfig(1), setupTestLogger())
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(context.Background(), uuid.New()))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "no redelivery after success")
}

func TestWorkerPool_StopsAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, setupTestLogger())
	var calls int32
	handler := func(context.Context, uuid.UUID) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("still broken")
	}

	pool := NewWorkerPool(q, handler, fastPoolConfig(1), setupTestLogger())
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(context.Background(), uuid.New()))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 3 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestWorkerPool_DropsPermanentErrors(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, setupTestLogger())
	var calls int32
	handler := func(context.Context, uuid.UUID) error {
		atomic.AddInt32(&calls, 1)
		return Permanent(errors.New("task not found"))
	}

	pool := NewWorkerPool(q, handler, fastPoolConfig(1), setupTestLogger())
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(context.Background(), uuid.New()))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestWorkerPool_StopCancelsInFlightHandlers(t *testing.T) {
	t.Parallel()

	q := NewMemoryQueue(10, setupTestLogger())
	started := make(chan struct{})
	handler := func(ctx context.Context, _ uuid.UUID) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}

	pool := NewWorkerPool(q, handler, fastPoolConfig(1), setupTestLogger())
	pool.Start()
	require.NoError(t, q.Enqueue(context.Background(), uuid.New()))
	<-started

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Zero(t, q.Len(), "interrupted deliveries are not requeued")
}
