package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/store"
)

// MockTaskStore implements store.TaskStore in memory.
//
// Each operation runs under a single mutex, so a conditional update is
// atomic with respect to every other call, matching a single SQL statement.
// The *Fn fields override individual methods when set.
type MockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	CreateFn               func(ctx context.Context, task *domain.Task) error
	GetByIDFn              func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	UpdateWhereFn          func(ctx context.Context, filter store.TaskFilter, patch store.TaskPatch) (int64, error)
	UpdateWhereReturningFn func(ctx context.Context, filter store.TaskFilter, patch store.TaskPatch) ([]*domain.Task, error)

	// AfterGet runs after GetByID reads a task and before it returns,
	// letting tests interleave a concurrent writer.
	AfterGet func(id uuid.UUID)

	updates int
}

// NewMockTaskStore creates an empty MockTaskStore.
func NewMockTaskStore() *MockTaskStore {
	return &MockTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

var _ store.TaskStore = (*MockTaskStore)(nil)

// Put stores a copy of task as-is, bypassing validation.
func (m *MockTaskStore) Put(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = cloneTask(task)
}

// Get returns a copy of the stored task, or nil.
func (m *MockTaskStore) Get(id uuid.UUID) *domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		return cloneTask(t)
	}
	return nil
}

// UpdateCount returns how many conditional updates were attempted.
func (m *MockTaskStore) UpdateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updates
}

// Create implements store.TaskStore.
func (m *MockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, task)
	}
	if err := task.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements store.TaskStore.
func (m *MockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.GetByIDFn != nil {
		return m.GetByIDFn(ctx, id)
	}

	t := m.Get(id)
	if t == nil {
		return nil, store.ErrTaskNotFound
	}
	if m.AfterGet != nil {
		m.AfterGet(id)
	}
	return t, nil
}

// ListByOwner implements store.TaskStore.
func (m *MockTaskStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]*domain.Task, error) {
	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*domain.Task, 0)
	for _, t := range m.tasks {
		if t.OwnerID == ownerID {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpdateWhere implements store.TaskStore.
func (m *MockTaskStore) UpdateWhere(ctx context.Context, filter store.TaskFilter, patch store.TaskPatch) (int64, error) {
	if m.UpdateWhereFn != nil {
		return m.UpdateWhereFn(ctx, filter, patch)
	}
	updated, err := m.apply(filter, patch)
	return int64(len(updated)), err
}

// UpdateWhereReturning implements store.TaskStore.
func (m *MockTaskStore) UpdateWhereReturning(ctx context.Context, filter store.TaskFilter, patch store.TaskPatch) ([]*domain.Task, error) {
	if m.UpdateWhereReturningFn != nil {
		return m.UpdateWhereReturningFn(ctx, filter, patch)
	}
	return m.apply(filter, patch)
}

func (m *MockTaskStore) apply(filter store.TaskFilter, patch store.TaskPatch) ([]*domain.Task, error) {
	if filter.IsEmpty() {
		return nil, store.ErrEmptyFilter
	}
	if patch.IsEmpty() {
		return nil, store.ErrEmptyPatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++

	now := time.Now().UTC()
	updated := make([]*domain.Task, 0)
	for _, t := range m.tasks {
		if filter.Matches(t) {
			patch.Apply(t, now)
			updated = append(updated, cloneTask(t))
		}
	}
	return updated, nil
}

func cloneTask(t *domain.Task) *domain.Task {
	c := *t
	c.ProcessingStartedAt = cloneTime(t.ProcessingStartedAt)
	c.LeaseExpiresAt = cloneTime(t.LeaseExpiresAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.ImageURL = cloneString(t.ImageURL)
	c.Error = cloneString(t.Error)
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
