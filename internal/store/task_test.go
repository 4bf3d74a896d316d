package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestTaskFilter_Matches(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	lease := now.Add(30 * time.Second)
	task := &domain.Task{
		ID:             uuid.New(),
		Status:         domain.TaskStatusProcessing,
		DeadlineAt:     now.Add(time.Minute),
		LeaseExpiresAt: &lease,
	}

	tests := []struct {
		name   string
		filter TaskFilter
		want   bool
	}{
		{"empty filter matches nothing", TaskFilter{}, false},
		{"id match", TaskFilter{ID: &task.ID}, true},
		{"id mismatch", TaskFilter{ID: ptr(uuid.New())}, false},
		{"status in set", TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusProcessing}}, true},
		{"status not in set", TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusQueued}}, false},
		{"deadline after now", TaskFilter{DeadlineAfter: &now}, true},
		{"deadline not after its own value", TaskFilter{DeadlineAfter: ptr(task.DeadlineAt)}, false},
		{"deadline at or before equal", TaskFilter{DeadlineAtOrBefore: ptr(task.DeadlineAt)}, true},
		{"deadline at or before earlier", TaskFilter{DeadlineAtOrBefore: &now}, false},
		{"lease equals", TaskFilter{LeaseEquals: ptr(lease)}, true},
		{"lease differs", TaskFilter{LeaseEquals: ptr(lease.Add(time.Microsecond))}, false},
		{"lease unset on leased task", TaskFilter{LeaseUnset: true}, false},
		{"lease expired at boundary", TaskFilter{LeaseAtOrBefore: ptr(lease)}, true},
		{"lease not yet expired", TaskFilter{LeaseAtOrBefore: &now}, false},
		{
			"combined claim predicate",
			TaskFilter{ID: &task.ID, Statuses: []domain.TaskStatus{domain.TaskStatusProcessing}, LeaseEquals: ptr(lease)},
			true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.filter.Matches(task))
		})
	}
}

func TestTaskFilter_LeaseUnset(t *testing.T) {
	t.Parallel()

	task := &domain.Task{ID: uuid.New(), Status: domain.TaskStatusProcessing}
	assert.True(t, TaskFilter{LeaseUnset: true}.Matches(task))
	assert.False(t, TaskFilter{LeaseAtOrBefore: ptr(time.Now())}.Matches(task), "null lease never compares")
}

func TestTaskPatch_Apply(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	oldErr := "previous failure"
	task := &domain.Task{Status: domain.TaskStatusQueued, Error: &oldErr}

	ClaimPatch(now, now.Add(time.Minute)).Apply(task, now)
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Nil(t, task.Error)
	assert.Equal(t, now.Add(time.Minute), *task.LeaseExpiresAt)
	assert.Equal(t, now, *task.ProcessingStartedAt)
	assert.Equal(t, now, task.UpdatedAt)

	CompletePatch("https://img/1.png", now).Apply(task, now)
	assert.Equal(t, domain.TaskStatusCompleted, task.Status)
	assert.Equal(t, "https://img/1.png", *task.ImageURL)
	assert.Equal(t, now, *task.CompletedAt)

	other := &domain.Task{Status: domain.TaskStatusProcessing}
	FailPatch("boom").Apply(other, now)
	assert.Equal(t, domain.TaskStatusFailed, other.Status)
	assert.Equal(t, "boom", *other.Error)
}

func TestTaskPatch_IsEmpty(t *testing.T) {
	t.Parallel()

	assert.True(t, TaskPatch{}.IsEmpty())
	assert.False(t, TaskPatch{ClearError: true}.IsEmpty())
	assert.False(t, FailPatch("x").IsEmpty())
}

func TestIsNotFoundError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsNotFoundError(nil))
	assert.False(t, IsNotFoundError(errors.New("some error")))
	assert.True(t, IsNotFoundError(ErrNotFound))
	assert.True(t, IsNotFoundError(ErrTaskNotFound))
	assert.True(t, IsNotFoundError(fmt.Errorf("lookup: %w", ErrTaskNotFound)))
}

func TestStoreError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewStoreError("task", "update", "conditional update failed", cause)
	assert.Equal(t, "update operation on task failed: conditional update failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)

	bare := NewStoreError("task", "create", "invalid", nil)
	assert.Equal(t, "create operation on task failed: invalid", bare.Error())
}
