package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/mocks"
	"github.com/phrazzld/imggen-api/internal/service"
	"github.com/phrazzld/imggen-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 15, 30, 0, 0, time.UTC)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, s store.TaskStore, q *mocks.MockQueue) service.TaskService {
	t.Helper()

	svc, err := service.NewTaskService(s, q, service.TaskServiceConfig{
		DefaultModel:    "model-a",
		DeadlineHorizon: 2 * time.Minute,
		Clock:           func() time.Time { return fixedNow },
	}, setupTestLogger())
	require.NoError(t, err)
	return svc
}

func TestNewTaskService_Validation(t *testing.T) {
	t.Parallel()

	_, err := service.NewTaskService(nil, &mocks.MockQueue{}, service.TaskServiceConfig{DefaultModel: "m"}, nil)
	assert.Error(t, err)

	_, err = service.NewTaskService(mocks.NewMockTaskStore(), nil, service.TaskServiceConfig{DefaultModel: "m"}, nil)
	assert.Error(t, err)

	_, err = service.NewTaskService(mocks.NewMockTaskStore(), &mocks.MockQueue{}, service.TaskServiceConfig{}, nil)
	var svcErr *service.TaskServiceError
	assert.ErrorAs(t, err, &svcErr)
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	s := mocks.NewMockTaskStore()
	q := &mocks.MockQueue{}
	svc := newService(t, s, q)

	created, err := svc.CreateTask(context.Background(), "owner-1", "  a paper boat  ")
	require.NoError(t, err)

	assert.Equal(t, "a paper boat", created.Prompt)
	assert.Equal(t, "model-a", created.Model)
	assert.Equal(t, domain.TaskStatusQueued, created.Status)
	assert.Equal(t, fixedNow.Add(2*time.Minute), created.DeadlineAt)
	assert.Equal(t, []uuid.UUID{created.ID}, q.Enqueued())

	stored := s.Get(created.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.Equal(t, domain.TaskStatusQueued, stored.Status)
}

func TestCreateTask_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		owner   string
		prompt  string
		wantErr error
	}{
		{"blank prompt", "owner-1", "   \n\t", domain.ErrEmptyPrompt},
		{"prompt too long", "owner-1", strings.Repeat("x", domain.MaxPromptLength+1), domain.ErrPromptTooLong},
		{"no owner", "", "a prompt", domain.ErrValidation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := mocks.NewMockTaskStore()
			q := &mocks.MockQueue{}
			svc := newService(t, s, q)

			_, err := svc.CreateTask(context.Background(), tc.owner, tc.prompt)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Empty(t, q.Enqueued())
		})
	}
}

func TestCreateTask_EnqueueFailure(t *testing.T) {
	t.Parallel()

	s := mocks.NewMockTaskStore()
	q := &mocks.MockQueue{Err: errors.New("queue unreachable")}
	svc := newService(t, s, q)

	created, err := svc.CreateTask(context.Background(), "owner-1", "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrEnqueueFailed)
	require.NotNil(t, created)
	assert.Equal(t, domain.TaskStatusFailed, created.Status)

	stored := s.Get(created.ID)
	assert.Equal(t, domain.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.Error)
	assert.Equal(t, domain.MsgEnqueueFailed, *stored.Error)
}

func TestCreateTask_StoreFailure(t *testing.T) {
	t.Parallel()

	s := mocks.NewMockTaskStore()
	s.CreateFn = func(context.Context, *domain.Task) error { return errors.New("disk full") }
	q := &mocks.MockQueue{}
	svc := newService(t, s, q)

	_, err := svc.CreateTask(context.Background(), "owner-1", "p")
	var svcErr *service.TaskServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "create_task", svcErr.Operation)
	assert.Empty(t, q.Enqueued())
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	s := mocks.NewMockTaskStore()
	svc := newService(t, s, &mocks.MockQueue{})
	tk, err := domain.NewTask("owner-1", "p", "m", fixedNow, time.Minute)
	require.NoError(t, err)
	s.Put(tk)

	got, err := svc.GetTask(context.Background(), "owner-1", tk.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	_, err = svc.GetTask(context.Background(), "owner-2", tk.ID)
	assert.ErrorIs(t, err, service.ErrTaskNotOwned)

	_, err = svc.GetTask(context.Background(), "owner-1", uuid.New())
	assert.ErrorIs(t, err, service.ErrTaskNotFound)
}

func TestListTasks(t *testing.T) {
	t.Parallel()

	s := mocks.NewMockTaskStore()
	svc := newService(t, s, &mocks.MockQueue{})

	for i := 0; i < 25; i++ {
		tk, err := domain.NewTask("owner-1", "p", "m", fixedNow.Add(time.Duration(i)*time.Second), time.Minute)
		require.NoError(t, err)
		s.Put(tk)
	}
	other, err := domain.NewTask("owner-2", "p", "m", fixedNow, time.Minute)
	require.NoError(t, err)
	s.Put(other)

	tasks, err := svc.ListTasks(context.Background(), "owner-1", 0)
	require.NoError(t, err)
	require.Len(t, tasks, store.DefaultListLimit)
	assert.True(t, tasks[0].CreatedAt.After(tasks[1].CreatedAt), "newest first")

	tasks, err = svc.ListTasks(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.NotNil(t, tasks)
}
