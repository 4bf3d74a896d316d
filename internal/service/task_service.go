package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/queue"
	"github.com/phrazzld/imggen-api/internal/redact"
	"github.com/phrazzld/imggen-api/internal/store"
)

// TaskService creates tasks and reads them back on behalf of their owner.
type TaskService interface {
	// CreateTask stores a queued task for prompt and publishes it for dispatch.
	CreateTask(ctx context.Context, ownerID, prompt string) (*domain.Task, error)

	// GetTask returns a task owned by ownerID.
	GetTask(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error)

	// ListTasks returns the newest tasks of ownerID.
	ListTasks(ctx context.Context, ownerID string, limit int) ([]*domain.Task, error)
}

// TaskServiceConfig holds the creation-time settings.
type TaskServiceConfig struct {
	DefaultModel    string
	DeadlineHorizon time.Duration
	Clock           func() time.Time
}

type taskServiceImpl struct {
	store  store.TaskStore
	queue  queue.Queue
	cfg    TaskServiceConfig
	logger *slog.Logger
}

// NewTaskService creates a TaskService.
// It returns an error if any of the required dependencies are missing.
func NewTaskService(
	taskStore store.TaskStore,
	q queue.Queue,
	cfg TaskServiceConfig,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "taskStore cannot be nil"}
	}
	if q == nil {
		return nil, &TaskServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if cfg.DefaultModel == "" {
		return nil, &TaskServiceError{Operation: "create_service", Message: "default model cannot be empty"}
	}
	if cfg.DeadlineHorizon <= 0 {
		cfg.DeadlineHorizon = 120 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) }
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		store:  taskStore,
		queue:  q,
		cfg:    cfg,
		logger: logger.With("component", "task_service"),
	}, nil
}

// CreateTask implements TaskService.
func (s *taskServiceImpl) CreateTask(ctx context.Context, ownerID, prompt string) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrValidation)
	}

	now := s.cfg.Clock()
	t, err := domain.NewTask(ownerID, prompt, s.cfg.DefaultModel, now, s.cfg.DeadlineHorizon)
	if err != nil {
		return nil, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		log.Error("failed to save task", "error", err)
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}

	log = log.With("task_id", t.ID.String())

	if err := s.queue.Enqueue(ctx, t.ID); err != nil {
		log.Error("failed to enqueue task", "error", redact.Error(err))

		// Scoped to queued: a delivery that somehow got through wins.
		affected, markErr := s.store.UpdateWhere(ctx,
			store.TaskFilter{ID: &t.ID, Statuses: []domain.TaskStatus{domain.TaskStatusQueued}},
			store.FailPatch(domain.MsgEnqueueFailed),
		)
		if markErr != nil {
			log.Error("failed to mark unqueued task failed", "error", markErr)
			return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, errors.Join(err, markErr))
		}
		if affected > 0 {
			msg := domain.MsgEnqueueFailed
			t.Status = domain.TaskStatusFailed
			t.Error = &msg
		}
		return t, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
	}

	log.Info("task created", "deadline_at", t.DeadlineAt)
	return t, nil
}

// GetTask implements TaskService.
func (s *taskServiceImpl) GetTask(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Task, error) {
	t, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to load task", err)
	}
	if t.OwnerID != ownerID {
		return nil, ErrTaskNotOwned
	}
	return t, nil
}

// ListTasks implements TaskService.
func (s *taskServiceImpl) ListTasks(ctx context.Context, ownerID string, limit int) ([]*domain.Task, error) {
	if ownerID == "" {
		return []*domain.Task{}, nil
	}
	tasks, err := s.store.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}
