package api

import (
	"time"

	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/task"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Prompt string `json:"prompt" validate:"required,max=2000"`
}

// CreateTaskResponse is returned when a task has been accepted.
type CreateTaskResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// TaskResponse is the client view of a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Prompt      string     `json:"prompt"`
	Status      string     `json:"status"`
	ImageURL    *string    `json:"imageUrl"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

// ListTasksResponse wraps the caller's tasks.
type ListTasksResponse struct {
	Tasks []TaskResponse `json:"tasks"`
}

// WorkerRequest is a push delivery of one task.
type WorkerRequest struct {
	TaskID string `json:"taskId"`
}

// WorkerResponse reports what the delivery did.
type WorkerResponse struct {
	OK     bool   `json:"ok"`
	Status string `json:"status"`
}

// ReconcileResponse reports one reconcile sweep.
type ReconcileResponse struct {
	OK bool `json:"ok"`
	task.SweepResult
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		Prompt:      t.Prompt,
		Status:      string(t.Status),
		ImageURL:    t.ImageURL,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		CompletedAt: t.CompletedAt,
	}
}

func tasksToResponse(tasks []*domain.Task) ListTasksResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return ListTasksResponse{Tasks: out}
}
