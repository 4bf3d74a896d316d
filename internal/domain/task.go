package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of an image generation task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// MaxPromptLength bounds the prompt accepted for a new task, in characters.
const MaxPromptLength = 2000

// MaxErrorLength bounds the failure message stored on a task, in characters.
const MaxErrorLength = 500

// Failure messages recorded on tasks that enter the failed state.
const (
	MsgDeadlineExceeded = "timed out: deadline exceeded"
	MsgLeaseExpired     = "timed out: processing lease expired"
	MsgEnqueueFailed    = "failed to enqueue task"
	msgGenerationPrefix = "generation failed: "
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// IsActive reports whether s is subject to deadline enforcement.
func (s TaskStatus) IsActive() bool {
	return s == TaskStatusQueued || s == TaskStatusProcessing
}

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusQueued, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// Task is a single request to turn a prompt into an image.
//
// Once Status is completed or failed no field changes again. LeaseExpiresAt is
// the ownership token of the worker that claimed the task: every write made on
// behalf of that worker is conditioned on the value it observed at claim time.
type Task struct {
	ID                  uuid.UUID  `json:"id"`
	OwnerID             string     `json:"owner_id,omitempty"`
	Prompt              string     `json:"prompt"`
	Model               string     `json:"model"`
	Status              TaskStatus `json:"status"`
	DeadlineAt          time.Time  `json:"deadline_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	LeaseExpiresAt      *time.Time `json:"lease_expires_at,omitempty"`
	ImageURL            *string    `json:"image_url,omitempty"`
	Error               *string    `json:"error,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// NewTask creates a queued task whose absolute deadline is now+horizon.
// The prompt is trimmed before validation.
func NewTask(ownerID, prompt, model string, now time.Time, horizon time.Duration) (*Task, error) {
	now = now.UTC()
	task := &Task{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Prompt:     strings.TrimSpace(prompt),
		Model:      model,
		Status:     TaskStatusQueued,
		DeadlineAt: now.Add(horizon),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidID)
	}
	if t.Prompt == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyPrompt)
	}
	if utf8.RuneCountInString(t.Prompt) > MaxPromptLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrPromptTooLong)
	}
	if t.Model == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyModel)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidTaskStatus)
	}
	if !t.DeadlineAt.After(t.CreatedAt) {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidDeadline)
	}
	return nil
}

// DeadlinePassed reports whether the absolute deadline is at or before now.
func (t *Task) DeadlinePassed(now time.Time) bool {
	return !t.DeadlineAt.After(now)
}

// LeaseExpired reports whether the processing lease is absent or at or before now.
func (t *Task) LeaseExpired(now time.Time) bool {
	return t.LeaseExpiresAt == nil || !t.LeaseExpiresAt.After(now)
}

// GenerationFailure builds the message recorded on a task whose generation
// attempt failed, truncated to MaxErrorLength characters.
func GenerationFailure(reason string) string {
	return TruncateMessage(msgGenerationPrefix+reason, MaxErrorLength)
}

// TruncateMessage shortens msg to at most limit characters without splitting
// a multi-byte character.
func TruncateMessage(msg string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:limit])
}
