package store

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
)

// DefaultListLimit is the number of tasks returned by ListByOwner when the
// caller does not ask for fewer.
const DefaultListLimit = 20

// TaskStore defines the interface for task persistence.
// Version: 1.0
type TaskStore interface {
	// Create saves a new task. Returns validation errors from the domain Task
	// if data is invalid and ErrDuplicate if the ID already exists.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListByOwner returns the newest tasks of an owner, at most limit of them.
	// A non-positive or too large limit falls back to DefaultListLimit.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.Task, error)

	// UpdateWhere applies patch to every task matching filter in a single
	// atomic statement and returns the number of tasks changed. Zero rows is
	// not an error: it means another writer got there first.
	UpdateWhere(ctx context.Context, filter TaskFilter, patch TaskPatch) (int64, error)

	// UpdateWhereReturning behaves like UpdateWhere and returns the tasks as
	// they are after the update.
	UpdateWhereReturning(ctx context.Context, filter TaskFilter, patch TaskPatch) ([]*domain.Task, error)
}

// TaskFilter is the predicate of a conditional update. Every set field is
// AND-ed together; a zero TaskFilter matches nothing and is rejected.
type TaskFilter struct {
	// ID restricts the update to a single task.
	ID *uuid.UUID
	// Statuses restricts the update to tasks in any of these states.
	Statuses []domain.TaskStatus
	// DeadlineAfter matches deadline_at > t.
	DeadlineAfter *time.Time
	// DeadlineAtOrBefore matches deadline_at <= t.
	DeadlineAtOrBefore *time.Time
	// LeaseEquals matches lease_expires_at = t exactly.
	LeaseEquals *time.Time
	// LeaseUnset matches lease_expires_at IS NULL.
	LeaseUnset bool
	// LeaseAtOrBefore matches lease_expires_at <= t.
	LeaseAtOrBefore *time.Time
}

// IsEmpty reports whether the filter has no conditions.
func (f TaskFilter) IsEmpty() bool {
	return f.ID == nil && len(f.Statuses) == 0 && f.DeadlineAfter == nil &&
		f.DeadlineAtOrBefore == nil && f.LeaseEquals == nil && !f.LeaseUnset &&
		f.LeaseAtOrBefore == nil
}

// Matches evaluates the filter against an in-memory task. SQL stores
// translate the same predicate into a WHERE clause.
func (f TaskFilter) Matches(t *domain.Task) bool {
	if f.IsEmpty() {
		return false
	}
	if f.ID != nil && t.ID != *f.ID {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, t.Status) {
		return false
	}
	if f.DeadlineAfter != nil && !t.DeadlineAt.After(*f.DeadlineAfter) {
		return false
	}
	if f.DeadlineAtOrBefore != nil && t.DeadlineAt.After(*f.DeadlineAtOrBefore) {
		return false
	}
	if f.LeaseUnset && t.LeaseExpiresAt != nil {
		return false
	}
	if f.LeaseEquals != nil && (t.LeaseExpiresAt == nil || !t.LeaseExpiresAt.Equal(*f.LeaseEquals)) {
		return false
	}
	if f.LeaseAtOrBefore != nil && (t.LeaseExpiresAt == nil || t.LeaseExpiresAt.After(*f.LeaseAtOrBefore)) {
		return false
	}
	return true
}

// TaskPatch lists the columns a conditional update sets. Nil fields are left
// untouched; updated_at is always refreshed by the store.
type TaskPatch struct {
	Status              domain.TaskStatus
	ProcessingStartedAt *time.Time
	LeaseExpiresAt      *time.Time
	ImageURL            *string
	Error               *string
	// ClearError sets error to NULL. It takes precedence over Error.
	ClearError  bool
	CompletedAt *time.Time
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Status == "" && p.ProcessingStartedAt == nil && p.LeaseExpiresAt == nil &&
		p.ImageURL == nil && p.Error == nil && !p.ClearError && p.CompletedAt == nil
}

// Apply writes the patch onto an in-memory task.
func (p TaskPatch) Apply(t *domain.Task, now time.Time) {
	if p.Status != "" {
		t.Status = p.Status
	}
	if p.ProcessingStartedAt != nil {
		v := *p.ProcessingStartedAt
		t.ProcessingStartedAt = &v
	}
	if p.LeaseExpiresAt != nil {
		v := *p.LeaseExpiresAt
		t.LeaseExpiresAt = &v
	}
	if p.ImageURL != nil {
		v := *p.ImageURL
		t.ImageURL = &v
	}
	switch {
	case p.ClearError:
		t.Error = nil
	case p.Error != nil:
		v := *p.Error
		t.Error = &v
	}
	if p.CompletedAt != nil {
		v := *p.CompletedAt
		t.CompletedAt = &v
	}
	t.UpdatedAt = now
}

// FailPatch moves a task to failed with the given message.
func FailPatch(message string) TaskPatch {
	return TaskPatch{Status: domain.TaskStatusFailed, Error: &message}
}

// CompletePatch moves a task to completed with its artifact.
func CompletePatch(imageURL string, completedAt time.Time) TaskPatch {
	return TaskPatch{Status: domain.TaskStatusCompleted, ImageURL: &imageURL, CompletedAt: &completedAt}
}

// ClaimPatch moves a task to processing under a fresh lease and clears any
// previous error.
func ClaimPatch(startedAt, leaseExpiresAt time.Time) TaskPatch {
	return TaskPatch{
		Status:              domain.TaskStatusProcessing,
		ProcessingStartedAt: &startedAt,
		LeaseExpiresAt:      &leaseExpiresAt,
		ClearError:          true,
	}
}
