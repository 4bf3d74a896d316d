package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/store"
)

const taskColumns = `id, owner_id, prompt, model, status, deadline_at, processing_started_at,
	lease_expires_at, image_url, error, completed_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx returns a store that runs its statements inside tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{db: tx, logger: s.logger}
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during create",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return err
	}

	query := `
		INSERT INTO tasks (id, owner_id, prompt, model, status, deadline_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		nullString(task.OwnerID),
		task.Prompt,
		task.Model,
		string(task.Status),
		task.DeadlineAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return MapError(err)
	}

	log.Debug("task created",
		slog.String("task_id", task.ID.String()),
		slog.Time("deadline_at", task.DeadlineAt))
	return nil
}

// GetByID implements store.TaskStore.GetByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}

	return task, nil
}

// ListByOwner implements store.TaskStore.ListByOwner
func (s *PostgresTaskStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if limit <= 0 || limit > store.DefaultListLimit {
		limit = store.DefaultListLimit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		log.Error("failed to list tasks", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks, err := scanTasks(rows)
	if err != nil {
		log.Error("failed to scan tasks", slog.String("error", err.Error()))
		return nil, err
	}
	return tasks, nil
}

// UpdateWhere implements store.TaskStore.UpdateWhere
func (s *PostgresTaskStore) UpdateWhere(ctx context.Context, filter store.TaskFilter, patch store.TaskPatch) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := buildUpdate(filter, patch, false)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("conditional update failed", slog.String("error", err.Error()))
		return 0, store.NewStoreError("task", "update", "conditional update failed", MapError(err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	log.Debug("conditional update applied",
		slog.String("status", string(patch.Status)),
		slog.Int64("rows_affected", affected))
	return affected, nil
}

// UpdateWhereReturning implements store.TaskStore.UpdateWhereReturning
func (s *PostgresTaskStore) UpdateWhereReturning(
	ctx context.Context,
	filter store.TaskFilter,
	patch store.TaskPatch,
) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args, err := buildUpdate(filter, patch, true)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("conditional update failed", slog.String("error", err.Error()))
		return nil, store.NewStoreError("task", "update", "conditional update failed", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	return scanTasks(rows)
}

// buildUpdate renders a conditional update. Placeholders are numbered in the
// order SET columns then WHERE predicates.
func buildUpdate(filter store.TaskFilter, patch store.TaskPatch, returning bool) (string, []any, error) {
	if filter.IsEmpty() {
		return "", nil, store.ErrEmptyFilter
	}
	if patch.IsEmpty() {
		return "", nil, store.ErrEmptyPatch
	}

	var (
		sets  []string
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.Status != "" {
		sets = append(sets, "status = "+arg(string(patch.Status)))
	}
	if patch.ProcessingStartedAt != nil {
		sets = append(sets, "processing_started_at = "+arg(*patch.ProcessingStartedAt))
	}
	if patch.LeaseExpiresAt != nil {
		sets = append(sets, "lease_expires_at = "+arg(*patch.LeaseExpiresAt))
	}
	if patch.ImageURL != nil {
		sets = append(sets, "image_url = "+arg(*patch.ImageURL))
	}
	switch {
	case patch.ClearError:
		sets = append(sets, "error = NULL")
	case patch.Error != nil:
		sets = append(sets, "error = "+arg(*patch.Error))
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = "+arg(*patch.CompletedAt))
	}
	sets = append(sets, "updated_at = NOW()")

	if filter.ID != nil {
		where = append(where, "id = "+arg(*filter.ID))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			placeholders[i] = arg(string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.DeadlineAfter != nil {
		where = append(where, "deadline_at > "+arg(*filter.DeadlineAfter))
	}
	if filter.DeadlineAtOrBefore != nil {
		where = append(where, "deadline_at <= "+arg(*filter.DeadlineAtOrBefore))
	}
	if filter.LeaseUnset {
		where = append(where, "lease_expires_at IS NULL")
	}
	if filter.LeaseEquals != nil {
		where = append(where, "lease_expires_at = "+arg(*filter.LeaseEquals))
	}
	if filter.LeaseAtOrBefore != nil {
		where = append(where, "lease_expires_at <= "+arg(*filter.LeaseAtOrBefore))
	}

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	if returning {
		query += " RETURNING " + taskColumns
	}
	return query, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                                   domain.Task
		status                                 string
		ownerID, imageURL, errMsg              sql.NullString
		startedAt, leaseExpiresAt, completedAt sql.NullTime
	)

	err := row.Scan(
		&task.ID,
		&ownerID,
		&task.Prompt,
		&task.Model,
		&status,
		&task.DeadlineAt,
		&startedAt,
		&leaseExpiresAt,
		&imageURL,
		&errMsg,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = domain.TaskStatus(status)
	task.OwnerID = ownerID.String
	task.ProcessingStartedAt = timePtr(startedAt)
	task.LeaseExpiresAt = timePtr(leaseExpiresAt)
	task.CompletedAt = timePtr(completedAt)
	task.ImageURL = stringPtr(imageURL)
	task.Error = stringPtr(errMsg)
	return &task, nil
}

func scanTasks(rows *sql.Rows) ([]*domain.Task, error) {
	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return tasks, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
