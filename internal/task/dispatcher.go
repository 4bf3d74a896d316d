package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/store"
)

// Result describes what one Dispatch invocation observed and did.
type Result struct {
	// Status is the task state as seen by this invocation when it returned.
	Status domain.TaskStatus

	// Claimed is true when this invocation won the claim and ran the provider.
	Claimed bool

	// Failure is the cause this invocation tried to record when it failed
	// the task: ErrDeadlineExceeded, ErrLeaseExpired, or a generation error.
	Failure error

	// LostRace is true when a conditional write of this invocation affected
	// no rows because another writer changed the task first.
	LostRace bool
}

// Dispatcher is the entry point for every queue delivery. It is idempotent:
// delivering the same task ID any number of times, concurrently or not,
// results in at most one provider execution per claim.
type Dispatcher struct {
	store    store.TaskStore
	executor *executor
	cfg      Config
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. Zero fields of cfg take their defaults.
func NewDispatcher(taskStore store.TaskStore, provider generation.Provider, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	logger = logger.With(slog.String("component", "dispatcher"))

	return &Dispatcher{
		store:    taskStore,
		executor: newExecutor(taskStore, provider, cfg, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Dispatch advances the task identified by id as far as this invocation is
// allowed to:
//
//   - a task past its deadline is failed, whatever else is going on;
//   - completed and failed tasks are left alone;
//   - a processing task whose lease ran out is failed, otherwise left to its owner;
//   - a queued task is claimed and, if the claim wins, executed synchronously.
//
// The returned error is non-nil only when the invocation could not do its
// job (unknown task, store failure, interrupted execution) and redelivery
// is the right response. Recorded task failures are reported in Result.
func (d *Dispatcher) Dispatch(ctx context.Context, id uuid.UUID) (Result, error) {
	log := logger.FromContextOrDefault(ctx, d.logger).With(slog.String("task_id", id.String()))
	ctx = logger.WithLogger(ctx, log)

	t, err := d.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("dispatch for unknown task")
			return Result{}, fmt.Errorf("dispatch %s: %w", id, ErrTaskNotFound)
		}
		return Result{}, fmt.Errorf("dispatch %s: failed to load task: %w", id, err)
	}

	now := d.cfg.Clock()

	if t.Status.IsActive() && t.DeadlinePassed(now) {
		return d.failDeadline(ctx, log, t)
	}

	switch t.Status {
	case domain.TaskStatusCompleted, domain.TaskStatusFailed:
		log.Debug("task already terminal", slog.String("status", string(t.Status)))
		return Result{Status: t.Status}, nil

	case domain.TaskStatusProcessing:
		if t.LeaseExpired(now) {
			return d.failExpiredLease(ctx, log, t)
		}
		log.Debug("task owned by another worker", slog.Time("lease_expires_at", *t.LeaseExpiresAt))
		return Result{Status: domain.TaskStatusProcessing}, nil

	case domain.TaskStatusQueued:
		return d.claimAndExecute(ctx, log, t, now)
	}

	return Result{}, fmt.Errorf("dispatch %s: %w: %q", id, domain.ErrInvalidTaskStatus, t.Status)
}

func (d *Dispatcher) failDeadline(ctx context.Context, log *slog.Logger, t *domain.Task) (Result, error) {
	affected, err := d.store.UpdateWhere(ctx,
		store.TaskFilter{
			ID:       &t.ID,
			Statuses: []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusProcessing},
		},
		store.FailPatch(domain.MsgDeadlineExceeded),
	)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch %s: failed to record deadline: %w", t.ID, err)
	}

	log.Info("task failed: deadline exceeded",
		slog.Time("deadline_at", t.DeadlineAt),
		slog.Int64("rows_affected", affected))
	return Result{
		Status:   domain.TaskStatusFailed,
		Failure:  ErrDeadlineExceeded,
		LostRace: affected == 0,
	}, nil
}

// failExpiredLease is scoped to the lease value this invocation read, so a
// concurrent reclaim under a new lease is never failed by mistake.
func (d *Dispatcher) failExpiredLease(ctx context.Context, log *slog.Logger, t *domain.Task) (Result, error) {
	filter := store.TaskFilter{
		ID:       &t.ID,
		Statuses: []domain.TaskStatus{domain.TaskStatusProcessing},
	}
	if t.LeaseExpiresAt == nil {
		filter.LeaseUnset = true
	} else {
		filter.LeaseEquals = t.LeaseExpiresAt
	}

	affected, err := d.store.UpdateWhere(ctx, filter, store.FailPatch(domain.MsgLeaseExpired))
	if err != nil {
		return Result{}, fmt.Errorf("dispatch %s: failed to record lease expiry: %w", t.ID, err)
	}

	log.Info("task failed: processing lease expired", slog.Int64("rows_affected", affected))
	return Result{
		Status:   domain.TaskStatusFailed,
		Failure:  ErrLeaseExpired,
		LostRace: affected == 0,
	}, nil
}

func (d *Dispatcher) claimAndExecute(ctx context.Context, log *slog.Logger, t *domain.Task, now time.Time) (Result, error) {
	claimed, err := d.store.UpdateWhereReturning(ctx,
		store.TaskFilter{
			ID:            &t.ID,
			Statuses:      []domain.TaskStatus{domain.TaskStatusQueued},
			DeadlineAfter: &now,
		},
		store.ClaimPatch(now, now.Add(d.cfg.LeaseDuration)),
	)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch %s: failed to claim: %w", t.ID, err)
	}
	if len(claimed) == 0 {
		log.Debug("claim lost to a concurrent delivery")
		return Result{Status: domain.TaskStatusQueued, LostRace: true}, nil
	}

	owned := claimed[0]
	log.Info("task claimed", slog.Time("lease_expires_at", *owned.LeaseExpiresAt))

	res, err := d.executor.run(ctx, owned)
	res.Claimed = true
	return res, err
}
