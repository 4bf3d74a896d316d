package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/store"
)

// SweepResult counts the tasks failed by one Reconciler sweep.
type SweepResult struct {
	DeadlineFailed int64 `json:"deadlineFailed"`
	LeaseFailed    int64 `json:"leaseFailed"`
}

// Reconciler fails tasks whose deadline passed or whose processing lease
// expired, recovering from workers that crashed without reporting back.
type Reconciler struct {
	store  store.TaskStore
	cfg    Config
	logger *slog.Logger
}

// NewReconciler creates a Reconciler. Zero fields of cfg take their defaults.
func NewReconciler(taskStore store.TaskStore, cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  taskStore,
		cfg:    cfg.withDefaults(),
		logger: logger.With(slog.String("component", "reconciler")),
	}
}

// Sweep runs both bulk updates once. They are independent: a failure of one
// does not prevent the other, and both errors are returned joined. Running
// Sweep again immediately changes nothing.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	now := r.cfg.Clock()
	var result SweepResult

	deadlineFailed, deadlineErr := r.store.UpdateWhere(ctx,
		store.TaskFilter{
			Statuses:           []domain.TaskStatus{domain.TaskStatusQueued, domain.TaskStatusProcessing},
			DeadlineAtOrBefore: &now,
		},
		store.FailPatch(domain.MsgDeadlineExceeded),
	)
	if deadlineErr != nil {
		deadlineErr = fmt.Errorf("deadline reconcile failed: %w", deadlineErr)
	} else {
		result.DeadlineFailed = deadlineFailed
	}

	leaseFailed, leaseErr := r.store.UpdateWhere(ctx,
		store.TaskFilter{
			Statuses:        []domain.TaskStatus{domain.TaskStatusProcessing},
			LeaseAtOrBefore: &now,
		},
		store.FailPatch(domain.MsgLeaseExpired),
	)
	if leaseErr != nil {
		leaseErr = fmt.Errorf("lease reconcile failed: %w", leaseErr)
	} else {
		result.LeaseFailed = leaseFailed
	}

	if err := errors.Join(deadlineErr, leaseErr); err != nil {
		r.logger.Error("reconcile sweep failed", "error", err)
		return result, err
	}

	if result.DeadlineFailed > 0 || result.LeaseFailed > 0 {
		r.logger.Info("reconcile sweep failed stale tasks",
			"deadline_failed", result.DeadlineFailed,
			"lease_failed", result.LeaseFailed)
	} else {
		r.logger.Debug("reconcile sweep found nothing to do")
	}
	return result, nil
}

// Run sweeps once immediately and then every ReconcileInterval until ctx is
// cancelled. Sweep errors are logged and the loop continues.
func (r *Reconciler) Run(ctx context.Context) error {
	r.logger.Info("starting reconciler", "interval", r.cfg.ReconcileInterval.String())

	ticker := time.NewTicker(r.cfg.ReconcileInterval)
	defer ticker.Stop()

	_, _ = r.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping reconciler")
			return nil
		case <-ticker.C:
			_, _ = r.Sweep(ctx)
		}
	}
}
