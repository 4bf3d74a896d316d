package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/redact"
	"github.com/phrazzld/imggen-api/internal/store"
)

// executor runs the provider for a task this process has claimed and records
// the outcome under the claimed lease.
type executor struct {
	store    store.TaskStore
	provider generation.Provider
	cfg      Config
	logger   *slog.Logger
}

func newExecutor(taskStore store.TaskStore, provider generation.Provider, cfg Config, logger *slog.Logger) *executor {
	return &executor{
		store:    taskStore,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// run expects t to be the row returned by a successful claim.
func (e *executor) run(ctx context.Context, t *domain.Task) (Result, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)
	lease := *t.LeaseExpiresAt

	budget := e.cfg.TimeBudget(lease, e.cfg.Clock())
	log.Debug("starting generation",
		slog.String("model", t.Model),
		slog.Duration("time_budget", budget))

	imageURL, genErr := e.generate(ctx, t, budget)

	if genErr != nil && ctx.Err() != nil {
		// Shutting down: leave the task processing. Its lease will expire and
		// the next sweep or delivery fails it.
		log.Warn("generation interrupted", slog.String("error", genErr.Error()))
		return Result{Status: domain.TaskStatusProcessing}, fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}

	owned := store.TaskFilter{
		ID:          &t.ID,
		Statuses:    []domain.TaskStatus{domain.TaskStatusProcessing},
		LeaseEquals: &lease,
	}

	if genErr == nil {
		affected, err := e.store.UpdateWhere(ctx, owned, store.CompletePatch(imageURL, e.cfg.Clock()))
		if err != nil {
			return Result{Status: domain.TaskStatusProcessing}, fmt.Errorf("failed to record completion: %w", err)
		}
		if affected == 0 {
			// Another path judged the lease expired first; the artifact is dropped.
			log.Warn("discarding generated image, lease no longer held")
			return Result{Status: domain.TaskStatusFailed, LostRace: true}, nil
		}
		log.Info("task completed")
		return Result{Status: domain.TaskStatusCompleted}, nil
	}

	message := domain.GenerationFailure(redact.Error(genErr))
	affected, err := e.store.UpdateWhere(ctx, owned, store.FailPatch(message))
	if err != nil {
		return Result{Status: domain.TaskStatusProcessing, Failure: genErr},
			fmt.Errorf("failed to record generation failure: %w", err)
	}

	log.Info("task failed",
		slog.String("error", redact.Error(genErr)),
		slog.Int64("rows_affected", affected))
	return Result{Status: domain.TaskStatusFailed, Failure: genErr, LostRace: affected == 0}, nil
}

// generate submits the prompt and polls until the provider reports a final
// state or budget runs out. Poll errors are not retried.
func (e *executor) generate(ctx context.Context, t *domain.Task, budget time.Duration) (string, error) {
	budgetCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	handle, err := e.provider.Submit(budgetCtx, t.Prompt, t.Model)
	if err != nil {
		if budgetCtx.Err() != nil && ctx.Err() == nil {
			return "", generation.ErrTimedOut
		}
		return "", ensureWrapped(err, generation.ErrSubmitFailed)
	}

	log := logger.FromContextOrDefault(ctx, e.logger)
	log.Debug("generation submitted", slog.String("job", handle))

	for {
		res, err := e.provider.Poll(budgetCtx, handle)
		if err != nil {
			if budgetCtx.Err() != nil && ctx.Err() == nil {
				return "", generation.ErrTimedOut
			}
			if errors.Is(err, generation.ErrInvalidResponse) {
				return "", err
			}
			return "", ensureWrapped(err, generation.ErrPollFailed)
		}

		switch res.State {
		case generation.JobSucceeded:
			if res.ArtifactURL == "" {
				return "", fmt.Errorf("%w: success without image", generation.ErrInvalidResponse)
			}
			return res.ArtifactURL, nil
		case generation.JobFailed:
			if res.Reason != "" {
				return "", fmt.Errorf("%w: %s", generation.ErrGenerationFailed, res.Reason)
			}
			return "", generation.ErrGenerationFailed
		}

		timer := time.NewTimer(e.cfg.PollInterval)
		select {
		case <-budgetCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", generation.ErrTimedOut
		case <-timer.C:
		}
	}
}

func ensureWrapped(err, sentinel error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
