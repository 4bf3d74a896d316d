package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/queue"
	"github.com/phrazzld/imggen-api/internal/task"
)

// Dispatcher runs one delivery of a task through the lifecycle engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) (task.Result, error)
}

// NewDeliveryHandler adapts a Dispatcher to the queue transports. Unknown
// tasks are dropped; any other invocation error asks for redelivery.
func NewDeliveryHandler(d Dispatcher) queue.Handler {
	return func(ctx context.Context, id uuid.UUID) error {
		res, err := d.Dispatch(ctx, id)
		if err != nil {
			if errors.Is(err, task.ErrTaskNotFound) {
				return queue.Permanent(err)
			}
			return err
		}

		logger.FromContext(ctx).Debug("delivery handled",
			slog.String("status", string(res.Status)),
			slog.Bool("claimed", res.Claimed),
			slog.Bool("lost_race", res.LostRace))
		return nil
	}
}
