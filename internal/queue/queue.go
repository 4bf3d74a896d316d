package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors returned by queue implementations.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Queue publishes task IDs for asynchronous dispatch.
type Queue interface {
	Enqueue(ctx context.Context, taskID uuid.UUID) error
}

// Handler processes one delivery. A nil error acknowledges it.
type Handler func(ctx context.Context, taskID uuid.UUID) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth redelivering. The delivery is
// acknowledged and dropped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
