package task

import (
	"errors"

	"github.com/phrazzld/imggen-api/internal/store"
)

var (
	// ErrTaskNotFound is returned by Dispatch for an unknown task. It is
	// permanent: redelivering the same message will not help.
	ErrTaskNotFound = store.ErrTaskNotFound

	// ErrDeadlineExceeded marks a task failed because its absolute deadline passed.
	ErrDeadlineExceeded = errors.New("task deadline exceeded")

	// ErrLeaseExpired marks a task failed because its processing lease ran out.
	ErrLeaseExpired = errors.New("task processing lease expired")

	// ErrInterrupted is returned when the caller's context ends mid-execution.
	// The task is left processing and its lease expiry will fail it later.
	ErrInterrupted = errors.New("task execution interrupted")
)
