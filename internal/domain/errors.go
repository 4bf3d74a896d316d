// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyPrompt is returned when a task is created without a prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrPromptTooLong is returned when a prompt exceeds MaxPromptLength.
	ErrPromptTooLong = errors.New("prompt too long")

	// ErrEmptyModel is returned when a task has no provider model.
	ErrEmptyModel = errors.New("model cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not one of the known values.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidDeadline is returned when a task deadline is not after its creation time.
	ErrInvalidDeadline = errors.New("deadline must be after creation time")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)
