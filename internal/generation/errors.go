package generation

import "errors"

// Common errors returned by providers.
var (
	// ErrSubmitFailed is returned when the provider did not accept a job.
	ErrSubmitFailed = errors.New("provider submit failed")

	// ErrPollFailed is returned when a status request could not be completed.
	ErrPollFailed = errors.New("provider poll failed")

	// ErrGenerationFailed is returned when the provider reports that the job failed.
	ErrGenerationFailed = errors.New("provider reported generation failure")

	// ErrInvalidResponse is returned when a provider response cannot be parsed
	// or lacks a required field.
	ErrInvalidResponse = errors.New("invalid response from provider")

	// ErrTimedOut is returned when a job did not finish within its time budget.
	ErrTimedOut = errors.New("generation timed out")

	// ErrUnknownJob is returned when polling a handle the provider does not know.
	ErrUnknownJob = errors.New("unknown generation job")

	// ErrInvalidConfig is returned when the provider configuration is invalid.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)
