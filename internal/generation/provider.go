package generation

import "context"

// JobState is the provider-side state of a submitted job.
type JobState string

// Possible job states.
const (
	JobPending   JobState = "pending"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// JobResult is a single poll observation.
type JobResult struct {
	State JobState
	// ArtifactURL locates the generated image when State is JobSucceeded.
	ArtifactURL string
	// Reason is a provider-supplied explanation when State is JobFailed.
	Reason string
}

// Provider submits image generation jobs and reports their progress.
// Version: 1.0
type Provider interface {
	// Submit starts generating an image for prompt with the given model and
	// returns an opaque job handle. Errors wrap ErrSubmitFailed.
	Submit(ctx context.Context, prompt, model string) (string, error)

	// Poll reports the current state of a job. Transport or decoding errors
	// wrap ErrPollFailed or ErrInvalidResponse. A failed job is reported as
	// JobFailed with a nil error.
	Poll(ctx context.Context, handle string) (JobResult, error)
}
