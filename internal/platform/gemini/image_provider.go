package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/redact"
	"google.golang.org/genai"
)

// jobRetention is how long a finished job waits to be polled before it is
// forgotten.
const jobRetention = 10 * time.Minute

// imageGenerator is the part of genai.Models the provider uses.
type imageGenerator interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Config configures an ImageProvider.
type Config struct {
	APIKey string
	// Timeout bounds one background generation.
	Timeout time.Duration
}

// ImageProvider implements generation.Provider on top of Imagen.
type ImageProvider struct {
	models  imageGenerator
	timeout time.Duration
	logger  *slog.Logger

	// jobs maps a handle to its *job.
	jobs sync.Map
}

type job struct {
	done   chan struct{}
	result generation.JobResult
}

var _ generation.Provider = (*ImageProvider)(nil)

// NewImageProvider creates an ImageProvider with a Gemini API client.
//
// Parameters:
//   - ctx: Context for client construction
//   - cfg: API key and per-job timeout
//   - logger: A structured logger for operation logging
//
// Returns:
//   - A ready ImageProvider, or an error wrapping generation.ErrInvalidConfig
func NewImageProvider(ctx context.Context, cfg Config, logger *slog.Logger) (*ImageProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newImageProvider(client.Models, cfg.Timeout, logger), nil
}

func newImageProvider(models imageGenerator, timeout time.Duration, log *slog.Logger) *ImageProvider {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &ImageProvider{
		models:  models,
		timeout: timeout,
		logger:  log.With(slog.String("component", "gemini")),
	}
}

// Submit starts generation in the background and returns its handle. The
// job survives cancellation of ctx but not its deadline: it is bounded by
// whichever of the ctx deadline and the provider timeout comes first.
func (p *ImageProvider) Submit(ctx context.Context, prompt, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrSubmitFailed, err)
	}

	handle := uuid.NewString()
	j := &job{done: make(chan struct{})}
	p.jobs.Store(handle, j)

	log := logger.FromContextOrDefault(ctx, p.logger).With(slog.String("job", handle))
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	go func() {
		defer cancel()
		j.result = p.generate(jobCtx, prompt, model)
		close(j.done)
		log.Debug("gemini job finished", slog.String("state", string(j.result.State)))

		time.AfterFunc(jobRetention, func() { p.jobs.Delete(handle) })
	}()

	log.Debug("gemini job started", slog.String("model", model))
	return handle, nil
}

// Poll implements generation.Provider. A finished job is reported once and
// then forgotten.
func (p *ImageProvider) Poll(ctx context.Context, handle string) (generation.JobResult, error) {
	if err := ctx.Err(); err != nil {
		return generation.JobResult{}, err
	}

	v, ok := p.jobs.Load(handle)
	if !ok {
		return generation.JobResult{}, fmt.Errorf("%w: %s", generation.ErrUnknownJob, handle)
	}
	j := v.(*job)

	select {
	case <-j.done:
		p.jobs.Delete(handle)
		return j.result, nil
	default:
		return generation.JobResult{State: generation.JobPending}, nil
	}
}

func (p *ImageProvider) generate(ctx context.Context, prompt, model string) generation.JobResult {
	resp, err := p.models.GenerateImages(ctx, model, prompt, &genai.GenerateImagesConfig{
		OutputMIMEType: "image/png",
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(generation.ErrTimedOut.Error())
		}
		return failed(redact.Error(err))
	}
	return resultFromResponse(resp)
}

func resultFromResponse(resp *genai.GenerateImagesResponse) generation.JobResult {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return failed(ErrNoImage.Error())
	}

	img := resp.GeneratedImages[0]
	if img.RAIFilteredReason != "" {
		return failed("filtered: " + img.RAIFilteredReason)
	}
	if img.Image == nil {
		return failed(ErrNoImage.Error())
	}

	switch {
	case img.Image.GCSURI != "":
		return generation.JobResult{State: generation.JobSucceeded, ArtifactURL: img.Image.GCSURI}
	case len(img.Image.ImageBytes) > 0:
		mime := img.Image.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return generation.JobResult{
			State:       generation.JobSucceeded,
			ArtifactURL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Image.ImageBytes),
		}
	}
	return failed(ErrNoImage.Error())
}

func failed(reason string) generation.JobResult {
	return generation.JobResult{State: generation.JobFailed, Reason: reason}
}
