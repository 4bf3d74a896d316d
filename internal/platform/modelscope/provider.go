package modelscope

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/redact"
)

// DefaultBaseURL is the public inference endpoint.
const DefaultBaseURL = "https://api-inference.modelscope.cn/"

// Task states reported by the status endpoint. Anything else is pending.
const (
	statusSucceeded = "SUCCEED"
	statusFailed    = "FAILED"
)

// Config configures a Provider.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Provider talks to ModelScope over HTTP. Submit starts an async job and
// Poll reads its status; neither retries.
type Provider struct {
	baseURL *url.URL
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ generation.Provider = (*Provider)(nil)

// NewProvider validates cfg and creates a Provider.
func NewProvider(cfg Config, log *slog.Logger) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: modelscope API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid modelscope base url %q", generation.ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Provider{
		baseURL: base,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log.With(slog.String("component", "modelscope")),
	}, nil
}

type submitRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

type statusResponse struct {
	TaskStatus   string   `json:"task_status"`
	OutputImages []string `json:"output_images"`
}

// Submit implements generation.Provider.
func (p *Provider) Submit(ctx context.Context, prompt, model string) (string, error) {
	body, err := json.Marshal(submitRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrSubmitFailed, err)
	}

	req, err := p.newRequest(ctx, http.MethodPost, "v1/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", generation.ErrSubmitFailed, err)
	}
	req.Header.Set("X-ModelScope-Async-Mode", "true")

	var out submitResponse
	if err := p.do(req, generation.ErrSubmitFailed, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("%w: response missing task_id", generation.ErrInvalidResponse)
	}

	logger.FromContextOrDefault(ctx, p.logger).Debug("modelscope job started",
		slog.String("job", out.TaskID), slog.String("model", model))
	return out.TaskID, nil
}

// Poll implements generation.Provider.
func (p *Provider) Poll(ctx context.Context, handle string) (generation.JobResult, error) {
	req, err := p.newRequest(ctx, http.MethodGet, "v1/tasks/"+url.PathEscape(handle), nil)
	if err != nil {
		return generation.JobResult{}, fmt.Errorf("%w: %v", generation.ErrPollFailed, err)
	}
	req.Header.Set("X-ModelScope-Task-Type", "image_generation")

	var out statusResponse
	if err := p.do(req, generation.ErrPollFailed, &out); err != nil {
		return generation.JobResult{}, err
	}

	switch out.TaskStatus {
	case statusSucceeded:
		if len(out.OutputImages) == 0 || out.OutputImages[0] == "" {
			return generation.JobResult{}, fmt.Errorf("%w: success without output image", generation.ErrInvalidResponse)
		}
		return generation.JobResult{State: generation.JobSucceeded, ArtifactURL: out.OutputImages[0]}, nil
	case statusFailed:
		return generation.JobResult{State: generation.JobFailed}, nil
	default:
		return generation.JobResult{State: generation.JobPending}, nil
	}
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do sends req and decodes a 2xx JSON body into out. Failures wrap sentinel.
func (p *Provider) do(req *http.Request, sentinel error, out any) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", sentinel, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return nil
}
