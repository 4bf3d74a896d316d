package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/queue"
	"github.com/phrazzld/imggen-api/internal/redact"
)

// ErrPublishFailed is returned when the push queue rejects a message.
var ErrPublishFailed = errors.New("qstash publish failed")

// Config configures a Publisher.
type Config struct {
	BaseURL   string
	Token     string
	Queue     string
	WorkerURL string
	Timeout   time.Duration
}

// Message is the JSON body delivered to the worker endpoint.
type Message struct {
	TaskID string `json:"taskId"`
}

// Publisher implements queue.Queue over the QStash HTTP API.
type Publisher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

var _ queue.Queue = (*Publisher)(nil)

// NewPublisher validates cfg and creates a Publisher.
func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	if cfg.Token == "" {
		return nil, errors.New("qstash token is required")
	}
	if cfg.WorkerURL == "" {
		return nil, errors.New("qstash worker url is required")
	}
	if _, err := url.ParseRequestURI(cfg.WorkerURL); err != nil {
		return nil, fmt.Errorf("invalid qstash worker url: %w", err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://qstash.upstash.io"
	}
	if cfg.Queue == "" {
		cfg.Queue = "imggen"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Publisher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.With(slog.String("component", "qstash"), slog.String("queue", cfg.Queue)),
	}, nil
}

// WorkerURL joins a public base URL with the worker route.
func WorkerURL(publicURL string) string {
	return strings.TrimRight(publicURL, "/") + "/api/worker/generate"
}

// Enqueue implements queue.Queue.
func (p *Publisher) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	body, err := json.Marshal(Message{TaskID: taskID.String()})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	endpoint := strings.TrimRight(p.cfg.BaseURL, "/") +
		"/v2/enqueue/" + url.PathEscape(p.cfg.Queue) + "/" + p.cfg.WorkerURL

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPublishFailed, redact.Error(err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrPublishFailed, resp.StatusCode,
			redact.String(strings.TrimSpace(string(snippet))))
	}

	var out struct {
		MessageID string `json:"messageId"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	logger.FromContextOrDefault(ctx, p.logger).Debug("task published",
		slog.String("task_id", taskID.String()),
		slog.String("message_id", out.MessageID))
	return nil
}
