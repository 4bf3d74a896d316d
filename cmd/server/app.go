package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/imggen-api/internal/api/middleware"
	"github.com/phrazzld/imggen-api/internal/config"
	"github.com/phrazzld/imggen-api/internal/generation"
	"github.com/phrazzld/imggen-api/internal/platform/gemini"
	"github.com/phrazzld/imggen-api/internal/platform/modelscope"
	"github.com/phrazzld/imggen-api/internal/platform/postgres"
	"github.com/phrazzld/imggen-api/internal/platform/qstash"
	"github.com/phrazzld/imggen-api/internal/platform/redisq"
	"github.com/phrazzld/imggen-api/internal/queue"
	"github.com/phrazzld/imggen-api/internal/service"
	"github.com/phrazzld/imggen-api/internal/store"
	"github.com/phrazzld/imggen-api/internal/task"
	"github.com/redis/go-redis/v9"
)

const (
	queueDriverMemory = "memory"
	queueDriverRedis  = "redis"
	queueDriverQStash = "qstash"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskStore   store.TaskStore
	provider    generation.Provider
	queue       queue.Queue
	taskService service.TaskService
	dispatcher  *task.Dispatcher
	reconciler  *task.Reconciler

	// signatures is nil when no signing keys are configured.
	signatures middleware.SignatureChecker
	workerURL  string

	// Transport-specific consumers; at most one is set.
	memQueue   *queue.MemoryQueue
	redisConn  *redis.Client
	redisQueue *redisq.Client
}

// newApplication creates a new application instance backed by db.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app, err := newApplicationWithStore(ctx, cfg, logger, postgres.NewPostgresTaskStore(db, logger))
	if err != nil {
		return nil, err
	}
	app.db = db
	return app, nil
}

// newApplicationWithStore wires every component around taskStore.
func newApplicationWithStore(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	taskStore store.TaskStore,
) (*application, error) {
	app := &application{
		config:    cfg,
		logger:    logger,
		taskStore: taskStore,
		workerURL: workerURL(cfg),
	}

	var err error
	app.provider, err = newProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize image provider: %w", err)
	}
	logger.Info("image provider initialized", "provider", cfg.Provider.Name)

	taskCfg := taskConfig(cfg.Task)
	app.dispatcher = task.NewDispatcher(taskStore, app.provider, taskCfg, logger)
	app.reconciler = task.NewReconciler(taskStore, taskCfg, logger)

	if err := app.setupQueue(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	app.taskService, err = service.NewTaskService(taskStore, app.queue, service.TaskServiceConfig{
		DefaultModel:    cfg.Provider.DefaultModel,
		DeadlineHorizon: cfg.Task.DeadlineHorizon,
	}, logger)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if cfg.Auth.SigningKeyCurrent != "" || cfg.Auth.SigningKeyNext != "" {
		v, err := qstash.NewVerifier(cfg.Auth.SigningKeyCurrent, cfg.Auth.SigningKeyNext)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to create signature verifier: %w", err)
		}
		app.signatures = v
	} else if cfg.Queue.Driver == queueDriverQStash {
		logger.Warn("push deliveries are not signature checked, no signing keys configured")
	}

	logger.Info("application initialized successfully")
	return app, nil
}

func (app *application) setupQueue(ctx context.Context) error {
	cfg := app.config.Queue

	switch cfg.Driver {
	case queueDriverRedis:
		conn, err := redisq.Open(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		app.redisConn = conn
		app.redisQueue = redisq.New(conn, redisq.Config{
			StreamKey:    cfg.StreamKey,
			Group:        cfg.ConsumerGroup,
			Consumer:     cfg.ConsumerName,
			ClaimIdle:    cfg.ClaimIdle,
			BlockTimeout: cfg.BlockTimeout,
			Concurrency:  app.config.Task.WorkerCount,
		}, app.logger)
		if err := app.redisQueue.Init(ctx); err != nil {
			return err
		}
		app.queue = app.redisQueue

	case queueDriverQStash:
		p, err := qstash.NewPublisher(qstash.Config{
			BaseURL:   cfg.QStashURL,
			Token:     cfg.QStashToken,
			Queue:     cfg.QStashQueue,
			WorkerURL: app.workerURL,
		}, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create qstash publisher: %w", err)
		}
		app.queue = p

	case queueDriverMemory, "":
		app.memQueue = queue.NewMemoryQueue(app.config.Task.QueueSize, app.logger)
		app.queue = app.memQueue

	default:
		return fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}

	app.logger.Info("task queue initialized", "driver", cfg.Driver)
	return nil
}

// consume delivers queued tasks to the dispatcher until ctx is cancelled.
// Push transports have nothing to consume and return immediately.
func (app *application) consume(ctx context.Context) error {
	handler := service.NewDeliveryHandler(app.dispatcher)

	switch {
	case app.redisQueue != nil:
		return app.redisQueue.Consume(ctx, handler)

	case app.memQueue != nil:
		pool := queue.NewWorkerPool(app.memQueue, handler, queue.WorkerPoolConfig{
			WorkerCount:        app.config.Task.WorkerCount,
			RedeliveryDelay:    app.config.Queue.RedeliveryDelay,
			MaxRedeliveryDelay: time.Minute,
		}, app.logger)
		pool.Start()
		<-ctx.Done()
		pool.Stop()
		return nil

	default:
		app.logger.Info("queue driver delivers by push, no consumer started", "driver", app.config.Queue.Driver)
		return nil
	}
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.memQueue != nil {
		app.memQueue.Close()
	}
	if app.redisConn != nil {
		if err := app.redisConn.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}

func newProvider(ctx context.Context, cfg config.ProviderConfig, logger *slog.Logger) (generation.Provider, error) {
	switch cfg.Name {
	case "gemini":
		p, err := gemini.NewImageProvider(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Timeout: cfg.Timeout}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "modelscope", "":
		p, err := modelscope.NewProvider(modelscope.Config{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", generation.ErrInvalidConfig, cfg.Name)
	}
}

func taskConfig(cfg config.TaskConfig) task.Config {
	return task.Config{
		LeaseDuration:     cfg.LeaseDuration,
		SafetyMargin:      cfg.SafetyMargin,
		MinTimeBudget:     cfg.MinTimeBudget,
		PollInterval:      cfg.PollInterval,
		DeadlineHorizon:   cfg.DeadlineHorizon,
		ReconcileInterval: cfg.ReconcileInterval,
	}
}

// workerURL is the push delivery callback address, or "" when the service
// has no public address.
func workerURL(cfg *config.Config) string {
	if cfg.Queue.WorkerURL != "" {
		return cfg.Queue.WorkerURL
	}
	if cfg.Server.PublicURL != "" {
		return qstash.WorkerURL(cfg.Server.PublicURL)
	}
	return ""
}

// secureCookies reports whether owner cookies should be marked Secure.
func secureCookies(cfg *config.Config) bool {
	return strings.HasPrefix(cfg.Server.PublicURL, "https://")
}
