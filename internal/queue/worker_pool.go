package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/imggen-api/internal/platform/logger"
)

// WorkerPoolConfig holds configuration options for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start.
	// If zero or negative, defaults to 1.
	WorkerCount int

	// RedeliveryDelay is the base delay before a failed delivery is retried.
	// It doubles per attempt up to MaxRedeliveryDelay.
	RedeliveryDelay    time.Duration
	MaxRedeliveryDelay time.Duration

	// MaxAttempts bounds deliveries of a single message. Zero means 5.
	MaxAttempts int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:        2,
		RedeliveryDelay:    5 * time.Second,
		MaxRedeliveryDelay: time.Minute,
		MaxAttempts:        5,
	}
}

// WorkerPool consumes a MemoryQueue with a fixed number of goroutines.
// Failed deliveries are pushed back onto the same queue after a delay, which
// gives the in-process transport the same redelivery behavior as the
// external ones.
type WorkerPool struct {
	queue   *MemoryQueue
	handler Handler
	cfg     WorkerPoolConfig

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewWorkerPool creates a worker pool. Call Start to begin consuming.
func NewWorkerPool(queue *MemoryQueue, handler Handler, cfg WorkerPoolConfig, log *slog.Logger) *WorkerPool {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "worker_pool"))

	if cfg.WorkerCount <= 0 {
		log.Warn("invalid worker count specified, using default",
			"specified_count", cfg.WorkerCount,
			"default_count", 1)
		cfg.WorkerCount = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultWorkerPoolConfig().MaxAttempts
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		queue:   queue,
		handler: handler,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log,
	}
}

// Start launches the workers.
func (p *WorkerPool) Start() {
	p.logger.Info("starting worker pool", "worker_count", p.cfg.WorkerCount)
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels in-flight handlers and waits for all workers to return.
// Deliveries still buffered are abandoned.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	log := p.logger.With("worker_id", id)

	for {
		select {
		case <-p.ctx.Done():
			return
		case d, ok := <-p.queue.Deliveries():
			if !ok {
				log.Debug("queue closed, worker exiting")
				return
			}
			p.handle(log, d)
		}
	}
}

func (p *WorkerPool) handle(log *slog.Logger, d Delivery) {
	log = log.With("task_id", d.TaskID.String(), "attempt", d.Attempt)
	ctx := logger.WithLogger(p.ctx, log)

	err := p.handler(ctx, d.TaskID)
	if err == nil {
		return
	}

	switch {
	case IsPermanent(err):
		log.Warn("dropping delivery", "error", err)
	case p.ctx.Err() != nil:
		log.Info("delivery interrupted by shutdown", "error", err)
	case d.Attempt >= p.cfg.MaxAttempts:
		log.Error("delivery attempts exhausted", "error", err)
	default:
		delay := Backoff(p.cfg.RedeliveryDelay, p.cfg.MaxRedeliveryDelay, d.Attempt)
		log.Warn("delivery failed, scheduling redelivery", "error", err, "delay", delay.String())
		p.redeliver(Delivery{TaskID: d.TaskID, Attempt: d.Attempt + 1}, delay)
	}
}

func (p *WorkerPool) redeliver(d Delivery, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.queue.push(d); err != nil {
			p.logger.Error("redelivery dropped",
				"task_id", d.TaskID.String(),
				"error", err)
		}
	})
}
