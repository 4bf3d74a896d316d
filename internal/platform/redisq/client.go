package redisq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/queue"
	"github.com/redis/go-redis/v9"
)

const taskIDField = "task_id"

// Config names the stream and consumer group and tunes the consumer loop.
type Config struct {
	StreamKey    string
	Group        string
	Consumer     string
	ClaimIdle    time.Duration
	BlockTimeout time.Duration
	// Concurrency is the number of consumer loops Consume runs. Each loop
	// holds at most one unacked message so idle peers can take the rest.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.StreamKey == "" {
		c.StreamKey = "imggen:tasks"
	}
	if c.Group == "" {
		c.Group = "imggen-workers"
	}
	if c.Consumer == "" {
		c.Consumer = "consumer-" + uuid.NewString()[:8]
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 90 * time.Second
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 1
	}
	return c
}

// Client is both the producer and the consumer side of the stream.
type Client struct {
	rdb    redis.UniversalClient
	cfg    Config
	logger *slog.Logger
}

// streamConsumer is one member of the consumer group.
type streamConsumer struct {
	*Client
	name   string
	logger *slog.Logger

	// claimCursor is where the next XAUTOCLAIM scan starts.
	claimCursor string
}

var _ queue.Queue = (*Client)(nil)

// Open parses a redis:// URL and returns a connected client.
func Open(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return rdb, nil
}

// New wraps an existing redis client.
func New(rdb redis.UniversalClient, cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Client{
		rdb: rdb,
		cfg: cfg,
		logger: log.With(
			slog.String("component", "redisq"),
			slog.String("stream", cfg.StreamKey)),
	}
}

// Init creates the stream and consumer group if they do not exist yet.
func (c *Client) Init(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.cfg.StreamKey, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	c.logger.Info("redis stream and consumer group ready", slog.String("group", c.cfg.Group))
	return nil
}

// Enqueue implements queue.Queue.
func (c *Client) Enqueue(ctx context.Context, taskID uuid.UUID) error {
	id, err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.StreamKey,
		Values: map[string]any{taskIDField: taskID.String()},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish task %s: %w", taskID, err)
	}
	logger.FromContextOrDefault(ctx, c.logger).Debug("task enqueued",
		slog.String("task_id", taskID.String()),
		slog.String("message_id", id))
	return nil
}

// Consume runs Concurrency consumer loops until ctx is cancelled. Each
// loop first takes over stale pending messages, then blocks for a new one.
func (c *Client) Consume(ctx context.Context, handle queue.Handler) error {
	c.logger.Info("starting stream consumers",
		slog.Int("concurrency", c.cfg.Concurrency),
		slog.Duration("claim_idle", c.cfg.ClaimIdle),
		slog.Duration("block_timeout", c.cfg.BlockTimeout))

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Concurrency; i++ {
		sc := c.newStreamConsumer(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.run(ctx, handle)
		}()
	}
	wg.Wait()

	c.logger.Info("stream consumers stopped")
	return nil
}

func (c *Client) newStreamConsumer(i int) *streamConsumer {
	name := c.cfg.Consumer
	if c.cfg.Concurrency > 1 {
		name = fmt.Sprintf("%s-%d", c.cfg.Consumer, i)
	}
	return &streamConsumer{
		Client:      c,
		name:        name,
		logger:      c.logger.With(slog.String("consumer", name)),
		claimCursor: "0-0",
	}
}

func (sc *streamConsumer) run(ctx context.Context, handle queue.Handler) {
	for ctx.Err() == nil {
		if err := sc.reclaim(ctx, handle); err != nil && ctx.Err() == nil {
			sc.logger.Error("failed to reclaim pending messages", slog.String("error", err.Error()))
			sc.pause(ctx)
			continue
		}
		if err := sc.readNew(ctx, handle); err != nil && ctx.Err() == nil {
			sc.logger.Error("failed to read stream", slog.String("error", err.Error()))
			sc.pause(ctx)
		}
	}
}

func (sc *streamConsumer) reclaim(ctx context.Context, handle queue.Handler) error {
	msgs, next, err := sc.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   sc.cfg.StreamKey,
		Group:    sc.cfg.Group,
		Consumer: sc.name,
		MinIdle:  sc.cfg.ClaimIdle,
		Start:    sc.claimCursor,
		Count:    1,
	}).Result()
	if err != nil {
		return err
	}
	sc.claimCursor = next
	if sc.claimCursor == "" {
		sc.claimCursor = "0-0"
	}

	for _, msg := range msgs {
		sc.logger.Info("reclaimed stale delivery", slog.String("message_id", msg.ID))
		sc.process(ctx, msg, handle)
	}
	return nil
}

func (sc *streamConsumer) readNew(ctx context.Context, handle queue.Handler) error {
	streams, err := sc.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    sc.cfg.Group,
		Consumer: sc.name,
		Streams:  []string{sc.cfg.StreamKey, ">"},
		Count:    1,
		Block:    sc.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			sc.process(ctx, msg, handle)
		}
	}
	return nil
}

// process acks the message unless the handler asked for redelivery.
func (sc *streamConsumer) process(ctx context.Context, msg redis.XMessage, handle queue.Handler) {
	log := sc.logger.With(slog.String("message_id", msg.ID))

	taskID, err := parseTaskID(msg)
	if err != nil {
		log.Error("dropping malformed message", slog.String("error", err.Error()))
		sc.ack(ctx, log, msg.ID)
		return
	}
	log = log.With(slog.String("task_id", taskID.String()))

	err = handle(logger.WithLogger(ctx, log), taskID)
	switch {
	case err == nil:
		sc.ack(ctx, log, msg.ID)
	case queue.IsPermanent(err):
		log.Warn("dropping delivery", slog.String("error", err.Error()))
		sc.ack(ctx, log, msg.ID)
	default:
		log.Warn("delivery failed, leaving it pending for redelivery", slog.String("error", err.Error()))
	}
}

func (c *Client) ack(ctx context.Context, log *slog.Logger, id string) {
	// Ack even when the loop is shutting down so a finished delivery is not
	// handed out again.
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.rdb.XAck(ackCtx, c.cfg.StreamKey, c.cfg.Group, id).Err(); err != nil {
		log.Error("failed to ack message", slog.String("error", err.Error()))
	}
}

func (c *Client) pause(ctx context.Context) {
	t := time.NewTimer(c.cfg.BlockTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func parseTaskID(msg redis.XMessage) (uuid.UUID, error) {
	raw, ok := msg.Values[taskIDField]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s field", taskIDField)
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return uuid.Nil, fmt.Errorf("unexpected %s type %T", taskIDField, raw)
	}
	return uuid.Parse(s)
}
