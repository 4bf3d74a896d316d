package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Provider ProviderConfig `mapstructure:"provider" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// PublicURL is the externally reachable base URL, used to build the push
	// delivery callback address.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gt=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gt=0"`
}

// TaskConfig controls the task lifecycle: lease length, provider time
// budget, polling cadence, absolute deadlines and the reconciliation sweep.
type TaskConfig struct {
	LeaseDuration     time.Duration `mapstructure:"lease_duration" validate:"gt=0"`
	SafetyMargin      time.Duration `mapstructure:"safety_margin" validate:"gte=0"`
	MinTimeBudget     time.Duration `mapstructure:"min_time_budget" validate:"gt=0"`
	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
	DeadlineHorizon   time.Duration `mapstructure:"deadline_horizon" validate:"gt=0"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" validate:"gt=0"`
	// WorkerCount is the number of concurrent deliveries per process, for
	// both the in-process pool and the Redis consumer. QueueSize bounds the
	// in-process queue.
	WorkerCount int `mapstructure:"worker_count" validate:"gt=0"`
	QueueSize   int `mapstructure:"queue_size" validate:"gt=0"`
}

// ProviderConfig selects and configures the image generation backend.
type ProviderConfig struct {
	Name         string        `mapstructure:"name" validate:"required,oneof=modelscope gemini"`
	DefaultModel string        `mapstructure:"default_model" validate:"required"`
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	APIKey       string        `mapstructure:"api_key" validate:"required_if=Name modelscope"`
	GeminiAPIKey string        `mapstructure:"gemini_api_key" validate:"required_if=Name gemini"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// QueueConfig selects the at-least-once delivery transport.
//
// memory delivers in-process, redis uses a Redis Streams consumer group and
// qstash publishes HTTP push deliveries to the worker endpoint.
type QueueConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=memory redis qstash"`

	RedisURL      string        `mapstructure:"redis_url" validate:"required_if=Driver redis"`
	StreamKey     string        `mapstructure:"stream_key"`
	ConsumerGroup string        `mapstructure:"consumer_group"`
	ConsumerName  string        `mapstructure:"consumer_name"`
	ClaimIdle     time.Duration `mapstructure:"claim_idle" validate:"gte=0"`
	BlockTimeout  time.Duration `mapstructure:"block_timeout" validate:"gte=0"`

	QStashURL   string `mapstructure:"qstash_url" validate:"omitempty,url"`
	QStashToken string `mapstructure:"qstash_token" validate:"required_if=Driver qstash"`
	QStashQueue string `mapstructure:"qstash_queue"`
	// WorkerURL overrides the push callback address derived from Server.PublicURL.
	WorkerURL string `mapstructure:"worker_url" validate:"omitempty,url"`

	RedeliveryDelay time.Duration `mapstructure:"redelivery_delay" validate:"gte=0"`
}

// AuthConfig holds the shared secrets protecting the internal endpoints.
type AuthConfig struct {
	CronSecret        string `mapstructure:"cron_secret"`
	SigningKeyCurrent string `mapstructure:"signing_key_current"`
	SigningKeyNext    string `mapstructure:"signing_key_next"`
}
