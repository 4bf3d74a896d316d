package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "IMGGEN"

// DefaultModel is the provider model used when none is configured.
const DefaultModel = "Tongyi-MAI/Z-Image-Turbo"

// Options tune where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit config file path. Empty means look for
	// config.yaml in the working directory.
	ConfigFile string
	// EnvFile is a dotenv file loaded before reading the environment.
	// Variables already set in the process win. Empty means ".env".
	EnvFile string
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWithOptions(Options{})
}

// LoadWithOptions is Load with explicit file locations.
func LoadWithOptions(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags and the relations between settings.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	t := c.Task
	if t.MinTimeBudget+t.SafetyMargin >= t.LeaseDuration {
		return fmt.Errorf("invalid configuration: min_time_budget (%s) plus safety_margin (%s) must be below lease_duration (%s)",
			t.MinTimeBudget, t.SafetyMargin, t.LeaseDuration)
	}
	if c.Queue.Driver == "qstash" && c.Queue.WorkerURL == "" && c.Server.PublicURL == "" {
		return errors.New("invalid configuration: qstash driver needs queue.worker_url or server.public_url")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("task.lease_duration", 60*time.Second)
	v.SetDefault("task.safety_margin", 3*time.Second)
	v.SetDefault("task.min_time_budget", 5*time.Second)
	v.SetDefault("task.poll_interval", 5*time.Second)
	v.SetDefault("task.deadline_horizon", 120*time.Second)
	v.SetDefault("task.reconcile_interval", time.Minute)
	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)

	v.SetDefault("provider.name", "modelscope")
	v.SetDefault("provider.default_model", DefaultModel)
	v.SetDefault("provider.base_url", "https://api-inference.modelscope.cn/")
	v.SetDefault("provider.timeout", 30*time.Second)

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.stream_key", "imggen:tasks")
	v.SetDefault("queue.consumer_group", "imggen-workers")
	v.SetDefault("queue.claim_idle", 90*time.Second)
	v.SetDefault("queue.block_timeout", 5*time.Second)
	v.SetDefault("queue.qstash_url", "https://qstash.upstash.io")
	v.SetDefault("queue.qstash_queue", "imggen")
	v.SetDefault("queue.redelivery_delay", 5*time.Second)
}

// bindEnvs registers keys that have no default so AutomaticEnv can see them
// during Unmarshal.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{
		"server.public_url",
		"database.url",
		"provider.api_key",
		"provider.gemini_api_key",
		"queue.redis_url",
		"queue.consumer_name",
		"queue.qstash_token",
		"queue.worker_url",
		"auth.cron_secret",
		"auth.signing_key_current",
		"auth.signing_key_next",
	} {
		_ = v.BindEnv(key)
	}
}
