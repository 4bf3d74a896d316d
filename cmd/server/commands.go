package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/imggen-api/internal/config"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/platform/postgres"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configFile string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "imggen",
		Short:         "Image generation task API and worker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "dotenv file (default ./.env)")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newReconcileCmd(opts),
		newMigrateCmd(opts),
	)
	return root
}

// loadAppConfig loads configuration and sets up the default logger.
func loadAppConfig(opts *rootOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithOptions(config.Options{ConfigFile: opts.configFile, EnvFile: opts.envFile})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"provider", cfg.Provider.Name,
		"queue_driver", cfg.Queue.Driver)
	return cfg, l, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var consume, reconcile bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: "Serve the HTTP API. Unless disabled, the process also consumes the " +
			"task queue and runs the periodic reconcile sweep.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, l, err := loadAppConfig(opts)
			if err != nil {
				return err
			}

			db, err := setupAppDatabase(ctx, cfg, l)
			if err != nil {
				return err
			}
			app, err := newApplication(ctx, cfg, l, db)
			if err != nil {
				_ = db.Close()
				return err
			}
			defer app.cleanup()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return app.startHTTPServer(gctx, app.setupRouter()) })
			if reconcile {
				g.Go(func() error { return app.reconciler.Run(gctx) })
			}
			if consume {
				g.Go(func() error { return app.consume(gctx) })
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&consume, "consume", true, "consume the task queue in this process")
	cmd.Flags().BoolVar(&reconcile, "reconcile", true, "run the periodic reconcile sweep")
	return cmd
}

func newWorkerCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume the Redis task stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, l, err := loadAppConfig(opts)
			if err != nil {
				return err
			}
			if cfg.Queue.Driver != queueDriverRedis {
				return fmt.Errorf("worker needs queue driver %q, got %q", queueDriverRedis, cfg.Queue.Driver)
			}

			db, err := setupAppDatabase(ctx, cfg, l)
			if err != nil {
				return err
			}
			app, err := newApplication(ctx, cfg, l, db)
			if err != nil {
				_ = db.Close()
				return err
			}
			defer app.cleanup()

			return app.consume(ctx)
		},
	}
}

func newReconcileCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconcile sweep and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, l, err := loadAppConfig(opts)
			if err != nil {
				return err
			}

			db, err := setupAppDatabase(ctx, cfg, l)
			if err != nil {
				return err
			}
			app, err := newApplication(ctx, cfg, l, db)
			if err != nil {
				_ = db.Close()
				return err
			}
			defer app.cleanup()

			res, err := app.reconciler.Sweep(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(res)
		},
	}
}

var migrateCommands = []string{"up", "down", "reset", "status", "version"}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Apply or inspect database migrations",
		ValidArgs: migrateCommands,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, l, err := loadAppConfig(opts)
			if err != nil {
				return err
			}

			db, err := setupAppDatabase(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := db.Close(); cerr != nil {
					l.Error("failed to close database connection", "error", cerr)
				}
			}()

			l.Info("executing migrations", "command", args[0])
			return postgres.Migrate(ctx, db, args[0], l)
		},
	}
}
