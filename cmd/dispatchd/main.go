package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alanyang/job-dispatch/internal/adapter/postgres/migrations"
	"github.com/alanyang/job-dispatch/internal/config"
	"github.com/alanyang/job-dispatch/internal/observability"
	"github.com/alanyang/job-dispatch/internal/wire"
)

var configFile string

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dispatchd",
		Short:         "Distributes jobs to a pool of remote agents and selects a winning result",
		Version:       wire.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (defaults plus environment when empty)")

	root.AddCommand(serveCommand())
	root.AddCommand(sweepCommand())
	root.AddCommand(migrateCommand())
	return root
}

// setup loads the config and installs the process logger.
func setup() (config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(cfg.Logger())
	return cfg, nil
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP surfaces, the intake worker and the timeout sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			shutdownTracing, err := observability.InitTracing(ctx, "job-dispatch", cfg.Tracing)
			if err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer func() {
				tctx, tcancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer tcancel()
				if err := shutdownTracing(tctx); err != nil {
					slog.Error("tracing shutdown error", "error", err)
				}
			}()

			app, err := wire.Build(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer app.Close()

			if err := app.Run(ctx); err != nil {
				return err
			}
			slog.Info("job-dispatch server stopped")
			return nil
		},
	}
}

func sweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Resolve every overdue distribution once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			app, err := wire.Build(ctx, cfg)
			if err != nil {
				return fmt.Errorf("build application: %w", err)
			}
			defer app.Close()

			res, err := app.Orchestrator.SweepTimeouts(ctx, time.Now().UTC())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			if cfg.Store != config.StorePostgres {
				return fmt.Errorf("migrate needs the postgres store, got %q", cfg.Store)
			}
			ctx := cmd.Context()

			pool, err := wire.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Migrate(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	}
}
