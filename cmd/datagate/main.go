// Package main точка входа datagate: служебный сервер и применение миграций.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/datagate/internal/app/datagate"
	"github.com/magabrotheeeer/datagate/internal/config"
	"github.com/magabrotheeeer/datagate/internal/lib/sl"
	"github.com/magabrotheeeer/datagate/internal/migrations"
	"github.com/magabrotheeeer/datagate/internal/storage"
)

const (
	envLocal = "local"
	envTest  = "test"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "datagate",
		Short:         "Guarded data-access layer with pooling, caching and query filtering",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "Path to YAML config (defaults to $CONFIG_PATH)")

	cmd.AddCommand(newServeCommand(&configPath))
	cmd.AddCommand(newMigrateCommand(&configPath))
	return cmd
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the store and serve /health and /metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Env)
			logger.Info("starting datagate", slog.String("env", cfg.Env))
			logger.Debug("debug messages are enabled")
			logger.Debug("config loaded\n" + cfg.String())

			app, err := datagate.New(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("failed to initialize app", sl.Err(err))
				return err
			}
			if err = app.Run(cmd.Context()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("app stopped with error", sl.Err(err))
				return err
			}
			logger.Info("datagate stopped gracefully")
			return nil
		},
	}
}

func newMigrateCommand(configPath *string) *cobra.Command {
	var showVersion bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the bundled schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			dialect, err := storage.DialectFor(cfg.Driver)
			if err != nil {
				return err
			}
			dsn := dialect.DSN(cfg.ConnectionString)

			if !showVersion {
				if err = migrations.Run(cfg.Driver, dsn); err != nil {
					return err
				}
			}
			version, dirty, err := migrations.Version(cfg.Driver, dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showVersion, "version", false, "Only print the current schema version")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, errors.New("config path is not set: use --config or CONFIG_PATH")
	}
	return config.Load(path)
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal, envTest:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
