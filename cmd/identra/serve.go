// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/identra/identra/internal/config"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/identity/memory"
	"github.com/identra/identra/internal/identity/postgres"
	"github.com/identra/identra/internal/logging"
)

const shutdownTimeout = 5 * time.Second

// serveConfig holds the command-only flags; everything else comes through the
// config layer.
type serveConfig struct {
	memoryBackend bool
	autoMigrate   bool
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cfg := &serveConfig{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the credential service: construct the repository, token codec,
and auth service, and serve metrics and health endpoints until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd.Context(), cmd, cfg, nil)
		},
	}

	cmd.Flags().BoolVar(&cfg.memoryBackend, "memory", false, "use the volatile in-memory backend instead of PostgreSQL")
	cmd.Flags().BoolVar(&cfg.autoMigrate, "auto-migrate", false, "apply pending schema migrations on startup")
	registerConfigFlags(cmd)

	return cmd
}

// registerConfigFlags declares the flags the config layer overlays on top of
// file and environment values. Flag names use dashes; config keys underscores.
func registerConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	cmd.Flags().String("jwt-algorithm", "", "token signing algorithm (HS256)")
	cmd.Flags().Int("access-token-expires-minutes", 0, "access token lifetime in minutes")
	cmd.Flags().Int("refresh-token-expires-days", 0, "refresh token lifetime in days")
	cmd.Flags().Int("password-reset-token-expires-hours", 0, "password reset token lifetime in hours")
	cmd.Flags().String("observability-addr", "", "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log-format", "", "log format (json or text)")
}

// runServeWithDeps starts the service with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cmd *cobra.Command, cfg *serveConfig, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	conf, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("identra", version, conf.LogFormat)

	slog.Info("starting credential service",
		"backend", backendName(cfg.memoryBackend),
		"log_format", conf.LogFormat,
	)

	codec, err := identity.NewCodec(conf.CodecConfig())
	if err != nil {
		return err
	}
	hasher := identity.NewArgon2Hasher()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		repo  identity.Repository
		ready func() bool
	)

	if cfg.memoryBackend {
		repo = memory.NewUserRepository(hasher, codec)
		ready = func() bool { return true }
	} else {
		if conf.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database_url is required unless --memory is set")
		}

		if cfg.autoMigrate {
			if err := applyMigrations(deps, conf.DatabaseURL); err != nil {
				return err
			}
		}

		pool, err := deps.PoolFactory(ctx, conf.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		slog.Info("connected to database")

		repo = postgres.NewUserRepository(pool, hasher, codec)
		ready = func() bool {
			pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer pingCancel()
			return pool.Ping(pingCtx) == nil
		}
	}

	service, err := identity.NewService(repo, codec, hasher)
	if err != nil {
		return err
	}

	var obsServer ObservabilityServer
	if conf.ObservabilityAddr != "" {
		obsServer = deps.ObservabilityServerFactory(conf.ObservabilityAddr, ready)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		service.WithRecorder(obsServer.Metrics())
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Credential service started")
	slog.Info("credential service ready")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// applyMigrations runs all pending migrations before the pool opens.
func applyMigrations(deps *ServeDeps, databaseURL string) error {
	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	pending, err := migrator.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		slog.Info("schema up to date")
		return nil
	}

	slog.Info("applying schema migrations", "pending", len(pending))
	if err := migrator.Up(); err != nil {
		return err
	}
	slog.Info("schema migrations applied")
	return nil
}

func backendName(memoryBackend bool) string {
	if memoryBackend {
		return "memory"
	}
	return "postgres"
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so a failed server triggers a clean shutdown. It exits
// when an error arrives, the channel closes, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
