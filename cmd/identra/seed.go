// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/identra/identra/internal/config"
	"github.com/identra/identra/internal/identity"
	"github.com/identra/identra/internal/identity/postgres"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	email    string
	name     string
	password string
	timeout  time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a bootstrap user",
		Long: `Creates an initial user account through the registration flow.
This command is idempotent - it will not create duplicates if run multiple times.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg, nil)
		},
	}

	cmd.Flags().StringVar(&cfg.email, "email", "admin@localhost", "email for the bootstrap user")
	cmd.Flags().StringVar(&cfg.name, "name", "Administrator", "display name for the bootstrap user")
	cmd.Flags().StringVar(&cfg.password, "password", "", "password for the bootstrap user (required)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")

	return cmd
}

func runSeed(cmd *cobra.Command, cfg *seedConfig, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	if cfg.password == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--password is required")
	}

	conf, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}
	if conf.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}

	codec, err := identity.NewCodec(conf.CodecConfig())
	if err != nil {
		return err
	}
	hasher := identity.NewArgon2Hasher()

	// Use cmd.Context() so SIGINT/SIGTERM interrupts the seed.
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := deps.PoolFactory(ctx, conf.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	repo := postgres.NewUserRepository(pool, hasher, codec)
	service, err := identity.NewService(repo, codec, hasher)
	if err != nil {
		return err
	}

	user, err := service.RegisterUser(ctx, cfg.email, cfg.password, cfg.name)
	if err != nil {
		if errors.Is(err, identity.ErrUserAlreadyExists) {
			cmd.Println("Bootstrap user already exists, skipping seed")
			slog.Info("bootstrap user already seeded", "email", identity.NormalizeEmail(cfg.email))
			return nil
		}
		return oops.Code("SEED_FAILED").With("operation", "register bootstrap user").Wrap(err)
	}

	cmd.Printf("Created bootstrap user: %s\n", user.Email)
	slog.Info("created bootstrap user", "id", user.ID.String(), "email", user.Email)
	return nil
}
