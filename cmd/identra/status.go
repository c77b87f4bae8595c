package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/identra/identra/internal/config"
)

// ServiceStatus holds the status information reported by the status command.
type ServiceStatus struct {
	Database      string `json:"database"`
	SchemaVersion uint   `json:"schema_version"`
	SchemaDirty   bool   `json:"schema_dirty,omitempty"`
	Pending       int    `json:"pending_migrations"`
	Error         string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database and schema status",
		Long:  `Ping the database and report connectivity and schema migration state.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg, nil)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 5*time.Second, "timeout for database operations")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.applyDefaults()

	conf, err := config.Load(configFile, nil)
	if err != nil {
		return err
	}

	status := queryStatus(cmd, cfg, deps, conf.DatabaseURL)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Database:           %s\n", status.Database)
	if status.Error != "" {
		cmd.Printf("Error:              %s\n", status.Error)
		return nil
	}
	dirtyNote := ""
	if status.SchemaDirty {
		dirtyNote = " (dirty - manual intervention required)"
	}
	cmd.Printf("Schema version:     %d%s\n", status.SchemaVersion, dirtyNote)
	cmd.Printf("Pending migrations: %d\n", status.Pending)
	return nil
}

// queryStatus pings the database and reads migration state.
func queryStatus(cmd *cobra.Command, cfg *statusConfig, deps *ServeDeps, databaseURL string) ServiceStatus {
	status := ServiceStatus{Database: "unreachable"}

	if databaseURL == "" {
		status.Error = "database_url is not configured"
		return status
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.timeout)
	defer cancel()

	pool, err := deps.PoolFactory(ctx, databaseURL)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer pool.Close()
	status.Database = "ok"

	migrator, err := deps.MigratorFactory(databaseURL)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			slog.Warn("error closing migrator", "error", closeErr)
		}
	}()

	version, dirty, err := migrator.Version()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.SchemaVersion = version
	status.SchemaDirty = dirty

	pending, err := migrator.PendingMigrations()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Pending = len(pending)

	return status
}
