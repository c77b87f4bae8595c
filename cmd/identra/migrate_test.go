// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/errutil"
)

func newMigrateDeps(migrator *fakeMigrator) *ServeDeps {
	return &ServeDeps{
		MigratorFactory: func(_ string) (SchemaMigrator, error) {
			return migrator, nil
		},
	}
}

func runMigrateCmd(t *testing.T, cfg *migrateConfig, deps *ServeDeps) (string, error) {
	t.Helper()

	cmd := NewMigrateCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := runMigrate(cmd, cfg, deps)
	return buf.String(), err
}

func TestMigrate_Properties(t *testing.T) {
	cmd := NewMigrateCmd()

	assert.Equal(t, "migrate", cmd.Use)
	assert.Contains(t, cmd.Short, "migrations")

	for _, flag := range []string{"down", "steps", "force"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "missing --%s flag", flag)
	}
}

func TestMigrate_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := runMigrateCmd(t, &migrateConfig{force: -1}, newMigrateDeps(&fakeMigrator{}))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestMigrate_Up(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{version: 1}
	output, err := runMigrateCmd(t, &migrateConfig{force: -1}, newMigrateDeps(migrator))
	require.NoError(t, err)

	assert.True(t, migrator.upCalled)
	assert.True(t, migrator.closed)
	assert.Contains(t, output, "Migrations completed successfully")
	assert.Contains(t, output, "Schema version: 1")
}

func TestMigrate_Down(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{}
	output, err := runMigrateCmd(t, &migrateConfig{down: true, force: -1}, newMigrateDeps(migrator))
	require.NoError(t, err)

	assert.True(t, migrator.downCalled)
	assert.False(t, migrator.upCalled)
	assert.Contains(t, output, "Rollback complete")
}

func TestMigrate_Steps(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{version: 1}
	output, err := runMigrateCmd(t, &migrateConfig{steps: -1, force: -1}, newMigrateDeps(migrator))
	require.NoError(t, err)

	assert.Equal(t, -1, migrator.stepsArg)
	assert.Contains(t, output, "Applied -1 migration step(s)")
}

func TestMigrate_Force(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{version: 1}
	output, err := runMigrateCmd(t, &migrateConfig{force: 1}, newMigrateDeps(migrator))
	require.NoError(t, err)

	assert.True(t, migrator.forceCalled)
	assert.Equal(t, 1, migrator.forceArg)
	assert.False(t, migrator.upCalled, "force must not run migrations")
	assert.Contains(t, output, "Forced schema version to 1")
}

func TestMigrate_DirtyVersionReported(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{version: 1, dirty: true}
	output, err := runMigrateCmd(t, &migrateConfig{force: -1}, newMigrateDeps(migrator))
	require.NoError(t, err)

	assert.Contains(t, output, "dirty - manual intervention required")
}

func TestMigrate_UpError(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/identra")

	migrator := &fakeMigrator{upErr: errors.New("database locked")}
	output, err := runMigrateCmd(t, &migrateConfig{force: -1}, newMigrateDeps(migrator))
	require.Error(t, err)

	assert.True(t, migrator.closed, "migrator must be closed on failure")
	assert.False(t, strings.Contains(output, "completed successfully"))
}
