// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

// Package repotest provides a contract test suite run against every
// identity.Repository backend.
package repotest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/identra/internal/identity"
)

// Factory creates a fresh, empty repository for one test.
type Factory func(t *testing.T) identity.Repository

// Run executes the backend contract against the factory's repositories.
// Behavior asserted here must hold for every backend; backend-specific
// divergences (such as UpdateUser on a missing record) are tested in the
// backend's own package.
func Run(t *testing.T, factory Factory) {
	ctx := context.Background()
	hasher := identity.NewArgon2Hasher()

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("creates active user with normalized email", func(t *testing.T) {
			repo := factory(t)

			user, err := repo.CreateUser(ctx, " User@Example.COM ", "password123", "Test User")
			require.NoError(t, err)
			assert.Equal(t, "user@example.com", user.Email)
			assert.Equal(t, "Test User", user.Name)
			assert.True(t, user.IsActive)
			assert.False(t, user.CreatedAt.IsZero())
			assert.Len(t, user.ID.String(), 26)

			ok, err := hasher.Verify("password123", user.PasswordHash)
			require.NoError(t, err)
			assert.True(t, ok)
		})

		t.Run("duplicate email fails", func(t *testing.T) {
			repo := factory(t)

			_, err := repo.CreateUser(ctx, "user@example.com", "password123", "A")
			require.NoError(t, err)

			_, err = repo.CreateUser(ctx, "USER@example.com", "otherpassword", "B")
			assert.ErrorIs(t, err, identity.ErrUserAlreadyExists)
		})
	})

	t.Run("GetUserByEmail", func(t *testing.T) {
		t.Run("finds by normalized form", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			found, err := repo.GetUserByEmail(ctx, " USER@Example.com")
			require.NoError(t, err)
			assert.Equal(t, created.ID, found.ID)
		})

		t.Run("absent email yields not found", func(t *testing.T) {
			repo := factory(t)

			_, err := repo.GetUserByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, identity.ErrNotFound)
		})
	})

	t.Run("GetUserByID", func(t *testing.T) {
		t.Run("finds by id", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			found, err := repo.GetUserByID(ctx, created.ID.String())
			require.NoError(t, err)
			assert.Equal(t, created.Email, found.Email)
		})

		t.Run("absent id yields not found", func(t *testing.T) {
			repo := factory(t)

			_, err := repo.GetUserByID(ctx, identity.NewULID().String())
			assert.ErrorIs(t, err, identity.ErrNotFound)
		})
	})

	t.Run("GetAllUsers", func(t *testing.T) {
		repo := factory(t)

		users, err := repo.GetAllUsers(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)

		_, err = repo.CreateUser(ctx, "a@example.com", "password123", "A")
		require.NoError(t, err)
		_, err = repo.CreateUser(ctx, "b@example.com", "password123", "B")
		require.NoError(t, err)

		users, err = repo.GetAllUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 2)
	})

	t.Run("UpdateUser", func(t *testing.T) {
		repo := factory(t)

		created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
		require.NoError(t, err)

		updated := created.Clone()
		updated.Name = "Renamed"
		updated.Email = "renamed@example.com"
		updated.IsActive = false

		_, err = repo.UpdateUser(ctx, updated)
		require.NoError(t, err)

		found, err := repo.GetUserByEmail(ctx, "renamed@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", found.Name)
		assert.False(t, found.IsActive)

		_, err = repo.GetUserByEmail(ctx, "user@example.com")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	})

	t.Run("GenerateResetToken", func(t *testing.T) {
		t.Run("stores token and expiry", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			token, err := repo.GenerateResetToken(ctx, "user@example.com")
			require.NoError(t, err)
			require.NotEmpty(t, token)

			stored, err := repo.GetUserByID(ctx, created.ID.String())
			require.NoError(t, err)
			require.NotNil(t, stored.ResetToken)
			assert.Equal(t, token, *stored.ResetToken)
			require.NotNil(t, stored.ResetTokenExpiry)
		})

		t.Run("absent email yields empty token without error", func(t *testing.T) {
			repo := factory(t)

			token, err := repo.GenerateResetToken(ctx, "nobody@example.com")
			require.NoError(t, err)
			assert.Empty(t, token)
		})

		t.Run("inactive user yields empty token", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			deactivated := created.Clone()
			deactivated.IsActive = false
			_, err = repo.UpdateUser(ctx, deactivated)
			require.NoError(t, err)

			token, err := repo.GenerateResetToken(ctx, "user@example.com")
			require.NoError(t, err)
			assert.Empty(t, token)
		})
	})

	t.Run("ResetPasswordWithToken", func(t *testing.T) {
		t.Run("consumes token and rehashes password", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "oldpassword", "User")
			require.NoError(t, err)

			token, err := repo.GenerateResetToken(ctx, "user@example.com")
			require.NoError(t, err)
			require.NotEmpty(t, token)

			ok, err := repo.ResetPasswordWithToken(ctx, token, "newpassword")
			require.NoError(t, err)
			assert.True(t, ok)

			stored, err := repo.GetUserByID(ctx, created.ID.String())
			require.NoError(t, err)
			assert.Nil(t, stored.ResetToken)
			assert.Nil(t, stored.ResetTokenExpiry)

			verified, err := hasher.Verify("newpassword", stored.PasswordHash)
			require.NoError(t, err)
			assert.True(t, verified)

			// Second use of the consumed token fails.
			ok, err = repo.ResetPasswordWithToken(ctx, token, "anotherpassword")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("unknown token reports false", func(t *testing.T) {
			repo := factory(t)

			ok, err := repo.ResetPasswordWithToken(ctx, "garbage", "newpassword")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	})

	t.Run("ChangePassword", func(t *testing.T) {
		t.Run("correct current password rehashes", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "oldpassword", "User")
			require.NoError(t, err)

			ok, err := repo.ChangePassword(ctx, created.ID.String(), "oldpassword", "newpassword")
			require.NoError(t, err)
			assert.True(t, ok)

			stored, err := repo.GetUserByID(ctx, created.ID.String())
			require.NoError(t, err)
			verified, err := hasher.Verify("newpassword", stored.PasswordHash)
			require.NoError(t, err)
			assert.True(t, verified)
		})

		t.Run("wrong current password leaves hash untouched", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			ok, err := repo.ChangePassword(ctx, created.ID.String(), "wrongpassword", "newpassword")
			require.NoError(t, err)
			assert.False(t, ok)

			stored, err := repo.GetUserByID(ctx, created.ID.String())
			require.NoError(t, err)
			assert.Equal(t, created.PasswordHash, stored.PasswordHash)
		})

		t.Run("absent user reports false without error", func(t *testing.T) {
			repo := factory(t)

			ok, err := repo.ChangePassword(ctx, identity.NewULID().String(), "a", "b")
			require.NoError(t, err)
			assert.False(t, ok)
		})

		t.Run("inactive user reports false", func(t *testing.T) {
			repo := factory(t)

			created, err := repo.CreateUser(ctx, "user@example.com", "password123", "User")
			require.NoError(t, err)

			deactivated := created.Clone()
			deactivated.IsActive = false
			_, err = repo.UpdateUser(ctx, deactivated)
			require.NoError(t, err)

			ok, err := repo.ChangePassword(ctx, created.ID.String(), "password123", "newpassword")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	})
}
