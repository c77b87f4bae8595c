// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package identity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identra/identra/internal/identity"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "User@Example.COM", "user@example.com"},
		{"trims whitespace", "  user@example.com \t", "user@example.com"},
		{"both", "  Admin@Example.com", "admin@example.com"},
		{"already normalized", "user@example.com", "user@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.NormalizeEmail(tt.input))
		})
	}
}

func TestULID(t *testing.T) {
	t.Run("generates unique sortable ids", func(t *testing.T) {
		a := identity.NewULID()
		b := identity.NewULID()
		assert.NotEqual(t, a, b)
		assert.Len(t, a.String(), 26)
	})

	t.Run("parse round-trips", func(t *testing.T) {
		id := identity.NewULID()
		parsed, err := identity.ParseULID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})

	t.Run("parse rejects garbage", func(t *testing.T) {
		_, err := identity.ParseULID("not-a-ulid")
		assert.Error(t, err)
	})
}

func TestUserResetToken(t *testing.T) {
	codec := newTestCodec(t)

	newUser := func(t *testing.T) *identity.User {
		t.Helper()
		return &identity.User{
			ID:        identity.NewULID(),
			Email:     "user@example.com",
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
	}

	t.Run("set and clear", func(t *testing.T) {
		user := newUser(t)
		expiry := time.Now().Add(time.Hour)

		user.SetResetToken("token", expiry)
		require.NotNil(t, user.ResetToken)
		assert.Equal(t, "token", *user.ResetToken)
		require.NotNil(t, user.ResetTokenExpiry)

		user.ClearResetToken()
		assert.Nil(t, user.ResetToken)
		assert.Nil(t, user.ResetTokenExpiry)
	})

	t.Run("valid stored token verifies", func(t *testing.T) {
		user := newUser(t)
		token, expiresAt, err := codec.IssuePasswordReset(user.ID.String())
		require.NoError(t, err)
		user.SetResetToken(token, expiresAt)

		assert.True(t, user.IsResetTokenValid(codec, token))
	})

	t.Run("no stored token fails", func(t *testing.T) {
		user := newUser(t)
		token, _, err := codec.IssuePasswordReset(user.ID.String())
		require.NoError(t, err)

		assert.False(t, user.IsResetTokenValid(codec, token))
	})

	t.Run("different stored token fails", func(t *testing.T) {
		user := newUser(t)
		stored, expiresAt, err := codec.IssuePasswordReset(user.ID.String())
		require.NoError(t, err)
		user.SetResetToken(stored, expiresAt)

		// Second issuance has a different iat payload.
		time.Sleep(1100 * time.Millisecond)
		presented, _, err := codec.IssuePasswordReset(user.ID.String())
		require.NoError(t, err)

		assert.False(t, user.IsResetTokenValid(codec, presented))
	})

	t.Run("wrong kind fails", func(t *testing.T) {
		user := newUser(t)
		access, err := codec.IssueAccess(user.ID.String())
		require.NoError(t, err)
		user.SetResetToken(access, time.Now().Add(time.Hour))

		assert.False(t, user.IsResetTokenValid(codec, access))
	})

	t.Run("subject mismatch fails", func(t *testing.T) {
		user := newUser(t)
		token, expiresAt, err := codec.IssuePasswordReset(identity.NewULID().String())
		require.NoError(t, err)
		user.SetResetToken(token, expiresAt)

		assert.False(t, user.IsResetTokenValid(codec, token))
	})
}

func TestUserClone(t *testing.T) {
	expiry := time.Now().Add(time.Hour)
	token := "token"
	user := &identity.User{
		ID:               identity.NewULID(),
		Email:            "user@example.com",
		Name:             "User",
		PasswordHash:     "hash",
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
		ResetToken:       &token,
		ResetTokenExpiry: &expiry,
	}

	clone := user.Clone()
	require.Equal(t, user, clone)

	// Pointer fields must not be shared.
	*clone.ResetToken = "mutated"
	assert.Equal(t, "token", *user.ResetToken)
}
