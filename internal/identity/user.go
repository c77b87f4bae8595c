// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package identity

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// User is the persisted identity record.
//
// ResetToken and ResetTokenExpiry are set only while a password-reset request
// is in flight and are always present or absent together.
type User struct {
	ID               ulid.ULID
	Email            string
	Name             string
	PasswordHash     string
	IsActive         bool
	CreatedAt        time.Time
	ResetToken       *string
	ResetTokenExpiry *time.Time
}

// NormalizeEmail lower-cases and trims an email for case-insensitive lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetResetToken records an in-flight password-reset token and its expiry.
func (u *User) SetResetToken(token string, expiry time.Time) {
	u.ResetToken = &token
	u.ResetTokenExpiry = &expiry
}

// ClearResetToken consumes the reset token.
func (u *User) ClearResetToken() {
	u.ResetToken = nil
	u.ResetTokenExpiry = nil
}

// IsResetTokenValid reports whether the presented token can reset this user's
// password: the signature and expiry must verify, the kind must be
// password_reset, the token must equal the stored one (constant-time), and
// the embedded subject must match the record id.
func (u *User) IsResetTokenValid(codec TokenCodec, token string) bool {
	if u.ResetToken == nil {
		return false
	}

	info, err := codec.Verify(token)
	if err != nil {
		return false
	}
	if info.Kind != TokenPasswordReset {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(*u.ResetToken), []byte(token)) != 1 {
		return false
	}
	return info.Subject == u.ID.String()
}

// Clone returns a deep copy so callers cannot mutate stored records outside
// a repository's update path.
func (u *User) Clone() *User {
	c := *u
	if u.ResetToken != nil {
		token := *u.ResetToken
		c.ResetToken = &token
	}
	if u.ResetTokenExpiry != nil {
		expiry := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &expiry
	}
	return &c
}

// Repository is the storage contract for identity records. The in-memory and
// PostgreSQL backends are interchangeable behind it; the Service must not be
// able to observe which one it holds.
type Repository interface {
	// CreateUser generates the id, hashes the password, and stores a new
	// active record. Returns ErrUserAlreadyExists when the normalized email
	// is already indexed.
	CreateUser(ctx context.Context, email, password, name string) (*User, error)

	// GetUserByEmail looks a record up by normalized email.
	// Returns ErrNotFound when absent.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByID looks a record up by id. Returns ErrNotFound when absent.
	GetUserByID(ctx context.Context, id string) (*User, error)

	// GetAllUsers returns every record. Order is unspecified.
	GetAllUsers(ctx context.Context) ([]*User, error)

	// UpdateUser replaces the full record keyed by id. The PostgreSQL
	// backend returns ErrNotFound for an absent id; the in-memory backend
	// upserts instead, matching the reference behavior.
	UpdateUser(ctx context.Context, user *User) (*User, error)

	// GenerateResetToken issues a password_reset token for the user, stores
	// it on the record, and returns it. Returns "" with a nil error when the
	// user is absent or inactive so callers stay enumeration-safe.
	GenerateResetToken(ctx context.Context, email string) (string, error)

	// ResetPasswordWithToken finds the record whose stored reset token
	// matches, stores the re-hashed password, and clears the token.
	// Returns false when no record matches.
	ResetPasswordWithToken(ctx context.Context, token, newPassword string) (bool, error)

	// ChangePassword verifies the current password and stores the re-hashed
	// new one. Returns false without mutating when the user is absent,
	// inactive, or the current password does not verify.
	ChangePassword(ctx context.Context, id, currentPassword, newPassword string) (bool, error)
}
