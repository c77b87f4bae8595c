// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

// Package memory provides a volatile in-memory identity.Repository backend
// for development and tests. Data is lost when the process exits.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/identra/identra/internal/identity"
)

// UserRepository implements identity.Repository with maps keyed by id and by
// normalized email. A single RWMutex serializes read-modify-write sequences;
// the reference implementation had no locking, which is a documented
// divergence.
type UserRepository struct {
	mu     sync.RWMutex
	users  map[string]*identity.User // id -> record
	emails map[string]string         // normalized email -> id
	hasher identity.PasswordHasher
	codec  identity.TokenCodec
}

// NewUserRepository creates an empty in-memory repository.
func NewUserRepository(hasher identity.PasswordHasher, codec identity.TokenCodec) *UserRepository {
	return &UserRepository{
		users:  make(map[string]*identity.User),
		emails: make(map[string]string),
		hasher: hasher,
		codec:  codec,
	}
}

// CreateUser stores a new active user keyed by a fresh ULID.
func (r *UserRepository) CreateUser(ctx context.Context, email, password, name string) (*identity.User, error) {
	normalized := identity.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.emails[normalized]; taken {
		return nil, oops.Code("USER_ALREADY_EXISTS").
			With("email", normalized).
			Wrap(identity.ErrUserAlreadyExists)
	}

	hash, err := r.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user := &identity.User{
		ID:           identity.NewULID(),
		Email:        normalized,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}

	r.users[user.ID.String()] = user
	r.emails[normalized] = user.ID.String()

	return user.Clone(), nil
}

// GetUserByEmail looks a record up by normalized email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	normalized := identity.NormalizeEmail(email)

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[normalized]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", normalized).
			Wrap(identity.ErrNotFound)
	}
	return r.users[id].Clone(), nil
}

// GetUserByID looks a record up by id.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(identity.ErrNotFound)
	}
	return user.Clone(), nil
}

// GetAllUsers returns every record in unspecified order.
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*identity.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user.Clone())
	}
	return users, nil
}

// UpdateUser replaces the stored record keyed by id. Unlike the PostgreSQL
// backend this upserts when the id is absent, matching the reference
// behavior; the email index is kept consistent either way.
func (r *UserRepository) UpdateUser(ctx context.Context, user *identity.User) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.storeLocked(user), nil
}

// storeLocked replaces the record and reindexes its email.
// Callers must hold the write lock.
func (r *UserRepository) storeLocked(user *identity.User) *identity.User {
	id := user.ID.String()
	if existing, ok := r.users[id]; ok && existing.Email != user.Email {
		delete(r.emails, existing.Email)
	}

	stored := user.Clone()
	stored.Email = identity.NormalizeEmail(stored.Email)
	r.users[id] = stored
	r.emails[stored.Email] = id

	return stored.Clone()
}

// GenerateResetToken issues and stores a password_reset token for the user.
// Returns "" with a nil error when the user is absent or inactive.
func (r *UserRepository) GenerateResetToken(ctx context.Context, email string) (string, error) {
	normalized := identity.NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.emails[normalized]
	if !ok {
		return "", nil
	}
	user := r.users[id]
	if !user.IsActive {
		return "", nil
	}

	token, expiresAt, err := r.codec.IssuePasswordReset(user.ID.String())
	if err != nil {
		return "", oops.Code("RESET_TOKEN_FAILED").
			With("operation", "issue password reset token").
			Wrap(err)
	}

	updated := user.Clone()
	updated.SetResetToken(token, expiresAt)
	r.storeLocked(updated)

	return token, nil
}

// ResetPasswordWithToken scans for the record whose stored reset token is
// valid for the presented one, stores the re-hashed password, and clears the
// token. Returns false when no record matches.
func (r *UserRepository) ResetPasswordWithToken(ctx context.Context, token, newPassword string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if !user.IsResetTokenValid(r.codec, token) {
			continue
		}

		hash, err := r.hasher.Hash(newPassword)
		if err != nil {
			return false, oops.Code("RESET_PASSWORD_FAILED").
				With("operation", "hash password").
				Wrap(err)
		}

		updated := user.Clone()
		updated.PasswordHash = hash
		updated.ClearResetToken()
		r.storeLocked(updated)
		return true, nil
	}
	return false, nil
}

// ChangePassword verifies the current password and stores the re-hashed new
// one. Returns false without mutating when the user is absent, inactive, or
// the current password does not verify.
func (r *UserRepository) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok || !user.IsActive {
		return false, nil
	}

	valid, err := r.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return false, oops.Code("CHANGE_PASSWORD_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return false, nil
	}

	hash, err := r.hasher.Hash(newPassword)
	if err != nil {
		return false, oops.Code("CHANGE_PASSWORD_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	updated := user.Clone()
	updated.PasswordHash = hash
	r.storeLocked(updated)
	return true, nil
}

// Compile-time interface check.
var _ identity.Repository = (*UserRepository)(nil)
