// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

// Package postgres provides the durable identity.Repository backend.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/identra/identra/internal/identity"
)

// DB is the subset of pgxpool.Pool the repository uses. pgxmock satisfies it
// for unit tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, email, name, password_hash, is_active, created_at, reset_token, reset_token_expiry`

// UserRepository implements identity.Repository using PostgreSQL. The
// read-modify-write operations run inside a transaction with a row lock, so
// concurrent mutations of the same record are serialized by the database.
type UserRepository struct {
	db     DB
	hasher identity.PasswordHasher
	codec  identity.TokenCodec
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db DB, hasher identity.PasswordHasher, codec identity.TokenCodec) *UserRepository {
	return &UserRepository{db: db, hasher: hasher, codec: codec}
}

// CreateUser inserts a new active user. The unique index on email enforces
// one record per normalized address; a violation maps to ErrUserAlreadyExists.
func (r *UserRepository) CreateUser(ctx context.Context, email, password, name string) (*identity.User, error) {
	normalized := identity.NormalizeEmail(email)

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

	_, err = r.db.Exec(ctx, `
		INSERT INTO users (id, email, name, password_hash, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		user.ID.String(),
		user.Email,
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, oops.Code("USER_ALREADY_EXISTS").
				With("email", normalized).
				Wrap(identity.ErrUserAlreadyExists)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			Wrap(err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by normalized email.
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	normalized := identity.NormalizeEmail(email)

	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = $1
	`, normalized)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", normalized).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetUserByID retrieves a user by id.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*identity.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id).
			Wrap(err)
	}
	return user, nil
}

// GetAllUsers returns every user record.
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]*identity.User, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
	`)
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "query users").
			Wrap(err)
	}
	defer rows.Close()

	var users []*identity.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, oops.Code("USER_LIST_FAILED").
				With("operation", "scan user").
				Wrap(err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "iterate users").
			Wrap(err)
	}
	return users, nil
}

// UpdateUser replaces the full record keyed by id.
// Returns ErrNotFound when the id is absent.
func (r *UserRepository) UpdateUser(ctx context.Context, user *identity.User) (*identity.User, error) {
	result, err := r.db.Exec(ctx, `
		UPDATE users SET
			email = $2,
			name = $3,
			password_hash = $4,
			is_active = $5,
			reset_token = $6,
			reset_token_expiry = $7
		WHERE id = $1
	`,
		user.ID.String(),
		identity.NormalizeEmail(user.Email),
		user.Name,
		user.PasswordHash,
		user.IsActive,
		user.ResetToken,
		user.ResetTokenExpiry,
	)
	if err != nil {
		return nil, oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(identity.ErrNotFound)
	}
	return user, nil
}

// GenerateResetToken issues and stores a password_reset token for the user.
// Returns "" with a nil error when the user is absent or inactive.
func (r *UserRepository) GenerateResetToken(ctx context.Context, email string) (string, error) {
	normalized := identity.NormalizeEmail(email)

	var token string
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE email = $1
			FOR UPDATE
		`, normalized)

		user, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return nil
		}

		issued, expiresAt, err := r.codec.IssuePasswordReset(user.ID.String())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET reset_token = $2, reset_token_expiry = $3
			WHERE id = $1
		`, user.ID.String(), issued, expiresAt)
		if err != nil {
			return err
		}

		token = issued
		return nil
	})
	if err != nil {
		return "", oops.Code("RESET_TOKEN_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}
	return token, nil
}

// ResetPasswordWithToken finds the record holding the presented token,
// validates it, stores the re-hashed password, and clears the token.
// Returns false when no record matches.
func (r *UserRepository) ResetPasswordWithToken(ctx context.Context, token, newPassword string) (bool, error) {
	var reset bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE reset_token = $1
			FOR UPDATE
		`, token)

		user, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !user.IsResetTokenValid(r.codec, token) {
			return nil
		}

		hash, err := r.hasher.Hash(newPassword)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET password_hash = $2, reset_token = NULL, reset_token_expiry = NULL
			WHERE id = $1
		`, user.ID.String(), hash)
		if err != nil {
			return err
		}

		reset = true
		return nil
	})
	if err != nil {
		return false, oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "reset password with token").
			Wrap(err)
	}
	return reset, nil
}

// ChangePassword verifies the current password and stores the re-hashed new
// one. Returns false without mutating when the user is absent, inactive, or
// the current password does not verify.
func (r *UserRepository) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) (bool, error) {
	var changed bool
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+userColumns+`
			FROM users
			WHERE id = $1
			FOR UPDATE
		`, id)

		user, err := scanUser(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if !user.IsActive {
			return nil
		}

		valid, err := r.hasher.Verify(currentPassword, user.PasswordHash)
		if err != nil {
			return err
		}
		if !valid {
			return nil
		}

		hash, err := r.hasher.Hash(newPassword)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE users SET password_hash = $2
			WHERE id = $1
		`, id, hash)
		if err != nil {
			return err
		}

		changed = true
		return nil
	})
	if err != nil {
		return false, oops.Code("CHANGE_PASSWORD_FAILED").
			With("operation", "change password").
			With("id", id).
			Wrap(err)
	}
	return changed, nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows.
func scanUser(row pgx.Row) (*identity.User, error) {
	var (
		idStr            string
		email            string
		name             string
		passwordHash     string
		isActive         bool
		createdAt        time.Time
		resetToken       *string
		resetTokenExpiry *time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&name,
		&passwordHash,
		&isActive,
		&createdAt,
		&resetToken,
		&resetTokenExpiry,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("USER_SCAN_FAILED").
			With("operation", "scan user").
			Wrap(err)
	}

	id, err := identity.ParseULID(idStr)
	if err != nil {
		return nil, err
	}

	return &identity.User{
		ID:               id,
		Email:            email,
		Name:             name,
		PasswordHash:     passwordHash,
		IsActive:         isActive,
		CreatedAt:        createdAt,
		ResetToken:       resetToken,
		ResetTokenExpiry: resetTokenExpiry,
	}, nil
}

// Compile-time interface check.
var _ identity.Repository = (*UserRepository)(nil)
