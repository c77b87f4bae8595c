// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// dummyPasswordHash is used when a user doesn't exist to prevent timing
// attacks. We still run password verification to make response time
// consistent. This is NOT a real credential - it will never match any password.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// LoginResult bundles the authenticated record with its token pair.
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// TokenPair is a freshly issued access/refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Recorder receives counters for the credential flows. Implementations must
// be safe for concurrent use.
type Recorder interface {
	RecordRegistration()
	RecordLogin(outcome string)
	RecordTokenIssued(kind TokenKind)
	RecordPasswordReset(stage string)
}

// Login outcomes and password reset stages reported to the Recorder.
const (
	LoginOutcomeSuccess = "success"
	LoginOutcomeDenied  = "denied"

	ResetStageRequested = "requested"
	ResetStageCompleted = "completed"
)

type noopRecorder struct{}

func (noopRecorder) RecordRegistration()         {}
func (noopRecorder) RecordLogin(string)          {}
func (noopRecorder) RecordTokenIssued(TokenKind) {}
func (noopRecorder) RecordPasswordReset(string)  {}

// Service orchestrates the credential flows. It is stateless and holds only
// references to its collaborators, which are shared safely across requests.
//
// Refresh tokens are not rotated or revoked here: any still-valid refresh
// token yields new pairs until it expires. Known limitation.
type Service struct {
	repo     Repository
	codec    TokenCodec
	hasher   PasswordHasher
	logger   *slog.Logger
	recorder Recorder
}

// NewService creates a Service with the default logger.
func NewService(repo Repository, codec TokenCodec, hasher PasswordHasher) (*Service, error) {
	return NewServiceWithLogger(repo, codec, hasher, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(repo Repository, codec TokenCodec, hasher PasswordHasher, logger *slog.Logger) (*Service, error) {
	if repo == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if codec == nil {
		return nil, oops.Errorf("token codec is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{repo: repo, codec: codec, hasher: hasher, logger: logger, recorder: noopRecorder{}}, nil
}

// WithRecorder attaches a metrics recorder and returns the service.
// A nil recorder restores the no-op default.
func (s *Service) WithRecorder(r Recorder) *Service {
	if r == nil {
		r = noopRecorder{}
	}
	s.recorder = r
	return s
}

// RegisterUser creates a new active user. Propagates ErrUserAlreadyExists.
func (s *Service) RegisterUser(ctx context.Context, email, password, name string) (*User, error) {
	user, err := s.repo.CreateUser(ctx, email, password, name)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	s.recorder.RecordRegistration()
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID.String())
	return user, nil
}

// LoginUser authenticates by email and password and issues a token pair.
// Absent user, wrong password, and inactive account all fail with
// ErrInvalidCredentials so the error cannot be used for account enumeration.
// Uses constant-time verification against a dummy hash when the user is
// absent to keep response time consistent.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*LoginResult, error) {
	user, lookupErr := s.repo.GetUserByEmail(ctx, email)

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		// Dummy hash verification errors just mean invalid credentials.
		if !userExists {
			return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !userExists || !valid || !user.IsActive {
		s.recorder.RecordLogin(LoginOutcomeDenied)
		return nil, oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	subject := user.ID.String()
	access, err := s.codec.IssueAccess(subject)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue access token").
			Wrap(err)
	}
	refresh, err := s.codec.IssueRefresh(subject)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "issue refresh token").
			Wrap(err)
	}

	s.recorder.RecordLogin(LoginOutcomeSuccess)
	s.recorder.RecordTokenIssued(TokenAccess)
	s.recorder.RecordTokenIssued(TokenRefresh)
	s.logger.InfoContext(ctx, "user logged in", "user_id", subject)
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// RefreshAccessToken verifies a refresh token, re-validates the user, and
// issues a fresh pair. Every failure - wrong kind, expired or malformed
// token, missing or inactive user, and unexpected internal errors - is
// normalized to ErrInvalidToken so nothing about internal state leaks.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	invalid := func(reason string, err error) error {
		if err != nil && !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrExpiredToken) && !errors.Is(err, ErrNotFound) {
			s.logger.ErrorContext(ctx, "unexpected error during token refresh", "reason", reason, "error", err)
		}
		return oops.Code("TOKEN_INVALID").With("reason", reason).Wrap(ErrInvalidToken)
	}

	info, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, invalid("verify", err)
	}
	if info.Kind != TokenRefresh {
		return nil, invalid("kind", nil)
	}

	user, err := s.repo.GetUserByID(ctx, info.Subject)
	if err != nil {
		return nil, invalid("lookup", err)
	}
	if !user.IsActive {
		return nil, invalid("inactive", nil)
	}

	access, err := s.codec.IssueAccess(info.Subject)
	if err != nil {
		return nil, invalid("issue access", err)
	}
	refresh, err := s.codec.IssueRefresh(info.Subject)
	if err != nil {
		return nil, invalid("issue refresh", err)
	}

	s.recorder.RecordTokenIssued(TokenAccess)
	s.recorder.RecordTokenIssued(TokenRefresh)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// RequestPasswordReset generates and stores a reset token for the email.
// Safe to call with any email; the boolean reports whether a token was
// generated, but callers must return an identical success response either
// way to prevent email enumeration.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (bool, error) {
	token, err := s.repo.GenerateResetToken(ctx, email)
	if err != nil {
		return false, oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}
	if token == "" {
		return false, nil
	}

	// Delivery of the token (email) is an external collaborator's job.
	s.recorder.RecordPasswordReset(ResetStageRequested)
	s.recorder.RecordTokenIssued(TokenPasswordReset)
	s.logger.InfoContext(ctx, "password reset token generated", "email", NormalizeEmail(email))
	return true, nil
}

// ResetPassword consumes a reset token and stores the new password.
// Fails with ErrInvalidToken when no record matches the token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	ok, err := s.repo.ResetPasswordWithToken(ctx, token, newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "reset password with token").
			Wrap(err)
	}
	if !ok {
		return oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	s.recorder.RecordPasswordReset(ResetStageCompleted)
	return nil
}

// ChangePassword verifies the current password and stores the new one.
// The repository only reports success or failure; on failure the user is
// re-fetched to distinguish ErrUserNotFound from ErrInvalidCredentials.
func (s *Service) ChangePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	ok, err := s.repo.ChangePassword(ctx, id, currentPassword, newPassword)
	if err != nil {
		return oops.Code("CHANGE_PASSWORD_FAILED").
			With("operation", "change password").
			Wrap(err)
	}
	if ok {
		s.logger.InfoContext(ctx, "password changed", "user_id", id)
		return nil
	}

	if _, err := s.repo.GetUserByID(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("USER_NOT_FOUND").With("user_id", id).Wrap(ErrUserNotFound)
		}
		return oops.Code("CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	return oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}
