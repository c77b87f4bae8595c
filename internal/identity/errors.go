// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package identity

import "errors"

// Sentinel errors for the credential core. Call sites wrap these with
// oops codes for context; errors.Is sees through the wrapping.
var (
	// ErrNotFound is returned by repositories when a record is absent.
	// Absence is an expected outcome, not a storage failure.
	ErrNotFound = errors.New("not found")

	// ErrUserAlreadyExists is returned when a normalized email is already taken.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrInvalidCredentials covers absent user, wrong password, and inactive
	// account uniformly so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned for malformed, badly signed, wrong-kind,
	// or otherwise unusable tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned for a well-signed token past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrUserNotFound is returned by Service.ChangePassword when the id does
	// not resolve to any user. The caller is already authenticated there, so
	// distinguishing it from ErrInvalidCredentials is acceptable.
	ErrUserNotFound = errors.New("user not found")

	// ErrInactiveUser marks an account gated off from login and resets.
	ErrInactiveUser = errors.New("user account is inactive")
)
