// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

// Package identity implements the credential issuance and validation core:
// registration, login, token refresh, and the password-reset and
// change-password flows.
//
// # Domain Types
//
// User is the persisted identity record. It is owned by a Repository and
// must only be mutated through a Repository's update path; the state
// transition helpers (SetResetToken, ClearResetToken) exist for backends
// and do not persist anything themselves.
//
// # Components
//
//   - PasswordHasher / Argon2Hasher - one-way password hashing
//   - TokenCodec / Codec - signed bearer tokens (access, refresh, password_reset)
//   - Repository - storage contract with in-memory and PostgreSQL backends
//   - Service - orchestrates the flows on top of the above
//
// The Service is the sole entry point intended for API layers. Transport,
// rate limiting, and email delivery are deliberately out of scope.
package identity
