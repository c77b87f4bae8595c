// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// TokenKind distinguishes the three bearer token uses. Consumers of a decoded
// token must check the kind matches the expected use; the codec does not.
type TokenKind string

const (
	// TokenAccess is a short-lived token authorizing API calls.
	TokenAccess TokenKind = "access"
	// TokenRefresh is a longer-lived token used to obtain new token pairs.
	TokenRefresh TokenKind = "refresh"
	// TokenPasswordReset authorizes exactly one password change.
	TokenPasswordReset TokenKind = "password_reset"
)

// MinSecretLength is the minimum signing secret length in bytes. A shorter
// secret is a fatal configuration error.
const MinSecretLength = 32

// Default token lifetimes.
const (
	DefaultAccessTTL  = 30 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
	DefaultResetTTL   = time.Hour
)

// CodecConfig configures a Codec. TTLs are used as given: a zero TTL is legal
// and produces immediately-expired tokens.
type CodecConfig struct {
	Secret     string
	Algorithm  string // "HS256" or empty for the default
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
}

// TokenInfo is the decoded view of a verified token.
type TokenInfo struct {
	Subject   string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec issues and verifies the three bearer token kinds.
type TokenCodec interface {
	IssueAccess(subject string) (string, error)
	IssueRefresh(subject string) (string, error)

	// IssuePasswordReset also returns the expiry so repositories can store
	// it on the record alongside the token.
	IssuePasswordReset(subject string) (string, time.Time, error)

	// Verify checks signature and expiry. It returns ErrExpiredToken for a
	// well-signed token past its expiry and ErrInvalidToken for anything
	// malformed, badly signed, or signed with an unsupported algorithm.
	Verify(token string) (*TokenInfo, error)
}

type tokenClaims struct {
	Kind TokenKind `json:"type"`
	jwt.RegisteredClaims
}

// Codec implements TokenCodec with HMAC-SHA256 over a process-wide secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	resetTTL   time.Duration
}

// NewCodec validates the configuration and creates a Codec.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_bytes", MinSecretLength).
			Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}
	switch cfg.Algorithm {
	case "", "HS256":
	default:
		return nil, oops.Code("TOKEN_ALGORITHM_UNSUPPORTED").
			With("algorithm", cfg.Algorithm).
			Errorf("unsupported signing algorithm: %s", cfg.Algorithm)
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 || cfg.ResetTTL < 0 {
		return nil, oops.Code("TOKEN_TTL_INVALID").Errorf("token lifetimes must not be negative")
	}

	return &Codec{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		resetTTL:   cfg.ResetTTL,
	}, nil
}

// IssueAccess issues an access token for the subject.
func (c *Codec) IssueAccess(subject string) (string, error) {
	token, _, err := c.issue(subject, TokenAccess, c.accessTTL)
	return token, err
}

// IssueRefresh issues a refresh token for the subject.
func (c *Codec) IssueRefresh(subject string) (string, error) {
	token, _, err := c.issue(subject, TokenRefresh, c.refreshTTL)
	return token, err
}

// IssuePasswordReset issues a password_reset token and returns its expiry.
func (c *Codec) IssuePasswordReset(subject string) (string, time.Time, error) {
	return c.issue(subject, TokenPasswordReset, c.resetTTL)
}

func (c *Codec) issue(subject string, kind TokenKind, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	claims := tokenClaims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks signature and expiry and decodes the claims.
func (c *Codec) Verify(token string) (*TokenInfo, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	claims := &tokenClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrExpiredToken)
		}
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	switch claims.Kind {
	case TokenAccess, TokenRefresh, TokenPasswordReset:
	default:
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Kind:    claims.Kind,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// Compile-time interface check.
var _ TokenCodec = (*Codec)(nil)
