// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

package observability

import "github.com/identra/identra/internal/identity"

// RecordRegistration counts a successful registration.
func (m *Metrics) RecordRegistration() {
	m.RegistrationsTotal.Inc()
}

// RecordLogin counts a login attempt by outcome.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued counts an issued token by kind.
func (m *Metrics) RecordTokenIssued(kind identity.TokenKind) {
	m.TokensIssuedTotal.WithLabelValues(string(kind)).Inc()
}

// RecordPasswordReset counts a password reset operation by stage.
func (m *Metrics) RecordPasswordReset(stage string) {
	m.PasswordResets.WithLabelValues(stage).Inc()
}

// Compile-time interface check.
var _ identity.Recorder = (*Metrics)(nil)
