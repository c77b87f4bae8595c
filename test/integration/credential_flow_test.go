// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Identra Contributors

//go:build integration

package integration

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/identra/identra/internal/identity"
	identitypg "github.com/identra/identra/internal/identity/postgres"
	"github.com/identra/identra/internal/store"
)

// testEnv holds the resources shared by the credential flow specs.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool
	service   *identity.Service
	repo      *identitypg.UserRepository
	codec     *identity.Codec
}

// setupTestEnv starts PostgreSQL, applies migrations, and wires the service.
func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("identra_test"),
		postgres.WithUsername("identra"),
		postgres.WithPassword("identra"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.Connect(ctx, connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	env.codec, err = identity.NewCodec(identity.CodecConfig{
		Secret:     "integration-test-secret-key-0123456789",
		AccessTTL:  identity.DefaultAccessTTL,
		RefreshTTL: identity.DefaultRefreshTTL,
		ResetTTL:   identity.DefaultResetTTL,
	})
	if err != nil {
		env.cleanup()
		return nil, err
	}

	hasher := identity.NewArgon2Hasher()
	env.repo = identitypg.NewUserRepository(env.pool, hasher, env.codec)
	env.service, err = identity.NewService(env.repo, env.codec, hasher)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	return env, nil
}

// cleanup releases all test resources.
func (env *testEnv) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
	env.cancel()
}

var _ = Describe("Credential flows against PostgreSQL", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if env != nil {
			env.cleanup()
		}
	})

	It("registers a new user", func() {
		user, err := env.service.RegisterUser(env.ctx, "Flow@Example.COM", "initial-password", "Flow User")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Email).To(Equal("flow@example.com"))
		Expect(user.IsActive).To(BeTrue())
		Expect(user.ID.String()).To(HaveLen(26))
	})

	It("rejects a duplicate registration", func() {
		_, err := env.service.RegisterUser(env.ctx, "flow@example.com", "other-password", "Duplicate")
		Expect(err).To(MatchError(identity.ErrUserAlreadyExists))
	})

	It("logs in and issues a verifiable token pair", func() {
		result, err := env.service.LoginUser(env.ctx, "flow@example.com", "initial-password")
		Expect(err).NotTo(HaveOccurred())

		access, err := env.codec.Verify(result.AccessToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(access.Kind).To(Equal(identity.TokenAccess))
		Expect(access.Subject).To(Equal(result.User.ID.String()))

		refresh, err := env.codec.Verify(result.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(refresh.Kind).To(Equal(identity.TokenRefresh))
	})

	It("rejects a wrong password without revealing why", func() {
		_, err := env.service.LoginUser(env.ctx, "flow@example.com", "wrong-password")
		Expect(err).To(MatchError(identity.ErrInvalidCredentials))
	})

	It("rejects an unknown email with the same error", func() {
		_, err := env.service.LoginUser(env.ctx, "nobody@example.com", "whatever")
		Expect(err).To(MatchError(identity.ErrInvalidCredentials))
	})

	It("refreshes a token pair", func() {
		result, err := env.service.LoginUser(env.ctx, "flow@example.com", "initial-password")
		Expect(err).NotTo(HaveOccurred())

		pair, err := env.service.RefreshAccessToken(env.ctx, result.RefreshToken)
		Expect(err).NotTo(HaveOccurred())
		Expect(pair.AccessToken).NotTo(BeEmpty())
		Expect(pair.RefreshToken).NotTo(BeEmpty())
	})

	It("refuses to refresh from an access token", func() {
		result, err := env.service.LoginUser(env.ctx, "flow@example.com", "initial-password")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.service.RefreshAccessToken(env.ctx, result.AccessToken)
		Expect(err).To(MatchError(identity.ErrInvalidToken))
	})

	It("completes a password reset round trip", func() {
		generated, err := env.service.RequestPasswordReset(env.ctx, "flow@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(generated).To(BeTrue())

		user, err := env.repo.GetUserByEmail(env.ctx, "flow@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.ResetToken).NotTo(BeNil())

		err = env.service.ResetPassword(env.ctx, *user.ResetToken, "reset-password")
		Expect(err).NotTo(HaveOccurred())

		// The consumed token is single use.
		err = env.service.ResetPassword(env.ctx, *user.ResetToken, "again")
		Expect(err).To(MatchError(identity.ErrInvalidToken))

		_, err = env.service.LoginUser(env.ctx, "flow@example.com", "reset-password")
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports success for a reset request on an unknown email", func() {
		generated, err := env.service.RequestPasswordReset(env.ctx, "stranger@example.com")
		Expect(err).NotTo(HaveOccurred())
		Expect(generated).To(BeFalse())
	})

	It("changes a password with the current one", func() {
		user, err := env.repo.GetUserByEmail(env.ctx, "flow@example.com")
		Expect(err).NotTo(HaveOccurred())

		err = env.service.ChangePassword(env.ctx, user.ID.String(), "reset-password", "changed-password")
		Expect(err).NotTo(HaveOccurred())

		_, err = env.service.LoginUser(env.ctx, "flow@example.com", "changed-password")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a password change with a wrong current password", func() {
		user, err := env.repo.GetUserByEmail(env.ctx, "flow@example.com")
		Expect(err).NotTo(HaveOccurred())

		err = env.service.ChangePassword(env.ctx, user.ID.String(), "wrong", "whatever-next")
		Expect(err).To(MatchError(identity.ErrInvalidCredentials))
	})

	It("denies login to a deactivated account", func() {
		user, err := env.repo.GetUserByEmail(env.ctx, "flow@example.com")
		Expect(err).NotTo(HaveOccurred())

		deactivated := user.Clone()
		deactivated.IsActive = false
		_, err = env.repo.UpdateUser(env.ctx, deactivated)
		Expect(err).NotTo(HaveOccurred())

		_, err = env.service.LoginUser(env.ctx, "flow@example.com", "changed-password")
		Expect(err).To(MatchError(identity.ErrInvalidCredentials))
	})
})
