// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package authtest

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/modelstore/modelstore/internal/auth"
	"github.com/modelstore/modelstore/internal/logging"
)

// Test configuration shared by fixtures.
const (
	Issuer   = "modelstore-test"
	Audience = "modelstore-test-clients"
	//nolint:gosec // G101: test-only key.
	SigningKey = "test-signing-key-0123456789abcdef"
)

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FastArgon2Params are cheap argon2id parameters for tests.
func FastArgon2Params() auth.Argon2Params {
	return auth.Argon2Params{Time: 1, Memory: 1024, Threads: 1, SaltLen: 16, KeyLen: 32}
}

// FastHasher returns an argon2id hasher using FastArgon2Params.
func FastHasher(t testing.TB) *auth.Argon2idHasher {
	t.Helper()
	h, err := auth.NewArgon2idHasherWithParams(FastArgon2Params())
	require.NoError(t, err)
	return h
}

// Fixture wires a Service to an in-memory Store.
type Fixture struct {
	Store    *Store
	Clock    *Clock
	Hasher   *auth.Argon2idHasher
	Signer   *auth.JWTSigner
	Refresh  *auth.RefreshTokenFactory
	Registry *prometheus.Registry
	Metrics  *auth.Metrics
	Logs     *bytes.Buffer
	Service  *auth.Service
}

// NewFixture builds a Service with fast hashing, a fake clock, a private
// metrics registry and JSON logs captured in Logs.
func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	clock := NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	signer, err := auth.NewJWTSigner(auth.SignerConfig{
		Issuer:          Issuer,
		Audience:        Audience,
		Key:             []byte(SigningKey),
		LifetimeMinutes: auth.DefaultAccessLifetimeMinutes,
	})
	require.NoError(t, err)
	signer = signer.WithClock(clock.Now)

	refresh, err := auth.NewRefreshTokenFactory(auth.DefaultRefreshLifetimeDays)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := auth.NewMetrics(reg)

	logs := &bytes.Buffer{}
	store := NewStore()
	hasher := FastHasher(t)

	svc, err := auth.NewAuthService(auth.ServiceDeps{
		Users:    store.Users(),
		Sessions: store.Sessions(),
		Hasher:   hasher,
		Signer:   signer,
		Refresh:  refresh,
		Tx:       store.Transactor(),
		Logger:   logging.Setup("modelstore-test", "test", "json", slog.LevelDebug, logs),
		Clock:    clock.Now,
		Metrics:  metrics,
	})
	require.NoError(t, err)

	return &Fixture{
		Store:    store,
		Clock:    clock,
		Hasher:   hasher,
		Signer:   signer,
		Refresh:  refresh,
		Registry: reg,
		Metrics:  metrics,
		Logs:     logs,
		Service:  svc,
	}
}

// SeedUser stores a user with the given password hashed by the fixture's
// hasher and returns it.
func (f *Fixture) SeedUser(t testing.TB, email, password string, admin bool) *auth.User {
	t.Helper()
	hash, err := f.Hasher.Hash(password)
	require.NoError(t, err)
	u, err := auth.NewUser(email, hash, f.Clock.Now())
	require.NoError(t, err)
	u.IsAdmin = admin
	f.Store.PutUser(u)
	return u
}
