// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

// Package auth provides the authentication and session core for ModelStore.
//
// # Domain Types
//
// User is the identity record, addressed everywhere by its normalized email
// (see NormalizeEmail). RefreshToken is one session: a hashed opaque secret
// with an expiry and an append-only revocation trail. Records are produced by
// their constructors:
//   - NewUser - creates a User with a fresh ID and validated email
//   - RefreshTokenFactory.Create - creates a RefreshToken and its raw secret
//
// The raw refresh secret is returned to the caller exactly once and is never
// persisted or logged unmasked.
//
// # Services
//
// Service (built with NewAuthService) coordinates registration, login,
// refresh rotation, logout and session listing. Every multi-step mutation runs
// inside one Transactor scope so that partial results are never observable.
//
// # Refresh rotation
//
// Rotation is revoke-then-issue. Presenting a refresh secret whose record is
// already revoked or expired is treated as replay: every active session of the
// owning user is revoked and the call fails with ErrUnauthorized.
package auth
