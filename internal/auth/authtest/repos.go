// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package authtest

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/modelstore/modelstore/internal/auth"
)

// UserRepository implements auth.UserRepository over a Store.
type UserRepository struct {
	s *Store
}

// GetByID returns a live user by id.
func (r *UserRepository) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpUserGetByID); err != nil {
		return nil, err
	}
	u, ok := r.s.users[id]
	if !ok || u.IsDeleted {
		return nil, oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrUserNotFound)
	}
	return &u, nil
}

// GetByNormalizedEmail returns a live user by normalized email.
func (r *UserRepository) GetByNormalizedEmail(_ context.Context, normalized string) (*auth.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpUserGetByEmail); err != nil {
		return nil, err
	}
	for _, u := range r.s.users {
		if u.NormalizedEmail == normalized && !u.IsDeleted {
			return &u, nil
		}
	}
	return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrUserNotFound)
}

// Create stores a new user. The normalized email is unique across all
// users, deleted ones included, as the database index is.
func (r *UserRepository) Create(_ context.Context, user *auth.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpUserCreate); err != nil {
		return err
	}
	for _, u := range r.s.users {
		if u.NormalizedEmail == user.NormalizedEmail {
			return oops.Code("USER_EMAIL_CONFLICT").Wrap(auth.ErrConflict)
		}
	}
	r.s.users[user.ID] = *user
	return nil
}

// UpdatePasswordHash replaces the stored hash of a live user.
func (r *UserRepository) UpdatePasswordHash(_ context.Context, id ulid.ULID, hash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpUserUpdatePasswordHash); err != nil {
		return err
	}
	u, ok := r.s.users[id]
	if !ok || u.IsDeleted {
		return oops.Code("USER_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrUserNotFound)
	}
	u.PasswordHash = hash
	r.s.users[id] = u
	return nil
}

// SessionStore implements auth.SessionStore over a Store.
type SessionStore struct {
	s *Store
}

// Add stores a new session. Token hashes are unique.
func (r *SessionStore) Add(_ context.Context, token *auth.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionAdd); err != nil {
		return err
	}
	if err := checkWidth("created_by_ip", token.CreatedByIP, auth.MaxClientIPLength); err != nil {
		return err
	}
	if err := checkWidth("created_by_ua", token.CreatedByUA, auth.MaxUserAgentLength); err != nil {
		return err
	}
	for _, t := range r.s.sessions {
		if t.TokenHash == token.TokenHash {
			return oops.Code("SESSION_HASH_CONFLICT").Errorf("duplicate token hash")
		}
	}
	r.s.sessions[token.ID] = *token
	return nil
}

// GetByHash returns the session with the given token hash.
func (r *SessionStore) GetByHash(_ context.Context, hash string) (*auth.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionGetByHash); err != nil {
		return nil, err
	}
	for _, t := range r.s.sessions {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrSessionNotFound)
}

// GetByID returns the session with the given id.
func (r *SessionStore) GetByID(_ context.Context, id ulid.ULID) (*auth.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionGetByID); err != nil {
		return nil, err
	}
	t, ok := r.s.sessions[id]
	if !ok {
		return nil, oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	return &t, nil
}

// GetActiveByUser returns active sessions of userID, newest first.
func (r *SessionStore) GetActiveByUser(_ context.Context, userID ulid.ULID, now time.Time, vis auth.UserVisibility) ([]*auth.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionGetActive); err != nil {
		return nil, err
	}
	if !r.visible(userID, vis) {
		return nil, nil
	}

	var active []auth.RefreshToken
	for _, t := range r.s.sessions {
		if t.UserID == userID && t.IsActiveAt(now) {
			active = append(active, t)
		}
	}
	sortNewestFirst(active)

	out := make([]*auth.RefreshToken, len(active))
	for i := range active {
		out[i] = &active[i]
	}
	return out, nil
}

// Revoke revokes the session if it is not already revoked.
func (r *SessionStore) Revoke(_ context.Context, id ulid.ULID, at time.Time, ip string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionRevoke); err != nil {
		return false, err
	}
	if err := checkWidth("revoked_by_ip", ip, auth.MaxClientIPLength); err != nil {
		return false, err
	}
	t, ok := r.s.sessions[id]
	if !ok || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	t.RevokedByIP = &ip
	r.s.sessions[id] = t
	return true, nil
}

// SetReplacedBy links a rotated session to its successor.
func (r *SessionStore) SetReplacedBy(_ context.Context, id, replacementID ulid.ULID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionSetReplacedBy); err != nil {
		return err
	}
	t, ok := r.s.sessions[id]
	if !ok {
		return oops.Code("SESSION_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrSessionNotFound)
	}
	t.ReplacedByTokenID = &replacementID
	r.s.sessions[id] = t
	return nil
}

// RevokeAllForUser revokes every active session of userID.
func (r *SessionStore) RevokeAllForUser(_ context.Context, userID ulid.ULID, at time.Time, ip string, vis auth.UserVisibility) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.enter(OpSessionRevokeAll); err != nil {
		return 0, err
	}
	if err := checkWidth("revoked_by_ip", ip, auth.MaxClientIPLength); err != nil {
		return 0, err
	}
	if !r.visible(userID, vis) {
		return 0, nil
	}

	var n int64
	for id, t := range r.s.sessions {
		if t.UserID != userID || !t.IsActiveAt(at) {
			continue
		}
		revokedAt, revokedBy := at, ip
		t.RevokedAt = &revokedAt
		t.RevokedByIP = &revokedBy
		r.s.sessions[id] = t
		n++
	}
	return n, nil
}

// checkWidth rejects values the varchar columns would refuse and values
// that are not valid UTF-8. Width is counted in bytes, which is stricter
// than PostgreSQL's character count.
func checkWidth(column, value string, width int) error {
	if len(value) > width {
		return oops.Code("SESSION_VALUE_TOO_LONG").
			With("column", column).
			Errorf("value too long for type character varying(%d)", width)
	}
	if !utf8.ValidString(value) {
		return oops.Code("SESSION_INVALID_ENCODING").
			With("column", column).
			Errorf("invalid byte sequence for encoding UTF8")
	}
	return nil
}

// visible applies the soft-delete filter. Callers hold r.s.mu.
func (r *SessionStore) visible(userID ulid.ULID, vis auth.UserVisibility) bool {
	if vis == auth.IncludeDeletedUsers {
		return true
	}
	u, ok := r.s.users[userID]
	return ok && !u.IsDeleted
}

var (
	_ auth.UserRepository = (*UserRepository)(nil)
	_ auth.SessionStore   = (*SessionStore)(nil)
)
