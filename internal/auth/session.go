// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/oklog/ulid/v2"
)

// UserVisibility selects whether a session query honours the soft-delete
// filter on the owning user.
type UserVisibility int

const (
	// ActiveUsersOnly skips sessions whose owner is soft-deleted.
	ActiveUsersOnly UserVisibility = iota
	// IncludeDeletedUsers bypasses the soft-delete filter.
	IncludeDeletedUsers
)

func (v UserVisibility) String() string {
	if v == IncludeDeletedUsers {
		return "include_deleted_users"
	}
	return "active_users_only"
}

// SessionStore persists refresh-token records.
type SessionStore interface {
	// Add stores a new record.
	Add(ctx context.Context, token *RefreshToken) error

	// GetByHash returns the record with the given token hash, or ErrSessionNotFound.
	GetByHash(ctx context.Context, hash string) (*RefreshToken, error)

	// GetByID returns the record with the given id, or ErrSessionNotFound.
	GetByID(ctx context.Context, id ulid.ULID) (*RefreshToken, error)

	// GetActiveByUser returns unrevoked, unexpired records for userID,
	// newest first.
	GetActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time, vis UserVisibility) ([]*RefreshToken, error)

	// Revoke sets revoked_at and revoked_by_ip if the record is not yet
	// revoked. It reports whether this call performed the transition; a
	// concurrent caller that lost the race observes false.
	Revoke(ctx context.Context, id ulid.ULID, at time.Time, ip string) (bool, error)

	// SetReplacedBy links a rotated record to its successor.
	SetReplacedBy(ctx context.Context, id, replacementID ulid.ULID) error

	// RevokeAllForUser revokes every active record of userID and returns
	// how many were revoked.
	RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time, ip string, vis UserVisibility) (int64, error)
}

// SessionView is the listing projection of a session.
type SessionView struct {
	ID          ulid.ULID `json:"id" yaml:"id"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	ExpiresAt   time.Time `json:"expires_at" yaml:"expires_at"`
	CreatedByIP string    `json:"created_by_ip" yaml:"created_by_ip"`
	CreatedByUA string    `json:"created_by_ua" yaml:"created_by_ua"`
	IsActive    bool      `json:"is_active" yaml:"is_active"`
	IsCurrent   bool      `json:"is_current" yaml:"is_current"`

	tokenHash string
}

// NewSessionView projects a record at now. IsCurrent is always false here.
func NewSessionView(t *RefreshToken, now time.Time) SessionView {
	return SessionView{
		ID:          t.ID,
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
		CreatedByIP: t.CreatedByIP,
		CreatedByUA: t.CreatedByUA,
		IsActive:    t.IsActiveAt(now),
		tokenHash:   t.TokenHash,
	}
}

// MarkCurrent flags the view whose record matches the raw refresh token
// presented with the current request.
func MarkCurrent(views []SessionView, rawRefresh string) {
	if rawRefresh == "" {
		return
	}
	hash := []byte(HashRefreshToken(rawRefresh))
	for i := range views {
		views[i].IsCurrent = subtle.ConstantTimeCompare([]byte(views[i].tokenHash), hash) == 1
	}
}
