// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// MaxEmailLength bounds the stored email column.
const MaxEmailLength = 255

// User is an identity record. Users are soft-deleted, never removed.
type User struct {
	ID              ulid.ULID
	Email           string
	NormalizedEmail string
	PasswordHash    string
	CreatedAt       time.Time
	IsAdmin         bool
	IsDeleted       bool
	DeletedAt       *time.Time
	DeletedBy       *ulid.ULID
}

// NormalizeEmail returns the lookup key for an email: trimmed and uppercased.
func NormalizeEmail(email string) string {
	return strings.ToUpper(strings.TrimSpace(email))
}

// NewUser creates a validated, non-admin User with a fresh ID.
func NewUser(email, passwordHash string, now time.Time) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code("USER_INVALID_EMAIL").Wrapf(ErrInvalidInput, "email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return nil, oops.Code("USER_INVALID_EMAIL").
			With("length", len(email)).
			Wrapf(ErrInvalidInput, "email exceeds %d characters", MaxEmailLength)
	}
	if passwordHash == "" {
		return nil, oops.Code("USER_INVALID_PASSWORD_HASH").Errorf("password hash cannot be empty")
	}
	return &User{
		ID:              ulid.Make(),
		Email:           email,
		NormalizedEmail: NormalizeEmail(email),
		PasswordHash:    passwordHash,
		CreatedAt:       now,
	}, nil
}

// UserProfile is the public projection of a User.
type UserProfile struct {
	ID        ulid.ULID `json:"id" yaml:"id"`
	Email     string    `json:"email" yaml:"email"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	IsAdmin   bool      `json:"is_admin" yaml:"is_admin"`
}

// Profile projects the user for display.
func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		IsAdmin:   u.IsAdmin,
	}
}

// UserRepository manages user persistence. Lookups never return
// soft-deleted users; a deleted user resolves to ErrUserNotFound.
// Writes made inside a Transactor scope become visible when it commits.
type UserRepository interface {
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)
	GetByNormalizedEmail(ctx context.Context, normalized string) (*User, error)
	// Create fails with ErrConflict when the normalized email is taken.
	Create(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, id ulid.ULID, hash string) error
}
