// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Refresh token configuration.
const (
	RefreshTokenBytes          = 64 // 512 bits of entropy
	DefaultRefreshLifetimeDays = 30
	MaxClientIPLength          = 64
	MaxUserAgentLength         = 512
)

// RefreshToken is a session record. Only the hash of the raw secret is
// stored. Once written, only the revocation fields ever change.
type RefreshToken struct {
	ID                ulid.ULID
	UserID            ulid.ULID
	TokenHash         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	CreatedByIP       string
	CreatedByUA       string
	RevokedAt         *time.Time
	RevokedByIP       *string
	ReplacedByTokenID *ulid.ULID
}

// IsRevoked reports whether the record has been revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsExpiredAt reports whether the record is expired at now.
func (t *RefreshToken) IsExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActiveAt reports whether the record is neither revoked nor expired at now.
func (t *RefreshToken) IsActiveAt(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpiredAt(now)
}

// ClientInfo is the advisory fingerprint recorded on a session.
type ClientInfo struct {
	IP        string
	UserAgent string
}

func (c ClientInfo) truncated() ClientInfo {
	return ClientInfo{
		IP:        TruncateIP(c.IP),
		UserAgent: truncate(c.UserAgent, MaxUserAgentLength),
	}
}

// TruncateIP bounds ip to the stored column width.
func TruncateIP(ip string) string {
	return truncate(ip, MaxClientIPLength)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// RefreshTokenFactory mints refresh secrets and their stored records.
type RefreshTokenFactory struct {
	lifetime time.Duration
	now      func() time.Time
}

// NewRefreshTokenFactory creates a factory issuing tokens valid for lifetimeDays.
func NewRefreshTokenFactory(lifetimeDays int) (*RefreshTokenFactory, error) {
	if lifetimeDays <= 0 {
		return nil, oops.Code("REFRESH_INVALID_LIFETIME").
			With("lifetime_days", lifetimeDays).
			Errorf("refresh token lifetime must be positive")
	}
	return &RefreshTokenFactory{
		lifetime: time.Duration(lifetimeDays) * 24 * time.Hour,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the factory that reads time from now.
func (f *RefreshTokenFactory) WithClock(now func() time.Time) *RefreshTokenFactory {
	cp := *f
	cp.now = now
	return &cp
}

// Lifetime returns how long issued tokens stay valid.
func (f *RefreshTokenFactory) Lifetime() time.Duration {
	return f.lifetime
}

// Create generates a raw secret and the record that represents it. The raw
// secret is URL-safe base64 so it can travel in a cookie unescaped.
//
// A crypto/rand failure is unrecoverable; rand.Read aborts the process
// rather than returning an error.
func (f *RefreshTokenFactory) Create(userID ulid.ULID, client ClientInfo) (string, *RefreshToken) {
	buf := make([]byte, RefreshTokenBytes)
	_, _ = rand.Read(buf) //nolint:errcheck // never returns an error; crashes the process instead
	raw := base64.RawURLEncoding.EncodeToString(buf)

	client = client.truncated()
	now := f.now().UTC()
	return raw, &RefreshToken{
		ID:          ulid.Make(),
		UserID:      userID,
		TokenHash:   HashRefreshToken(raw),
		CreatedAt:   now,
		ExpiresAt:   now.Add(f.lifetime),
		CreatedByIP: client.IP,
		CreatedByUA: client.UserAgent,
	}
}

// Hash returns the lookup hash for raw.
func (f *RefreshTokenFactory) Hash(raw string) string {
	return HashRefreshToken(raw)
}

// HashRefreshToken returns the hex SHA-256 of raw. It is unsalted so that
// lookups by exact hash work across restarts.
func HashRefreshToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
