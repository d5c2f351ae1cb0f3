// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth_test

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelstore/modelstore/internal/auth"
	"github.com/modelstore/modelstore/internal/auth/authtest"
	"github.com/modelstore/modelstore/pkg/errutil"
)

func TestNewRefreshTokenFactory_RejectsNonPositiveLifetime(t *testing.T) {
	for _, days := range []int{0, -1} {
		_, err := auth.NewRefreshTokenFactory(days)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "REFRESH_INVALID_LIFETIME")
	}
}

func TestRefreshTokenFactory_Create(t *testing.T) {
	clock := authtest.NewClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	factory, err := auth.NewRefreshTokenFactory(30)
	require.NoError(t, err)
	factory = factory.WithClock(clock.Now)
	userID := ulid.Make()

	raw, record := factory.Create(userID, auth.ClientInfo{IP: "10.0.0.1", UserAgent: "curl/8"})

	t.Run("raw secret is url-safe and carries 512 bits", func(t *testing.T) {
		decoded, err := base64.RawURLEncoding.DecodeString(raw)
		require.NoError(t, err)
		assert.Len(t, decoded, auth.RefreshTokenBytes)
		assert.NotContains(t, raw, "+")
		assert.NotContains(t, raw, "/")
		assert.NotContains(t, raw, "=")
	})

	t.Run("record stores only the hash", func(t *testing.T) {
		assert.Equal(t, factory.Hash(raw), record.TokenHash)
		assert.NotEqual(t, raw, record.TokenHash)
		assert.NotContains(t, record.TokenHash, raw)
	})

	t.Run("record carries owner, lifetime and fingerprint", func(t *testing.T) {
		assert.Equal(t, userID, record.UserID)
		assert.NotEqual(t, ulid.ULID{}, record.ID)
		assert.Equal(t, clock.Now(), record.CreatedAt)
		assert.Equal(t, clock.Now().Add(30*24*time.Hour), record.ExpiresAt)
		assert.Equal(t, "10.0.0.1", record.CreatedByIP)
		assert.Equal(t, "curl/8", record.CreatedByUA)
		assert.Nil(t, record.RevokedAt)
		assert.Nil(t, record.RevokedByIP)
		assert.Nil(t, record.ReplacedByTokenID)
		assert.True(t, record.IsActiveAt(clock.Now()))
	})

	t.Run("secrets are unique", func(t *testing.T) {
		other, _ := factory.Create(userID, auth.ClientInfo{})
		assert.NotEqual(t, raw, other)
	})

	t.Run("oversized fingerprint is truncated", func(t *testing.T) {
		_, rec := factory.Create(userID, auth.ClientInfo{
			IP:        strings.Repeat("1", 100),
			UserAgent: strings.Repeat("u", 1000),
		})
		assert.Len(t, rec.CreatedByIP, auth.MaxClientIPLength)
		assert.Len(t, rec.CreatedByUA, auth.MaxUserAgentLength)
	})

	t.Run("truncation keeps multibyte characters whole", func(t *testing.T) {
		_, rec := factory.Create(userID, auth.ClientInfo{
			IP:        strings.Repeat("a", auth.MaxClientIPLength-1) + "é",
			UserAgent: strings.Repeat("a", auth.MaxUserAgentLength-1) + "é",
		})
		assert.True(t, utf8.ValidString(rec.CreatedByIP))
		assert.True(t, utf8.ValidString(rec.CreatedByUA))
		assert.Equal(t, strings.Repeat("a", auth.MaxClientIPLength-1), rec.CreatedByIP)
		assert.Equal(t, strings.Repeat("a", auth.MaxUserAgentLength-1), rec.CreatedByUA)
	})
}

func TestTruncateIP(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want string
	}{
		{"short address unchanged", "198.51.100.7", "198.51.100.7"},
		{"exact width unchanged", strings.Repeat("1", auth.MaxClientIPLength), strings.Repeat("1", auth.MaxClientIPLength)},
		{"forwarded chain cut to width", strings.Repeat("203.0.113.7, ", 10), strings.Repeat("203.0.113.7, ", 10)[:auth.MaxClientIPLength]},
		{"four byte rune at the boundary", strings.Repeat("1", auth.MaxClientIPLength-2) + "😀", strings.Repeat("1", auth.MaxClientIPLength-2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := auth.TruncateIP(tt.ip)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), auth.MaxClientIPLength)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestHashRefreshToken_IsDeterministic(t *testing.T) {
	a := auth.HashRefreshToken("same-input")
	b := auth.HashRefreshToken("same-input")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, auth.HashRefreshToken("other-input"))
}

func TestRefreshToken_State(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	revokedAt := now.Add(-time.Minute)

	tests := []struct {
		name   string
		token  auth.RefreshToken
		active bool
	}{
		{"fresh", auth.RefreshToken{ExpiresAt: now.Add(time.Hour)}, true},
		{"expires exactly now", auth.RefreshToken{ExpiresAt: now}, false},
		{"expired", auth.RefreshToken{ExpiresAt: now.Add(-time.Second)}, false},
		{"revoked", auth.RefreshToken{ExpiresAt: now.Add(time.Hour), RevokedAt: &revokedAt}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.token.IsActiveAt(now))
		})
	}
}
