// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Access token configuration.
const (
	MinSigningKeyBytes           = 32
	DefaultAccessLifetimeMinutes = 120
	AdminRole                    = "Admin"
	signingAlgorithm             = "HS256"
)

// SignerConfig configures a JWTSigner.
type SignerConfig struct {
	Issuer          string
	Audience        string
	Key             []byte
	LifetimeMinutes int
}

// Validate checks the configuration. It runs at construction so that a bad
// key fails at startup, never at sign time.
func (c SignerConfig) Validate() error {
	if c.Issuer == "" {
		return oops.Code("JWT_CONFIG_INVALID").Errorf("issuer is required")
	}
	if c.Audience == "" {
		return oops.Code("JWT_CONFIG_INVALID").Errorf("audience is required")
	}
	if len(c.Key) < MinSigningKeyBytes {
		return oops.Code("JWT_KEY_TOO_SHORT").
			With("key_bytes", len(c.Key)).
			Errorf("signing key must be at least %d bytes", MinSigningKeyBytes)
	}
	if c.LifetimeMinutes <= 0 {
		return oops.Code("JWT_CONFIG_INVALID").
			With("lifetime_minutes", c.LifetimeMinutes).
			Errorf("access token lifetime must be positive")
	}
	return nil
}

// AccessClaims are the claims carried by an access token.
type AccessClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the token asserts the admin role.
func (c *AccessClaims) IsAdmin() bool {
	return c.Role == AdminRole
}

// TokenSigner mints access tokens.
type TokenSigner interface {
	Sign(user *User) (string, error)
}

// JWTSigner issues and validates HS256 access tokens.
type JWTSigner struct {
	issuer   string
	audience string
	key      []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewJWTSigner validates cfg and returns a signer.
func NewJWTSigner(cfg SignerConfig) (*JWTSigner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key := make([]byte, len(cfg.Key))
	copy(key, cfg.Key)
	return &JWTSigner{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		key:      key,
		lifetime: time.Duration(cfg.LifetimeMinutes) * time.Minute,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the signer that reads time from now.
func (s *JWTSigner) WithClock(now func() time.Time) *JWTSigner {
	cp := *s
	cp.now = now
	return &cp
}

// Sign mints an access token for user. The role claim is present only for
// admins.
func (s *JWTSigner) Sign(user *User) (string, error) {
	now := s.now()
	claims := AccessClaims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			ID:        ulid.Make().String(),
		},
	}
	if user.IsAdmin {
		claims.Role = AdminRole
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", oops.Code("JWT_SIGN_FAILED").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	return signed, nil
}

// Validate checks signature, algorithm, issuer, audience and expiry with no
// clock-skew tolerance.
func (s *JWTSigner) Validate(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingAlgorithm}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(0),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, oops.Code("JWT_INVALID").With("reason", err.Error()).Wrap(ErrUnauthorized)
	}
	return claims, nil
}

var _ TokenSigner = (*JWTSigner)(nil)
