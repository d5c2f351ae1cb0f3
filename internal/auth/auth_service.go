// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/modelstore/modelstore/internal/logging"
)

// AuthResult is returned by Register, Login and Refresh. The boundary moves
// RefreshToken into an HTTP-only cookie and never echoes it in a body.
type AuthResult struct {
	UserID           ulid.ULID
	Email            string
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// ServiceDeps holds the collaborators of Service. Logger, Clock and Metrics
// are optional. A Clock is also applied to Refresh and to a *JWTSigner.
type ServiceDeps struct {
	Users    UserRepository
	Sessions SessionStore
	Hasher   PasswordHasher
	Signer   TokenSigner
	Refresh  *RefreshTokenFactory
	Tx       Transactor
	Logger   *slog.Logger
	Clock    func() time.Time
	Metrics  *Metrics
}

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	sessions SessionStore
	hasher   PasswordHasher
	signer   TokenSigner
	refresh  *RefreshTokenFactory
	tx       Transactor
	logger   *slog.Logger
	now      func() time.Time
	metrics  *Metrics
}

// NewAuthService creates a new Service. All collaborators except Logger,
// Clock and Metrics are required.
func NewAuthService(deps ServiceDeps) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("users repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("session store is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("password hasher is required")
	case deps.Signer == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("token signer is required")
	case deps.Refresh == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("refresh token factory is required")
	case deps.Tx == nil:
		return nil, oops.Code("AUTH_INVALID_DEPS").Errorf("transactor is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refresh := deps.Refresh
	signer := deps.Signer
	now := deps.Clock
	if now == nil {
		now = time.Now
	} else {
		// Session rows and access tokens share one time source.
		refresh = refresh.WithClock(now)
		if js, ok := signer.(*JWTSigner); ok {
			signer = js.WithClock(now)
		}
	}

	return &Service{
		users:    deps.Users,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		signer:   signer,
		refresh:  refresh,
		tx:       deps.Tx,
		logger:   logger.With("component", "auth"),
		now:      now,
		metrics:  deps.Metrics,
	}, nil
}

// dummyPasswordHash is verified against when a user doesn't exist so that
// login timing does not reveal which emails are registered. It never matches.
//
//nolint:gosec // G101: intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// errReplay aborts a refresh transaction when the presented token is dead.
var errReplay = errors.New("refresh token replay")

func invalidCredentials(code string) error {
	return oops.Code(code).Wrap(ErrUnauthorized)
}

// Register creates a user and issues its first session in one transaction.
func (s *Service) Register(ctx context.Context, email, password string, client ClientInfo) (res *AuthResult, err error) {
	defer func() { s.metrics.observe("register", err) }()

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, oops.Code("AUTH_EMAIL_REQUIRED").Wrapf(ErrInvalidInput, "email is required")
	}
	if password == "" {
		return nil, oops.Code("AUTH_PASSWORD_REQUIRED").Wrapf(ErrInvalidInput, "password is required")
	}
	normalized := NormalizeEmail(email)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		_, lookupErr := s.users.GetByNormalizedEmail(ctx, normalized)
		switch {
		case lookupErr == nil:
			return oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrConflict)
		case !errors.Is(lookupErr, ErrNotFound):
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "get user by email").Wrap(lookupErr)
		}

		user, err := NewUser(email, hash, s.now().UTC())
		if err != nil {
			return err
		}
		if err := s.users.Create(ctx, user); err != nil {
			return oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
		}

		res, _, err = s.issue(ctx, user, client)
		return err
	})
	if err != nil {
		s.logger.WarnContext(ctx, "registration failed",
			"email", logging.MaskEmail(email),
			"kind", KindOf(err).String(),
			"error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", res.UserID.String())
	return res, nil
}

// Login authenticates by email and password and issues a new session.
// Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string, client ClientInfo) (res *AuthResult, err error) {
	defer func() { s.metrics.observe("login", err) }()

	user, lookupErr := s.users.GetByNormalizedEmail(ctx, NormalizeEmail(email))
	targetHash := dummyPasswordHash
	switch {
	case lookupErr == nil:
		targetHash = user.PasswordHash
	case !errors.Is(lookupErr, ErrNotFound):
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(lookupErr)
	}

	// Always verify, even for unknown users, to keep timing uniform.
	result, verifyErr := s.hasher.Verify(targetHash, password)
	if user == nil {
		s.logger.WarnContext(ctx, "login failed: unknown email", "email", logging.MaskEmail(email))
		return nil, invalidCredentials("AUTH_INVALID_CREDENTIALS")
	}
	if verifyErr != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(verifyErr)
	}
	if !result.OK() {
		s.logger.WarnContext(ctx, "login failed: wrong password", "user_id", user.ID.String())
		return nil, invalidCredentials("AUTH_INVALID_CREDENTIALS")
	}

	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		if result == VerifySuccessRehashNeeded {
			newHash, err := s.hasher.Hash(password)
			if err != nil {
				return oops.Code("AUTH_REHASH_FAILED").With("operation", "hash password").Wrap(err)
			}
			if err := s.users.UpdatePasswordHash(ctx, user.ID, newHash); err != nil {
				return oops.Code("AUTH_REHASH_FAILED").
					With("operation", "persist rehashed password").
					With("user_id", user.ID.String()).
					Wrap(err)
			}
			user.PasswordHash = newHash
		}

		var err error
		res, _, err = s.issue(ctx, user, client)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result == VerifySuccessRehashNeeded {
		s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
	}
	return res, nil
}

// Refresh rotates a refresh token: the presented record is revoked and a new
// session is issued in the same transaction, with the old record linked to
// the new one. Presenting a revoked or expired token revokes every session of
// its owner and fails with ErrUnauthorized.
func (s *Service) Refresh(ctx context.Context, rawToken string, client ClientInfo) (res *AuthResult, err error) {
	defer func() { s.metrics.observe("refresh", err) }()

	if rawToken == "" {
		return nil, invalidCredentials("AUTH_REFRESH_TOKEN_MISSING")
	}

	client = client.truncated()
	hash := s.refresh.Hash(rawToken)
	now := s.now().UTC()

	var (
		presented *RefreshToken
		ownerGone bool
	)
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		token, err := s.sessions.GetByHash(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return invalidCredentials("AUTH_REFRESH_TOKEN_UNKNOWN")
		}
		if err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "get session by hash").Wrap(err)
		}
		presented = token

		if !token.IsActiveAt(now) {
			return errReplay
		}

		revoked, err := s.sessions.Revoke(ctx, token.ID, now, client.IP)
		if err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").
				With("operation", "revoke presented session").
				With("session_id", token.ID.String()).
				Wrap(err)
		}
		if !revoked {
			// A concurrent refresh rotated this token first.
			return errReplay
		}

		user, err := s.users.GetByID(ctx, token.UserID)
		if errors.Is(err, ErrNotFound) {
			// Keep the revocation; the token must stay dead.
			ownerGone = true
			return nil
		}
		if err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").With("operation", "get session owner").Wrap(err)
		}

		var next *RefreshToken
		res, next, err = s.issue(ctx, user, client)
		if err != nil {
			return err
		}
		if err := s.sessions.SetReplacedBy(ctx, token.ID, next.ID); err != nil {
			return oops.Code("AUTH_REFRESH_FAILED").
				With("operation", "link rotated session").
				With("session_id", token.ID.String()).
				Wrap(err)
		}
		return nil
	})

	switch {
	case errors.Is(err, errReplay):
		return nil, s.handleReplay(ctx, presented, client.IP, now)
	case err != nil:
		return nil, err
	case ownerGone:
		return nil, oops.Code("AUTH_REFRESH_OWNER_MISSING").
			With("user_id", presented.UserID.String()).
			Wrap(ErrUserNotFound)
	}

	s.metrics.revoked("rotated", 1)
	return res, nil
}

// handleReplay revokes every session of the owner of a dead token. It runs
// in its own transaction so the revocation survives the failed refresh.
func (s *Service) handleReplay(ctx context.Context, token *RefreshToken, ip string, now time.Time) error {
	s.metrics.replay()

	var count int64
	err := s.tx.InTransaction(ctx, func(ctx context.Context) error {
		var err error
		count, err = s.sessions.RevokeAllForUser(ctx, token.UserID, now, ip, IncludeDeletedUsers)
		return err
	})
	if err != nil {
		return oops.Code("AUTH_REPLAY_REVOKE_FAILED").
			With("operation", "revoke all sessions after replay").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	s.metrics.revoked("replay", count)

	s.logger.WarnContext(ctx, "refresh token replay detected, all sessions revoked",
		"user_id", token.UserID.String(),
		"session_id", token.ID.String(),
		"token_hash", logging.MaskToken(token.TokenHash),
		"revoked", count)
	return invalidCredentials("AUTH_REFRESH_TOKEN_REPLAYED")
}

// Logout revokes the session behind rawToken. It never fails for empty,
// unknown or already revoked tokens, and never reveals which case applied.
func (s *Service) Logout(ctx context.Context, rawToken, ip string) (err error) {
	defer func() { s.metrics.observe("logout", err) }()

	if rawToken == "" {
		return nil
	}

	token, err := s.sessions.GetByHash(ctx, s.refresh.Hash(rawToken))
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").With("operation", "get session by hash").Wrap(err)
	}

	revoked, err := s.sessions.Revoke(ctx, token.ID, s.now().UTC(), TruncateIP(ip))
	if err != nil {
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "revoke session").
			With("session_id", token.ID.String()).
			Wrap(err)
	}
	if revoked {
		s.metrics.revoked("logout", 1)
	}
	return nil
}

// LogoutAll revokes every active session of userID.
func (s *Service) LogoutAll(ctx context.Context, userID ulid.ULID, ip string) (err error) {
	defer func() { s.metrics.observe("logout_all", err) }()

	count, err := s.sessions.RevokeAllForUser(ctx, userID, s.now().UTC(), TruncateIP(ip), IncludeDeletedUsers)
	if err != nil {
		return oops.Code("AUTH_LOGOUT_ALL_FAILED").
			With("operation", "revoke all sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	s.metrics.revoked("logout_all", count)
	s.logger.InfoContext(ctx, "all sessions revoked", "user_id", userID.String(), "revoked", count)
	return nil
}

// LogoutSession revokes one session owned by userID.
func (s *Service) LogoutSession(ctx context.Context, userID, sessionID ulid.ULID, ip string) (err error) {
	defer func() { s.metrics.observe("logout_session", err) }()

	token, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").With("session_id", sessionID.String()).Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_SESSION_FAILED").
			With("operation", "get session by id").
			With("session_id", sessionID.String()).
			Wrap(err)
	}

	if token.UserID != userID {
		s.logger.WarnContext(ctx, "session close rejected: not owner",
			"user_id", userID.String(),
			"session_id", sessionID.String())
		return invalidCredentials("AUTH_SESSION_NOT_OWNED")
	}

	now := s.now().UTC()
	if !token.IsActiveAt(now) {
		return nil
	}
	revoked, err := s.sessions.Revoke(ctx, token.ID, now, TruncateIP(ip))
	if err != nil {
		return oops.Code("AUTH_LOGOUT_SESSION_FAILED").
			With("operation", "revoke session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	if revoked {
		s.metrics.revoked("logout_session", 1)
	}
	return nil
}

// GetSessions lists the active sessions of userID, newest first. IsCurrent
// is left false; see MarkCurrent.
func (s *Service) GetSessions(ctx context.Context, userID ulid.ULID) ([]SessionView, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, oops.Code("AUTH_GET_SESSIONS_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	now := s.now().UTC()
	tokens, err := s.sessions.GetActiveByUser(ctx, userID, now, ActiveUsersOnly)
	if err != nil {
		return nil, oops.Code("AUTH_GET_SESSIONS_FAILED").
			With("operation", "list active sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	views := make([]SessionView, 0, len(tokens))
	for _, t := range tokens {
		views = append(views, NewSessionView(t, now))
	}
	return views, nil
}

// ChangePassword replaces the password of userID after verifying the
// current one. Existing sessions are left untouched.
func (s *Service) ChangePassword(ctx context.Context, userID ulid.ULID, current, next string) (err error) {
	defer func() { s.metrics.observe("change_password", err) }()

	if next == "" {
		return oops.Code("AUTH_PASSWORD_REQUIRED").Wrapf(ErrInvalidInput, "new password is required")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}

	result, err := s.hasher.Verify(user.PasswordHash, current)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "verify password").
			With("user_id", userID.String()).
			Wrap(err)
	}
	if !result.OK() {
		return invalidCredentials("AUTH_INVALID_CREDENTIALS")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "persist password hash").
			With("user_id", userID.String()).
			Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "user_id", userID.String())
	return nil
}

// GetProfile returns the public profile of userID.
func (s *Service) GetProfile(ctx context.Context, userID ulid.ULID) (*UserProfile, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, oops.Code("AUTH_GET_PROFILE_FAILED").
			With("operation", "get user by id").
			With("user_id", userID.String()).
			Wrap(err)
	}
	profile := user.Profile()
	return &profile, nil
}

// issue mints an access token and persists a new session for user.
func (s *Service) issue(ctx context.Context, user *User, client ClientInfo) (*AuthResult, *RefreshToken, error) {
	access, err := s.signer.Sign(user)
	if err != nil {
		return nil, nil, oops.Code("AUTH_ISSUE_FAILED").With("operation", "sign access token").Wrap(err)
	}

	raw, record := s.refresh.Create(user.ID, client)
	if err := s.sessions.Add(ctx, record); err != nil {
		return nil, nil, oops.Code("AUTH_ISSUE_FAILED").
			With("operation", "persist session").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	return &AuthResult{
		UserID:           user.ID,
		Email:            user.Email,
		AccessToken:      access,
		RefreshToken:     raw,
		RefreshExpiresAt: record.ExpiresAt,
	}, record, nil
}
