// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/modelstore/modelstore/internal/auth"
)

const sessionColumns = `id, user_id, token_hash, created_at, expires_at, created_by_ip, created_by_ua, revoked_at, revoked_by_ip, replaced_by_token_id`

// SessionRepository implements auth.SessionStore over the refresh_tokens table.
type SessionRepository struct {
	db DB
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(db DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Add stores a new session.
func (r *SessionRepository) Add(ctx context.Context, token *auth.RefreshToken) error {
	_, err := conn(ctx, r.db).Exec(ctx, `
		INSERT INTO refresh_tokens (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		token.ID.String(),
		token.UserID.String(),
		token.TokenHash,
		token.CreatedAt,
		token.ExpiresAt,
		token.CreatedByIP,
		token.CreatedByUA,
		token.RevokedAt,
		token.RevokedByIP,
		ulidToStringPtr(token.ReplacedByTokenID),
	)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert refresh_token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE id = $1
	`, id.String())

	token, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrSessionNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_ID_FAILED").
			With("operation", "get session by id").
			With("id", id.String()).
			Wrap(err)
	}
	return token, nil
}

// GetByHash retrieves a session by its token hash.
func (r *SessionRepository) GetByHash(ctx context.Context, hash string) (*auth.RefreshToken, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM refresh_tokens
		WHERE token_hash = $1
	`, hash)

	token, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrSessionNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_HASH_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}
	return token, nil
}

// GetActiveByUser lists sessions of userID that are unrevoked and unexpired
// at now, newest first.
func (r *SessionRepository) GetActiveByUser(ctx context.Context, userID ulid.ULID, now time.Time, vis auth.UserVisibility) ([]*auth.RefreshToken, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC, id DESC
	`
	if vis == auth.ActiveUsersOnly {
		query = `
		SELECT ` + sessionColumns + `
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		  AND EXISTS (SELECT 1 FROM users u WHERE u.id = refresh_tokens.user_id AND u.is_deleted = false)
		ORDER BY created_at DESC, id DESC
	`
	}

	rows, err := conn(ctx, r.db).Query(ctx, query, userID.String(), now)
	if err != nil {
		return nil, oops.Code("SESSION_LIST_FAILED").
			With("operation", "list active sessions").
			With("user_id", userID.String()).
			With("visibility", vis.String()).
			Wrap(err)
	}
	defer rows.Close()

	var tokens []*auth.RefreshToken
	for rows.Next() {
		token, err := scanSession(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session row").
				Wrap(err)
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session rows").
			Wrap(err)
	}

	return tokens, nil
}

// Revoke marks an unrevoked session revoked. It reports false when the
// session was already revoked or does not exist.
func (r *SessionRepository) Revoke(ctx context.Context, id ulid.ULID, at time.Time, ip string) (bool, error) {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_by_ip = $3
		WHERE id = $1 AND revoked_at IS NULL
	`, id.String(), at, ip)
	if err != nil {
		return false, oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "revoke refresh_token").
			With("id", id.String()).
			Wrap(err)
	}
	return result.RowsAffected() > 0, nil
}

// SetReplacedBy links a rotated session to its successor.
func (r *SessionRepository) SetReplacedBy(ctx context.Context, id, replacementID ulid.ULID) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE refresh_tokens SET replaced_by_token_id = $2
		WHERE id = $1
	`, id.String(), replacementID.String())
	if err != nil {
		return oops.Code("SESSION_SET_REPLACED_BY_FAILED").
			With("operation", "update replaced_by_token_id").
			With("id", id.String()).
			With("replacement_id", replacementID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrSessionNotFound)
	}
	return nil
}

// RevokeAllForUser revokes every active session of userID and returns how
// many were revoked. No sessions is not an error.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID ulid.ULID, at time.Time, ip string, vis auth.UserVisibility) (int64, error) {
	query := `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_by_ip = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
	`
	if vis == auth.ActiveUsersOnly {
		query = `
		UPDATE refresh_tokens SET revoked_at = $2, revoked_by_ip = $3
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		  AND EXISTS (SELECT 1 FROM users u WHERE u.id = refresh_tokens.user_id AND u.is_deleted = false)
	`
	}

	result, err := conn(ctx, r.db).Exec(ctx, query, userID.String(), at, ip)
	if err != nil {
		return 0, oops.Code("SESSION_REVOKE_ALL_FAILED").
			With("operation", "revoke all refresh_tokens").
			With("user_id", userID.String()).
			With("visibility", vis.String()).
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSession scans a single row into a RefreshToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSession(row pgx.Row) (*auth.RefreshToken, error) {
	var (
		idStr         string
		userIDStr     string
		token         auth.RefreshToken
		replacedByStr *string
	)

	err := row.Scan(&idStr, &userIDStr, &token.TokenHash, &token.CreatedAt, &token.ExpiresAt,
		&token.CreatedByIP, &token.CreatedByUA, &token.RevokedAt, &token.RevokedByIP, &replacedByStr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan refresh_token").
			Wrap(err)
	}

	return buildSession(&token, idStr, userIDStr, replacedByStr)
}

// buildSession fills the parsed identifiers of a scanned session.
func buildSession(token *auth.RefreshToken, idStr, userIDStr string, replacedByStr *string) (*auth.RefreshToken, error) {
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	userID, err := ulid.Parse(userIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_USER_ID").
			With("operation", "parse user id").
			With("user_id", userIDStr).
			Wrap(err)
	}

	replacedBy, err := parseOptionalULID(replacedByStr, "replaced_by_token_id")
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_REPLACEMENT_ID").Wrap(err)
	}

	token.ID = id
	token.UserID = userID
	token.ReplacedByTokenID = replacedBy
	return token, nil
}

// Compile-time interface check.
var _ auth.SessionStore = (*SessionRepository)(nil)
