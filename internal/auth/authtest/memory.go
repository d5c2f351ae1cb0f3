// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

// Package authtest provides in-memory implementations of the auth
// persistence contracts for tests.
package authtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/modelstore/modelstore/internal/auth"
)

// Store is an in-memory database holding users and sessions. Transactions
// are serialized and roll back to a snapshot when fn fails or the context is
// cancelled before commit.
type Store struct {
	txMu sync.Mutex

	mu       sync.Mutex
	users    map[ulid.ULID]auth.User
	sessions map[ulid.ULID]auth.RefreshToken
	failures map[string]error
	calls    map[string]int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[ulid.ULID]auth.User),
		sessions: make(map[ulid.ULID]auth.RefreshToken),
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

// Operation names accepted by FailOn and Calls.
const (
	OpUserGetByID            = "users.GetByID"
	OpUserGetByEmail         = "users.GetByNormalizedEmail"
	OpUserCreate             = "users.Create"
	OpUserUpdatePasswordHash = "users.UpdatePasswordHash"
	OpSessionAdd             = "sessions.Add"
	OpSessionGetByHash       = "sessions.GetByHash"
	OpSessionGetByID         = "sessions.GetByID"
	OpSessionGetActive       = "sessions.GetActiveByUser"
	OpSessionRevoke          = "sessions.Revoke"
	OpSessionSetReplacedBy   = "sessions.SetReplacedBy"
	OpSessionRevokeAll       = "sessions.RevokeAllForUser"
	OpTxCommit               = "tx.Commit"
)

// FailOn makes every subsequent call of op return err. A nil err clears it.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Calls returns how many times op has been invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// enter records a call and returns the injected failure, if any. Callers
// hold s.mu.
func (s *Store) enter(op string) error {
	s.calls[op]++
	return s.failures[op]
}

// Users returns the user repository view of the store.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Sessions returns the session store view of the store.
func (s *Store) Sessions() *SessionStore { return &SessionStore{s: s} }

// Transactor returns the transactor view of the store.
func (s *Store) Transactor() *Transactor { return &Transactor{s: s} }

// PutUser inserts or replaces a user directly, bypassing uniqueness checks.
func (s *Store) PutUser(u *auth.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = *u
}

// User returns a copy of the stored user, including soft-deleted ones.
func (s *Store) User(id ulid.ULID) (auth.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	return u, ok
}

// SoftDelete flags a user as deleted.
func (s *Store) SoftDelete(id, by ulid.ULID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return
	}
	u.IsDeleted = true
	u.DeletedAt = &at
	u.DeletedBy = &by
	s.users[id] = u
}

// PutSession inserts or replaces a session directly.
func (s *Store) PutSession(t *auth.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[t.ID] = *t
}

// Session returns a copy of the stored session.
func (s *Store) Session(id ulid.ULID) (auth.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sessions[id]
	return t, ok
}

// SessionByRaw returns the stored session for a raw refresh token.
func (s *Store) SessionByRaw(raw string) (auth.RefreshToken, bool) {
	hash := auth.HashRefreshToken(raw)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.sessions {
		if t.TokenHash == hash {
			return t, true
		}
	}
	return auth.RefreshToken{}, false
}

// SessionsOf returns copies of every session of userID, newest first.
func (s *Store) SessionsOf(userID ulid.ULID) []auth.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []auth.RefreshToken
	for _, t := range s.sessions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out
}

// UserCount returns the number of stored users.
func (s *Store) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func sortNewestFirst(ts []auth.RefreshToken) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].CreatedAt.Equal(ts[j].CreatedAt) {
			return ts[i].ID.Compare(ts[j].ID) > 0
		}
		return ts[i].CreatedAt.After(ts[j].CreatedAt)
	})
}

// Transactor implements auth.Transactor over a Store.
type Transactor struct {
	s *Store
}

// InTransaction runs fn and restores the pre-transaction state if fn fails,
// the commit is configured to fail, or ctx is done before commit.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("TX_BEGIN_FAILED").Wrap(err)
	}

	t.s.txMu.Lock()
	defer t.s.txMu.Unlock()

	users, sessions := t.s.snapshot()

	if err := fn(ctx); err != nil {
		t.s.restore(users, sessions)
		return err
	}

	t.s.mu.Lock()
	commitErr := t.s.enter(OpTxCommit)
	t.s.mu.Unlock()
	if commitErr == nil {
		commitErr = ctx.Err()
	}
	if commitErr != nil {
		t.s.restore(users, sessions)
		return oops.Code("TX_COMMIT_FAILED").Wrap(commitErr)
	}
	return nil
}

func (s *Store) snapshot() (map[ulid.ULID]auth.User, map[ulid.ULID]auth.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make(map[ulid.ULID]auth.User, len(s.users))
	for k, v := range s.users {
		users[k] = v
	}
	sessions := make(map[ulid.ULID]auth.RefreshToken, len(s.sessions))
	for k, v := range s.sessions {
		sessions[k] = v
	}
	return users, sessions
}

func (s *Store) restore(users map[ulid.ULID]auth.User, sessions map[ulid.ULID]auth.RefreshToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = users
	s.sessions = sessions
}

var _ auth.Transactor = (*Transactor)(nil)
