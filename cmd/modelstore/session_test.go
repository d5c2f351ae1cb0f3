// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package main

import (
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/modelstore/modelstore/internal/auth"
)

func listSessions(t *testing.T, h *harness, args ...string) []auth.SessionView {
	t.Helper()
	out := h.mustRun(append([]string{"session", "list", "-o", "yaml"}, args...)...)
	var views []auth.SessionView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	return views
}

func login(t *testing.T, h *harness, email, password string, extra ...string) authOutput {
	t.Helper()
	args := append([]string{"session", "login", "--email", email, "--password", password, "-o", "yaml"}, extra...)
	out := h.mustRun(args...)
	var res authOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &res))
	return res
}

func TestSessionLogin(t *testing.T) {
	h := newHarness(t)
	reg := h.register("login@example.com", "correct-horse")

	t.Run("records client metadata", func(t *testing.T) {
		res := login(t, h, "login@example.com", "correct-horse", "--ip", "203.0.113.7", "--user-agent", "curl/8")
		assert.Equal(t, reg.UserID, res.UserID)

		views := listSessions(t, h, "--user-id", reg.UserID)
		require.Len(t, views, 2)
		var found bool
		for _, v := range views {
			if v.CreatedByIP == "203.0.113.7" && v.CreatedByUA == "curl/8" {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("unknown email and wrong password fail alike", func(t *testing.T) {
		_, errUnknown := h.run("", "session", "login", "--email", "ghost@example.com", "--password", "x")
		_, errWrong := h.run("", "session", "login", "--email", "login@example.com", "--password", "x")
		require.Error(t, errUnknown)
		require.Error(t, errWrong)
		assert.Equal(t, 3, exitCode(errUnknown))
		assert.Equal(t, 3, exitCode(errWrong))
		assert.Equal(t, auth.PublicMessage(errUnknown), auth.PublicMessage(errWrong))
	})
}

func TestSessionRefreshAndReplay(t *testing.T) {
	h := newHarness(t)
	reg := h.register("rotate@example.com", "pw-rotate")

	out := h.mustRun("session", "refresh", "--refresh-token", reg.RefreshToken, "-o", "yaml")
	var rotated authOutput
	require.NoError(t, yaml.Unmarshal([]byte(out), &rotated))
	assert.NotEqual(t, reg.RefreshToken, rotated.RefreshToken)
	require.Len(t, listSessions(t, h, "--user-id", reg.UserID), 1)

	_, err := h.run("", "session", "refresh", "--refresh-token", reg.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
	assert.Empty(t, listSessions(t, h, "--user-id", reg.UserID), "replay revokes everything")

	_, err = h.run(rotated.RefreshToken+"\n", "session", "refresh")
	require.Error(t, err, "successor was revoked by the replay")
}

func TestSessionLogout(t *testing.T) {
	h := newHarness(t)
	reg := h.register("logout@example.com", "pw-logout")

	out := h.mustRun("session", "logout", "--refresh-token", reg.RefreshToken)
	assert.Contains(t, out, "Logged out")
	assert.Empty(t, listSessions(t, h, "--user-id", reg.UserID))

	// Idempotent and silent about unknown tokens.
	h.mustRun("session", "logout", "--refresh-token", reg.RefreshToken)
	h.mustRun("session", "logout", "--refresh-token", "never-issued")
}

func TestSessionList(t *testing.T) {
	h := newHarness(t)
	reg := h.register("list@example.com", "pw-list")
	second := login(t, h, "list@example.com", "pw-list")

	t.Run("by access token marks current", func(t *testing.T) {
		views := listSessions(t, h, "--access-token", second.AccessToken, "--refresh-token", second.RefreshToken)
		require.Len(t, views, 2)
		current := 0
		for _, v := range views {
			if v.IsCurrent {
				current++
			}
			assert.True(t, v.IsActive)
		}
		assert.Equal(t, 1, current)
	})

	t.Run("table", func(t *testing.T) {
		out := h.mustRun("session", "list", "--user-id", reg.UserID)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "USER AGENT")
	})

	t.Run("empty list is an empty array", func(t *testing.T) {
		h2 := newHarness(t)
		other := h2.register("empty@example.com", "pw-empty")
		h2.mustRun("session", "revoke-all", "--user-id", other.UserID)
		out := h2.mustRun("session", "list", "--user-id", other.UserID, "-o", "json")
		assert.Equal(t, "[]", strings.TrimSpace(out))
	})

	t.Run("bad access token", func(t *testing.T) {
		_, err := h.run("", "session", "list", "--access-token", "garbage")
		require.Error(t, err)
		assert.Equal(t, 3, exitCode(err))
	})

	t.Run("needs a subject", func(t *testing.T) {
		_, err := h.run("", "session", "list")
		require.Error(t, err)
	})

	t.Run("subjects are exclusive", func(t *testing.T) {
		_, err := h.run("", "session", "list", "--user-id", reg.UserID, "--access-token", second.AccessToken)
		require.Error(t, err)
	})
}

func TestSessionRevoke(t *testing.T) {
	h := newHarness(t)
	reg := h.register("revoke@example.com", "pw-revoke")
	login(t, h, "revoke@example.com", "pw-revoke")
	intruder := h.register("intruder@example.com", "pw-intruder")

	views := listSessions(t, h, "--user-id", reg.UserID)
	require.Len(t, views, 2)
	target := views[0].ID.String()

	t.Run("other users cannot revoke", func(t *testing.T) {
		_, err := h.run("", "session", "revoke", "--user-id", intruder.UserID, "--session-id", target)
		require.Error(t, err)
		assert.Equal(t, 3, exitCode(err))
		assert.Len(t, listSessions(t, h, "--user-id", reg.UserID), 2)
	})

	t.Run("owner revokes one", func(t *testing.T) {
		out := h.mustRun("session", "revoke", "--access-token", reg.AccessToken, "--session-id", target)
		assert.Contains(t, out, "Session revoked")
		left := listSessions(t, h, "--user-id", reg.UserID)
		require.Len(t, left, 1)
		assert.NotEqual(t, target, left[0].ID.String())
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := h.run("", "session", "revoke", "--user-id", reg.UserID, "--session-id", ulid.Make().String())
		require.Error(t, err)
		assert.Equal(t, 4, exitCode(err))
	})

	t.Run("revoke-all", func(t *testing.T) {
		out := h.mustRun("session", "revoke-all", "--user-id", reg.UserID)
		assert.Contains(t, out, "All sessions revoked")
		assert.Empty(t, listSessions(t, h, "--user-id", reg.UserID))
		assert.Len(t, listSessions(t, h, "--user-id", intruder.UserID), 1)
	})
}
