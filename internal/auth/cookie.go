// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"net/http"
	"time"
)

// RefreshCookieName is the cookie that carries the raw refresh token.
const RefreshCookieName = "refresh_token"

// RefreshCookie builds the transport cookie for a freshly issued refresh
// token. It is HTTP-only and same-site Lax, scoped to the whole site.
func RefreshCookie(raw string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    raw,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredRefreshCookie clears the refresh cookie on the client.
func ExpiredRefreshCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
