// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Callers classify failures with errors.Is or KindOf; the
// oops codes wrapped around them carry operation context for logs only.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUserNotFound is returned when a user id does not resolve.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)

	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)

	// ErrUnauthorized covers bad credentials and invalid, absent or replayed
	// refresh tokens. Its message is deliberately uninformative.
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrConflict is returned when registering an email that is already taken.
	ErrConflict = errors.New("email already registered")

	// ErrInvalidInput marks a precondition failure on caller-supplied input.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind classifies an error for the boundary layer.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindConflict
	KindUnauthorized
	KindNotFound
	KindValidation
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// KindOf classifies err. Anything not matching a known sentinel is internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	default:
		return KindInternal
	}
}

// PublicMessage returns the client-safe message for err. Internal failures
// never expose their text.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindUnauthorized:
		return ErrUnauthorized.Error()
	case KindConflict:
		return ErrConflict.Error()
	case KindNotFound:
		switch {
		case errors.Is(err, ErrUserNotFound):
			return ErrUserNotFound.Error()
		case errors.Is(err, ErrSessionNotFound):
			return ErrSessionNotFound.Error()
		}
		return ErrNotFound.Error()
	case KindValidation:
		return ErrInvalidInput.Error()
	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "request cancelled"
		}
		return "internal error"
	}
}

// HTTPStatus maps a kind to the status code a boundary should answer with.
func HTTPStatus(k Kind) int {
	switch k {
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
