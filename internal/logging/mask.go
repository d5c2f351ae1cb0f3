// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package logging

import "strings"

// MaskEmail hides the local part of an email except its first and last
// characters. Local parts of two characters or fewer are fully masked. A
// value that is not a single-@ address becomes "***".
func MaskEmail(email string) string {
	if strings.TrimSpace(email) == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || strings.Contains(domain, "@") {
		return "***"
	}

	r := []rune(local)
	if len(r) <= 2 {
		return strings.Repeat("*", len(r)) + "@" + domain
	}
	return string(r[0]) + strings.Repeat("*", len(r)-2) + string(r[len(r)-1]) + "@" + domain
}

// MaskToken keeps the first six and last four characters of a secret.
// Values of ten characters or fewer are replaced entirely.
func MaskToken(token string) string {
	switch {
	case token == "":
		return ""
	case len(token) <= 10:
		return "****"
	default:
		return token[:6] + "..." + token[len(token)-4:]
	}
}
