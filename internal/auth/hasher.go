// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ModelStore Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// VerifyResult is the three-way outcome of a password check.
type VerifyResult int

// Verification outcomes.
const (
	VerifyFailed VerifyResult = iota
	VerifySuccess
	VerifySuccessRehashNeeded
)

// OK reports whether the password matched, with or without a pending rehash.
func (r VerifyResult) OK() bool {
	return r == VerifySuccess || r == VerifySuccessRehashNeeded
}

func (r VerifyResult) String() string {
	switch r {
	case VerifySuccess:
		return "success"
	case VerifySuccessRehashNeeded:
		return "success_rehash_needed"
	default:
		return "failed"
	}
}

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a self-describing hash of the password.
	Hash(password string) (string, error)

	// Verify checks password against hash. A malformed hash is an error,
	// not VerifyFailed.
	Verify(hash, password string) (VerifyResult, error)
}

// Argon2Params are the argon2id cost parameters.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

// Argon2idHasher implements PasswordHasher using argon2id. Hashes produced
// with other parameters, and legacy bcrypt hashes, verify with
// VerifySuccessRehashNeeded.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates a hasher with explicit parameters.
func NewArgon2idHasherWithParams(p Argon2Params) (*Argon2idHasher, error) {
	if p.Time == 0 || p.Memory == 0 || p.Threads == 0 || p.SaltLen == 0 || p.KeyLen == 0 {
		return nil, oops.Code("AUTH_INVALID_HASH_PARAMS").
			With("time", p.Time).
			With("memory", p.Memory).
			With("threads", p.Threads).
			Errorf("argon2id parameters must be positive")
	}
	return &Argon2idHasher{params: p}, nil
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against an argon2id or legacy bcrypt hash.
func (h *Argon2idHasher) Verify(encodedHash, password string) (VerifyResult, error) {
	if isBcryptHash(encodedHash) {
		return verifyBcrypt(encodedHash, password)
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != "argon2id" {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	if threads == 0 || threads > 255 {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<30 {
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, time, memory, uint8(threads), uint32(keyLen))
	if subtle.ConstantTimeCompare(computed, expected) != 1 {
		return VerifyFailed, nil
	}

	if version != argon2.Version ||
		memory != h.params.Memory ||
		time != h.params.Time ||
		uint8(threads) != h.params.Threads ||
		uint32(len(salt)) != h.params.SaltLen ||
		uint32(keyLen) != h.params.KeyLen {
		return VerifySuccessRehashNeeded, nil
	}
	return VerifySuccess, nil
}

func isBcryptHash(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") ||
		strings.HasPrefix(hash, "$2b$") ||
		strings.HasPrefix(hash, "$2y$")
}

// verifyBcrypt accepts a legacy bcrypt hash. A match always needs a rehash.
func verifyBcrypt(hash, password string) (VerifyResult, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return VerifySuccessRehashNeeded, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return VerifyFailed, nil
	default:
		return VerifyFailed, oops.Code("AUTH_INVALID_HASH").With("algorithm", "bcrypt").Wrap(err)
	}
}

var _ PasswordHasher = (*Argon2idHasher)(nil)
