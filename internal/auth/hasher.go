// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"

	"github.com/nozz/vouch/internal/dispatch"
)

// Argon2Params tunes the Argon2id key derivation.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// DefaultArgon2Params returns the production parameters: 15 MiB of
// memory, two passes, a single lane.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   15 * 1024,
		Iterations:  2,
		Parallelism: 1,
	}
}

const (
	hashSaltLen   = 16
	hashDigestLen = 32
)

// PasswordHasher hashes passwords for storage and verifies candidates
// against stored encodings.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) bool
}

// Argon2idHasher implements PasswordHasher using Argon2id. Encoded
// hashes are two standard-base64 segments, salt then digest, joined by
// a dollar sign.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher. Zero-valued fields in params are
// replaced with the defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Iterations == 0 {
		params.Iterations = def.Iterations
	}
	if params.Parallelism == 0 {
		params.Parallelism = def.Parallelism
	}
	return &Argon2idHasher{params: params}
}

// Hash derives a new salted digest for password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("empty_password").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("salt_generation_failed").Wrapf(err, "generating salt")
	}

	digest := argon2.IDKey([]byte(password), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, hashDigestLen)

	return base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(digest), nil
}

// Verify reports whether password matches encoded. Malformed encodings
// verify as false rather than erroring, so a corrupted stored hash can
// never grant access.
func (h *Argon2idHasher) Verify(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	stored, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, uint32(len(stored)))

	return subtle.ConstantTimeCompare(computed, stored) == 1
}

var _ PasswordHasher = (*Argon2idHasher)(nil)

// AsyncHasher runs hashing and verification on a worker executor and
// delivers results back on the loop executor, keeping the memory-hard
// key derivation off the primary thread.
type AsyncHasher struct {
	hasher  PasswordHasher
	workers dispatch.Executor
	loop    dispatch.Executor
}

// NewAsyncHasher wraps hasher with the given executors.
func NewAsyncHasher(hasher PasswordHasher, workers, loop dispatch.Executor) *AsyncHasher {
	return &AsyncHasher{hasher: hasher, workers: workers, loop: loop}
}

// Hash derives a digest on a worker and invokes done on the loop.
func (a *AsyncHasher) Hash(password string, done func(encoded string, err error)) {
	a.workers.Dispatch(func() {
		encoded, err := a.hasher.Hash(password)
		a.loop.Dispatch(func() { done(encoded, err) })
	})
}

// Verify checks password against encoded on a worker and invokes done
// on the loop.
func (a *AsyncHasher) Verify(password, encoded string, done func(ok bool)) {
	a.workers.Dispatch(func() {
		ok := a.hasher.Verify(password, encoded)
		a.loop.Dispatch(func() { done(ok) })
	})
}
