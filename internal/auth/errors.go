// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import "errors"

var (
	// ErrAccountNotFound indicates the account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAlreadyRegistered indicates an account already exists for the
	// player identity.
	ErrAlreadyRegistered = errors.New("account already registered")

	// ErrSessionNotFound indicates no persisted session matched.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyPassword indicates a password was empty.
	ErrEmptyPassword = errors.New("password cannot be empty")

	// ErrInvalidSecret indicates a one-time-code secret could not be
	// decoded.
	ErrInvalidSecret = errors.New("invalid one-time-code secret")
)
