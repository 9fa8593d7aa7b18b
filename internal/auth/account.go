// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
)

// Account is a registered player credential record.
type Account struct {
	PlayerID ulid.ULID
	Name     string
	// PasswordHash is the encoded Argon2id hash, empty for code-only
	// registrations.
	PasswordHash string
	// TOTPSecret is the confirmed shared secret, empty when one-time
	// codes are not enabled.
	TOTPSecret  string
	CreatedAt   time.Time
	LastLoginAt time.Time
	// LastIP is the origin of the most recent successful login.
	LastIP string
}

// SecondFactorEnabled reports whether the account has a confirmed
// one-time-code secret.
func (a *Account) SecondFactorEnabled() bool { return a.TOTPSecret != "" }

// AccountRepository persists player credential records.
type AccountRepository interface {
	// Create inserts a new account. Returns ErrAlreadyRegistered when
	// the player already has one.
	Create(ctx context.Context, account *Account) error
	// Get returns the account for playerID or ErrAccountNotFound.
	Get(ctx context.Context, playerID ulid.ULID) (*Account, error)
	// IsRegistered reports whether playerID has an account.
	IsRegistered(ctx context.Context, playerID ulid.ULID) (bool, error)
	// SetTOTPSecret stores or clears (empty string) the confirmed
	// shared secret.
	SetTOTPSecret(ctx context.Context, playerID ulid.ULID, secret string) error
	// UpdateLastLogin stamps the account's most recent successful
	// authentication.
	UpdateLastLogin(ctx context.Context, playerID ulid.ULID, at time.Time, ip string) error
	// Delete removes the account, reporting whether one existed.
	Delete(ctx context.Context, playerID ulid.ULID) (bool, error)
}

// PersistedSession is a surviving login, stored hashed so the backing
// store never learns usable tokens.
type PersistedSession struct {
	PlayerID  ulid.ULID
	TokenHash string
	Origin    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the session is still within its lifetime.
func (p *PersistedSession) Valid(now time.Time) bool {
	return p.ExpiresAt.After(now)
}

// SessionRepository persists surviving logins between connections.
type SessionRepository interface {
	// Create stores a session, first dropping any prior session for
	// the same player and origin so a pair holds at most one.
	Create(ctx context.Context, session *PersistedSession) error
	// HasValid reports whether playerID has an unexpired session from
	// origin.
	HasValid(ctx context.Context, playerID ulid.ULID, origin string, now time.Time) (bool, error)
	// HasAnyValid reports whether playerID has an unexpired session
	// from any origin.
	HasAnyValid(ctx context.Context, playerID ulid.ULID, now time.Time) (bool, error)
	// DeleteAllForPlayer removes every session for playerID, returning
	// how many were dropped.
	DeleteAllForPlayer(ctx context.Context, playerID ulid.ULID) (int64, error)
	// DeleteExpired removes sessions past their expiry, returning how
	// many were dropped.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
