// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// SubState names what a pre-authentication session is waiting for.
type SubState int

const (
	// SubStateIdle applies to authenticated sessions.
	SubStateIdle SubState = iota
	// SubStateAwaitingPassword means the player must log in or
	// register with a password.
	SubStateAwaitingPassword
	// SubStateAwaitingSecondFactor means the password step passed and
	// a one-time code is outstanding.
	SubStateAwaitingSecondFactor
	// SubStateEnrolling means a one-time-code enrollment is in flight
	// and its secret is held on the session until confirmed.
	SubStateEnrolling
)

func (s SubState) String() string {
	switch s {
	case SubStateIdle:
		return "idle"
	case SubStateAwaitingPassword:
		return "awaiting_password"
	case SubStateAwaitingSecondFactor:
		return "awaiting_second_factor"
	case SubStateEnrolling:
		return "enrolling"
	default:
		return "unknown"
	}
}

// Per-session attempt cooldown, independent of the per-origin limiter.
const (
	cooldownWindow   = 30 * time.Second
	cooldownAttempts = 5
)

// Position is a frozen point in the world, captured when a player
// connects and restored if the pre-auth hold moved them.
type Position struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// enrollment is the transient state of an in-flight one-time-code
// enrollment. secretless marks code-only registration, where account
// creation is deferred until the first code verifies.
type enrollment struct {
	secret     string
	secretless bool
}

// PlayerSession is the in-memory state of one connected player, from
// connect through authentication to disconnect. It is mutated only on
// the primary loop and needs no locking.
type PlayerSession struct {
	PlayerID ulid.ULID
	Name     string
	// Origin is the remote address the player connected from.
	Origin    string
	CreatedAt time.Time

	// FrozenPos and OriginalAllowFlight capture connect-time state to
	// restore after authentication.
	FrozenPos           *Position
	OriginalAllowFlight bool

	authenticated       bool
	authenticatedAt     time.Time
	subState            SubState
	secondFactorEnabled bool
	enroll              *enrollment

	failedAttempts int
	lastAttemptAt  time.Time
}

// NewPlayerSession creates a pre-authentication session awaiting its
// first credential.
func NewPlayerSession(playerID ulid.ULID, name, origin string) *PlayerSession {
	return &PlayerSession{
		PlayerID:  playerID,
		Name:      name,
		Origin:    origin,
		CreatedAt: time.Now(),
		subState:  SubStateAwaitingPassword,
	}
}

// Authenticated reports whether the session holds full access.
func (s *PlayerSession) Authenticated() bool { return s.authenticated }

// AuthenticatedAt returns when the session authenticated, zero if it
// has not.
func (s *PlayerSession) AuthenticatedAt() time.Time { return s.authenticatedAt }

// SubState returns what the session is currently waiting for.
func (s *PlayerSession) SubState() SubState { return s.subState }

// MarkAuthenticated promotes the session to authenticated, clearing
// any pending sub-state and the attempt cooldown. An authenticated
// session is never simultaneously awaiting a credential.
func (s *PlayerSession) MarkAuthenticated() {
	s.authenticated = true
	s.authenticatedAt = time.Now()
	s.subState = SubStateIdle
	s.enroll = nil
	s.failedAttempts = 0
}

// RequireSecondFactor moves the session into the code-outstanding
// sub-state after a successful password check.
func (s *PlayerSession) RequireSecondFactor() {
	if s.authenticated {
		return
	}
	s.subState = SubStateAwaitingSecondFactor
}

// AwaitingSecondFactor reports whether a one-time code is outstanding.
func (s *PlayerSession) AwaitingSecondFactor() bool {
	return s.subState == SubStateAwaitingSecondFactor
}

// BeginEnrollment stores an unconfirmed shared secret on the session.
// secretless marks code-only registration, where no account row exists
// until the first code verifies.
func (s *PlayerSession) BeginEnrollment(secret string, secretless bool) {
	s.enroll = &enrollment{secret: secret, secretless: secretless}
	if !s.authenticated {
		s.subState = SubStateEnrolling
	}
}

// EnrollmentSecret returns the in-flight enrollment secret, if any.
func (s *PlayerSession) EnrollmentSecret() (string, bool) {
	if s.enroll == nil {
		return "", false
	}
	return s.enroll.secret, true
}

// EnrollmentSecretless reports whether the in-flight enrollment is a
// code-only registration.
func (s *PlayerSession) EnrollmentSecretless() bool {
	return s.enroll != nil && s.enroll.secretless
}

// ClearEnrollment discards any in-flight enrollment secret.
func (s *PlayerSession) ClearEnrollment() {
	s.enroll = nil
	if s.subState == SubStateEnrolling {
		s.subState = SubStateAwaitingPassword
	}
}

// SecondFactorEnabled reports whether the account behind the session
// has a confirmed one-time-code secret.
func (s *PlayerSession) SecondFactorEnabled() bool { return s.secondFactorEnabled }

// SetSecondFactorEnabled records the account's one-time-code status on
// the session.
func (s *PlayerSession) SetSecondFactorEnabled(enabled bool) { s.secondFactorEnabled = enabled }

// RecordFailedAttempt counts a failed credential attempt against the
// session's short cooldown window.
func (s *PlayerSession) RecordFailedAttempt() {
	s.RecordFailedAttemptAt(time.Now())
}

// RecordFailedAttemptAt is RecordFailedAttempt against an explicit
// clock.
func (s *PlayerSession) RecordFailedAttemptAt(now time.Time) {
	if now.Sub(s.lastAttemptAt) > cooldownWindow {
		s.failedAttempts = 0
	}
	s.failedAttempts++
	s.lastAttemptAt = now
}

// FailedAttempts returns the count inside the current cooldown window.
func (s *PlayerSession) FailedAttempts() int { return s.failedAttempts }

// CooldownRemaining returns how long the session must wait before its
// next attempt, or zero.
func (s *PlayerSession) CooldownRemaining() time.Duration {
	return s.CooldownRemainingAt(time.Now())
}

// CooldownRemainingAt is CooldownRemaining against an explicit clock.
func (s *PlayerSession) CooldownRemainingAt(now time.Time) time.Duration {
	if s.failedAttempts < cooldownAttempts {
		return 0
	}
	elapsed := now.Sub(s.lastAttemptAt)
	if elapsed >= cooldownWindow {
		return 0
	}
	return cooldownWindow - elapsed
}
