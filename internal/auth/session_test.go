// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozz/vouch/internal/auth"
)

func newSession(t *testing.T) *auth.PlayerSession {
	t.Helper()
	return auth.NewPlayerSession(ulid.Make(), "alice", "203.0.113.10:54321")
}

func TestPlayerSession_StartsAwaitingPassword(t *testing.T) {
	s := newSession(t)

	assert.False(t, s.Authenticated())
	assert.True(t, s.AuthenticatedAt().IsZero())
	assert.Equal(t, auth.SubStateAwaitingPassword, s.SubState())
}

func TestPlayerSession_MarkAuthenticated(t *testing.T) {
	s := newSession(t)
	s.RequireSecondFactor()
	s.RecordFailedAttempt()
	s.BeginEnrollment("SECRET", false)

	s.MarkAuthenticated()

	assert.True(t, s.Authenticated())
	assert.False(t, s.AuthenticatedAt().IsZero())
	assert.Equal(t, auth.SubStateIdle, s.SubState())
	assert.Zero(t, s.FailedAttempts())

	_, ok := s.EnrollmentSecret()
	assert.False(t, ok, "authentication discards in-flight enrollment")
}

func TestPlayerSession_SecondFactorSubState(t *testing.T) {
	s := newSession(t)

	s.RequireSecondFactor()
	assert.True(t, s.AwaitingSecondFactor())
	assert.Equal(t, auth.SubStateAwaitingSecondFactor, s.SubState())

	// Authenticated sessions never re-enter the waiting state.
	s.MarkAuthenticated()
	s.RequireSecondFactor()
	assert.False(t, s.AwaitingSecondFactor())
}

func TestPlayerSession_Enrollment(t *testing.T) {
	t.Run("pending session enters enrolling sub-state", func(t *testing.T) {
		s := newSession(t)
		s.BeginEnrollment("JBSWY3DP", true)

		assert.Equal(t, auth.SubStateEnrolling, s.SubState())
		assert.True(t, s.EnrollmentSecretless())
		secret, ok := s.EnrollmentSecret()
		require.True(t, ok)
		assert.Equal(t, "JBSWY3DP", secret)
	})

	t.Run("authenticated session keeps idle sub-state", func(t *testing.T) {
		s := newSession(t)
		s.MarkAuthenticated()
		s.BeginEnrollment("JBSWY3DP", false)

		assert.Equal(t, auth.SubStateIdle, s.SubState())
		_, ok := s.EnrollmentSecret()
		assert.True(t, ok)
	})

	t.Run("clear returns to awaiting password", func(t *testing.T) {
		s := newSession(t)
		s.BeginEnrollment("JBSWY3DP", true)
		s.ClearEnrollment()

		assert.Equal(t, auth.SubStateAwaitingPassword, s.SubState())
		_, ok := s.EnrollmentSecret()
		assert.False(t, ok)
		assert.False(t, s.EnrollmentSecretless())
	})
}

func TestPlayerSession_Cooldown(t *testing.T) {
	base := time.Unix(1700000000, 0)

	t.Run("no cooldown below the attempt cap", func(t *testing.T) {
		s := newSession(t)
		for i := 0; i < 4; i++ {
			s.RecordFailedAttemptAt(base.Add(time.Duration(i) * time.Second))
		}
		assert.Zero(t, s.CooldownRemainingAt(base.Add(4*time.Second)))
	})

	t.Run("fifth rapid failure triggers the cooldown", func(t *testing.T) {
		s := newSession(t)
		for i := 0; i < 5; i++ {
			s.RecordFailedAttemptAt(base.Add(time.Duration(i) * time.Second))
		}
		remaining := s.CooldownRemainingAt(base.Add(5 * time.Second))
		assert.Equal(t, 29*time.Second, remaining)
	})

	t.Run("cooldown expires after the window", func(t *testing.T) {
		s := newSession(t)
		for i := 0; i < 5; i++ {
			s.RecordFailedAttemptAt(base)
		}
		assert.NotZero(t, s.CooldownRemainingAt(base.Add(10*time.Second)))
		assert.Zero(t, s.CooldownRemainingAt(base.Add(31*time.Second)))
	})

	t.Run("slow failures reset the count", func(t *testing.T) {
		s := newSession(t)
		for i := 0; i < 4; i++ {
			s.RecordFailedAttemptAt(base)
		}
		// A failure after a long pause starts a fresh window.
		s.RecordFailedAttemptAt(base.Add(time.Minute))
		assert.Equal(t, 1, s.FailedAttempts())
		assert.Zero(t, s.CooldownRemainingAt(base.Add(time.Minute)))
	})
}

func TestSubState_String(t *testing.T) {
	assert.Equal(t, "idle", auth.SubStateIdle.String())
	assert.Equal(t, "awaiting_password", auth.SubStateAwaitingPassword.String())
	assert.Equal(t, "awaiting_second_factor", auth.SubStateAwaitingSecondFactor.String())
	assert.Equal(t, "enrolling", auth.SubStateEnrolling.String())
	assert.Equal(t, "unknown", auth.SubState(99).String())
}
