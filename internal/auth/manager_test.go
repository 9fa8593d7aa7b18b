// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nozz/vouch/internal/dispatch"
)

// recordingDisplay captures player-facing events for assertions. It is
// safe for use from the loop goroutine while the test inspects it.
type recordingDisplay struct {
	mu                sync.Mutex
	ticks             []Tick
	loginSuccesses    int
	registerSuccesses int
	wrongCredentials  int
	enrollmentsShown  int
	preAuthCleared    []ulid.ULID
	artifactsRemoved  []ulid.ULID
}

func (d *recordingDisplay) ShowCountdown(_ ulid.ULID, tick Tick) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ticks = append(d.ticks, tick)
}

func (d *recordingDisplay) NotifyLoginSuccess(ulid.ULID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loginSuccesses++
}

func (d *recordingDisplay) NotifyRegisterSuccess(ulid.ULID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.registerSuccesses++
}

func (d *recordingDisplay) NotifyWrongCredential(ulid.ULID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wrongCredentials++
}

func (d *recordingDisplay) ShowEnrollment(ulid.ULID, string, string, []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enrollmentsShown++
}

func (d *recordingDisplay) RemoveEnrollmentArtifact(id ulid.ULID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.artifactsRemoved = append(d.artifactsRemoved, id)
}

func (d *recordingDisplay) ClearPreAuth(id ulid.ULID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preAuthCleared = append(d.preAuthCleared, id)
}

func (d *recordingDisplay) tickKinds() []TickKind {
	d.mu.Lock()
	defer d.mu.Unlock()
	kinds := make([]TickKind, len(d.ticks))
	for i, tick := range d.ticks {
		kinds[i] = tick.Kind
	}
	return kinds
}

type recordingDisconnect struct {
	mu    sync.Mutex
	calls []DisconnectReason
}

func (r *recordingDisconnect) fn(_ ulid.ULID, reason DisconnectReason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reason)
}

func (r *recordingDisconnect) reasons() []DisconnectReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]DisconnectReason(nil), r.calls...)
}

type managerFixture struct {
	loop       *dispatch.Loop
	manager    *Manager
	display    *recordingDisplay
	disconnect *recordingDisconnect
}

func newManagerFixture(t *testing.T, timeout time.Duration) *managerFixture {
	t.Helper()

	loop := dispatch.NewLoop(256)
	countdown := NewCountdown(loop)
	countdown.interval = time.Millisecond

	display := &recordingDisplay{}
	disconnect := &recordingDisconnect{}
	m := NewManager(ManagerConfig{LoginTimeout: timeout}, countdown, display, disconnect.fn, nil, nil)

	t.Cleanup(func() {
		countdown.Close()
		loop.Close()
	})
	return &managerFixture{loop: loop, manager: m, display: display, disconnect: disconnect}
}

// onLoop runs fn on the fixture's loop and waits for it, the same way
// production callers reach the manager.
func (f *managerFixture) onLoop(fn func()) {
	done := make(chan struct{})
	f.loop.Dispatch(func() {
		fn()
		close(done)
	})
	<-done
}

func TestManager_PendingThenAuthenticate(t *testing.T) {
	f := newManagerFixture(t, time.Hour)
	id := ulid.Make()

	f.onLoop(func() {
		s := f.manager.BeginPending(id, "alice", "203.0.113.9:1000")
		require.NotNil(t, s)
		assert.True(t, f.manager.IsPending(id))
		assert.False(t, f.manager.IsAuthenticated(id))
		assert.Equal(t, 1, f.manager.PendingCount())
	})

	f.onLoop(func() {
		s := f.manager.Authenticate(id)
		require.NotNil(t, s)
		assert.True(t, s.Authenticated())
		assert.False(t, f.manager.IsPending(id))
		assert.True(t, f.manager.IsAuthenticated(id))
		assert.Zero(t, f.manager.PendingCount())
		assert.Equal(t, 1, f.manager.ActiveCount())
	})

	assert.Equal(t, []ulid.ULID{id}, f.display.preAuthCleared)
}

func TestManager_AuthenticateWithoutSession(t *testing.T) {
	f := newManagerFixture(t, time.Hour)

	f.onLoop(func() {
		assert.Nil(t, f.manager.Authenticate(ulid.Make()))
	})
}

func TestManager_AuthenticateIsIdempotent(t *testing.T) {
	f := newManagerFixture(t, time.Hour)
	id := ulid.Make()

	f.onLoop(func() {
		f.manager.BeginPending(id, "alice", "origin")
		first := f.manager.Authenticate(id)
		second := f.manager.Authenticate(id)
		assert.Same(t, first, second)
		assert.Equal(t, 1, f.manager.ActiveCount())
	})
}

func TestManager_CountdownExpiryDisconnectsOnce(t *testing.T) {
	f := newManagerFixture(t, 3*time.Second)
	id := ulid.Make()

	f.onLoop(func() {
		s := f.manager.BeginPending(id, "bob", "origin")
		// An in-flight enrollment at expiry withdraws its artifact.
		s.BeginEnrollment("JBSWY3DP", false)
	})

	require.Eventually(t, func() bool {
		return len(f.disconnect.reasons()) > 0
	}, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, []DisconnectReason{DisconnectTimeout}, f.disconnect.reasons())
	assert.Equal(t, []ulid.ULID{id}, f.display.artifactsRemoved)

	f.onLoop(func() {
		assert.False(t, f.manager.IsPending(id))
		assert.False(t, f.manager.IsAuthenticated(id))
	})
}

func TestManager_AuthenticateCancelsCountdown(t *testing.T) {
	f := newManagerFixture(t, 2*time.Second)
	id := ulid.Make()

	f.onLoop(func() {
		f.manager.BeginPending(id, "carol", "origin")
		f.manager.Authenticate(id)
	})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, f.disconnect.reasons())
	f.onLoop(func() {
		assert.True(t, f.manager.IsAuthenticated(id))
	})
}

func TestManager_TickReflectsSubState(t *testing.T) {
	f := newManagerFixture(t, time.Hour)
	id := ulid.Make()

	var s *PlayerSession
	f.onLoop(func() {
		s = f.manager.BeginPending(id, "dave", "origin")
	})

	f.onLoop(func() { f.manager.showTick(id, 50, 60) })
	f.onLoop(func() {
		s.RequireSecondFactor()
		f.manager.showTick(id, 49, 60)
	})
	f.onLoop(func() {
		for i := 0; i < cooldownAttempts; i++ {
			s.RecordFailedAttempt()
		}
		f.manager.showTick(id, 48, 60)
	})

	kinds := f.display.tickKinds()
	// Countdown ticks from the millisecond timer may be interleaved, so
	// assert on the ordered subsequence the explicit calls produced.
	require.GreaterOrEqual(t, len(kinds), 3)
	assert.Contains(t, kinds, TickPlain)
	assert.Contains(t, kinds, TickAwaitingSecondFactor)
	assert.Contains(t, kinds, TickRateLimited)
}

func TestManager_AuthenticateRestored(t *testing.T) {
	t.Run("reuses pending session and discards enrollment", func(t *testing.T) {
		f := newManagerFixture(t, time.Hour)
		id := ulid.Make()

		f.onLoop(func() {
			s := f.manager.BeginPending(id, "erin", "origin")
			s.BeginEnrollment("JBSWY3DP", true)

			restored := f.manager.AuthenticateRestored(id, "erin", "origin")
			require.Same(t, s, restored)
			assert.True(t, restored.Authenticated())
			_, ok := restored.EnrollmentSecret()
			assert.False(t, ok)
		})
	})

	t.Run("already active session is returned unchanged", func(t *testing.T) {
		f := newManagerFixture(t, time.Hour)
		id := ulid.Make()

		f.onLoop(func() {
			first := f.manager.AuthenticateRestored(id, "erin", "origin")
			second := f.manager.AuthenticateRestored(id, "erin", "origin")
			assert.Same(t, first, second)
			assert.False(t, f.manager.IsPending(id))
			assert.True(t, f.manager.IsAuthenticated(id))
			assert.Zero(t, f.manager.PendingCount())
			assert.Equal(t, 1, f.manager.ActiveCount())
		})
	})

	t.Run("synthesizes a session when none is pending", func(t *testing.T) {
		f := newManagerFixture(t, time.Hour)
		id := ulid.Make()

		f.onLoop(func() {
			s := f.manager.AuthenticateRestored(id, "frank", "origin")
			require.NotNil(t, s)
			assert.True(t, s.Authenticated())
			assert.Equal(t, "frank", s.Name)
			assert.True(t, f.manager.IsAuthenticated(id))
		})
	})
}

func TestManager_Remove(t *testing.T) {
	f := newManagerFixture(t, time.Hour)
	pendingID := ulid.Make()
	activeID := ulid.Make()

	f.onLoop(func() {
		f.manager.BeginPending(pendingID, "gail", "origin")
		f.manager.BeginPending(activeID, "hank", "origin")
		f.manager.Authenticate(activeID)

		assert.True(t, f.manager.Remove(pendingID))
		assert.True(t, f.manager.Remove(activeID))
		assert.False(t, f.manager.Remove(ulid.Make()))

		assert.Zero(t, f.manager.PendingCount())
		assert.Zero(t, f.manager.ActiveCount())
	})
}

// TestManager_SessionExclusivity drives random interleavings of the
// lifecycle operations and checks after every step that no player is
// ever pending and authenticated at the same time.
func TestManager_SessionExclusivity(t *testing.T) {
	f := newManagerFixture(t, time.Hour)

	seed := time.Now().UnixNano()
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	players := []ulid.ULID{ulid.Make(), ulid.Make(), ulid.Make()}

	f.onLoop(func() {
		for i := 0; i < 2000; i++ {
			id := players[rng.Intn(len(players))]
			switch rng.Intn(4) {
			case 0:
				f.manager.BeginPending(id, "kim", "origin")
			case 1:
				f.manager.Authenticate(id)
			case 2:
				f.manager.AuthenticateRestored(id, "kim", "origin")
			case 3:
				f.manager.Remove(id)
			}

			for _, p := range players {
				if f.manager.IsPending(p) && f.manager.IsAuthenticated(p) {
					t.Errorf("step %d: player %s is pending and authenticated at once", i, p)
					return
				}
			}
			if total := f.manager.PendingCount() + f.manager.ActiveCount(); total > len(players) {
				t.Errorf("step %d: %d sessions for %d players", i, total, len(players))
				return
			}
		}
	})
}

func TestManager_BeginPendingReplacesActiveSession(t *testing.T) {
	f := newManagerFixture(t, time.Hour)
	id := ulid.Make()

	f.onLoop(func() {
		f.manager.BeginPending(id, "iris", "origin-a")
		f.manager.Authenticate(id)
		require.True(t, f.manager.IsAuthenticated(id))

		// A reconnect starts over as pending.
		s := f.manager.BeginPending(id, "iris", "origin-b")
		assert.False(t, s.Authenticated())
		assert.True(t, f.manager.IsPending(id))
		assert.False(t, f.manager.IsAuthenticated(id))
	})
}
