// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
)

// ManagerConfig controls session lifecycle behavior.
type ManagerConfig struct {
	// LoginTimeout is how long a pending session may stay
	// unauthenticated before the connection is terminated.
	LoginTimeout time.Duration
}

// DefaultManagerConfig returns the production lifecycle settings.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{LoginTimeout: 60 * time.Second}
}

// Manager owns the in-memory session lifecycle: pending sessions under
// the login countdown and authenticated active sessions. A player is
// in at most one of the two sets at a time.
//
// Manager state is mutated only on the primary loop; callers must
// invoke its methods from there.
type Manager struct {
	config     ManagerConfig
	display    Display
	disconnect DisconnectFunc
	countdown  *Countdown
	metrics    *Metrics
	logger     *slog.Logger

	pending map[ulid.ULID]*PlayerSession
	active  map[ulid.ULID]*PlayerSession
}

// NewManager creates a session manager. display, disconnect, metrics,
// and logger may be nil.
func NewManager(config ManagerConfig, countdown *Countdown, display Display, disconnect DisconnectFunc, metrics *Metrics, logger *slog.Logger) *Manager {
	if config.LoginTimeout <= 0 {
		config.LoginTimeout = DefaultManagerConfig().LoginTimeout
	}
	if display == nil {
		display = NopDisplay{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:     config,
		display:    display,
		disconnect: disconnect,
		countdown:  countdown,
		metrics:    metrics,
		logger:     logger,
		pending:    make(map[ulid.ULID]*PlayerSession),
		active:     make(map[ulid.ULID]*PlayerSession),
	}
}

// BeginPending registers a freshly connected player as pending and
// starts their login countdown. Any prior session for the player is
// replaced.
func (m *Manager) BeginPending(playerID ulid.ULID, name, origin string) *PlayerSession {
	delete(m.active, playerID)
	s := NewPlayerSession(playerID, name, origin)
	m.pending[playerID] = s
	m.publishGauges()

	total := int(m.config.LoginTimeout / time.Second)
	m.countdown.Start(playerID,
		total,
		func(remaining int) { m.showTick(playerID, remaining, total) },
		func() { m.onCountdownExpired(playerID) },
	)

	m.logger.Debug("pending session started",
		"player_id", playerID, "name", name, "origin", origin)
	return s
}

// Session returns the player's session, pending or active, or nil.
func (m *Manager) Session(playerID ulid.ULID) *PlayerSession {
	if s, ok := m.pending[playerID]; ok {
		return s
	}
	return m.active[playerID]
}

// IsPending reports whether the player is awaiting authentication.
func (m *Manager) IsPending(playerID ulid.ULID) bool {
	_, ok := m.pending[playerID]
	return ok
}

// IsAuthenticated reports whether the player holds an active session.
func (m *Manager) IsAuthenticated(playerID ulid.ULID) bool {
	_, ok := m.active[playerID]
	return ok
}

// Authenticate promotes the player's pending session to active,
// canceling the countdown and lifting pre-auth holds. Returns nil when
// the player has no session at all.
func (m *Manager) Authenticate(playerID ulid.ULID) *PlayerSession {
	if s, ok := m.active[playerID]; ok {
		return s
	}
	s, ok := m.pending[playerID]
	if !ok {
		m.logger.Debug("authenticate with no pending session", "player_id", playerID)
		return nil
	}
	delete(m.pending, playerID)
	s.MarkAuthenticated()
	m.active[playerID] = s
	m.publishGauges()

	m.countdown.Cancel(playerID)
	m.display.ClearPreAuth(playerID)

	m.logger.Info("session authenticated",
		"player_id", playerID, "name", s.Name, "origin", s.Origin)
	return s
}

// AuthenticateRestored admits a player on the strength of a persisted
// session. An already active session is returned as is. A pending
// session is reused when one exists, otherwise a fresh one is
// synthesized. Any in-flight enrollment is discarded, a restored login
// never confirms a secret.
func (m *Manager) AuthenticateRestored(playerID ulid.ULID, name, origin string) *PlayerSession {
	if s, ok := m.active[playerID]; ok {
		return s
	}
	if s, ok := m.pending[playerID]; ok {
		s.ClearEnrollment()
		return m.Authenticate(playerID)
	}
	s := NewPlayerSession(playerID, name, origin)
	m.pending[playerID] = s
	return m.Authenticate(playerID)
}

// Remove drops the player's session on disconnect, canceling any
// countdown. It reports whether a session existed.
func (m *Manager) Remove(playerID ulid.ULID) bool {
	m.countdown.Cancel(playerID)
	if _, ok := m.pending[playerID]; ok {
		delete(m.pending, playerID)
		m.publishGauges()
		return true
	}
	if _, ok := m.active[playerID]; ok {
		delete(m.active, playerID)
		m.publishGauges()
		return true
	}
	return false
}

// PendingCount returns how many players are awaiting authentication.
func (m *Manager) PendingCount() int { return len(m.pending) }

// ActiveCount returns how many players are authenticated.
func (m *Manager) ActiveCount() int { return len(m.active) }

// Shutdown cancels all countdowns. Sessions are left in place for the
// host to tear down connections.
func (m *Manager) Shutdown() {
	m.countdown.Close()
}

func (m *Manager) showTick(playerID ulid.ULID, remaining, total int) {
	s, ok := m.pending[playerID]
	if !ok {
		return
	}
	tick := Tick{Kind: TickPlain, Remaining: remaining, Total: total}
	if wait := s.CooldownRemaining(); wait > 0 {
		tick.Kind = TickRateLimited
		tick.RetryAfter = wait
	} else if s.AwaitingSecondFactor() {
		tick.Kind = TickAwaitingSecondFactor
	}
	m.display.ShowCountdown(playerID, tick)
}

// onCountdownExpired terminates a player that never authenticated. The
// pending map is the once-guard: the first expiry removes the entry,
// so a late duplicate finds nothing to do.
func (m *Manager) onCountdownExpired(playerID ulid.ULID) {
	s, ok := m.pending[playerID]
	if !ok {
		return
	}
	delete(m.pending, playerID)
	m.publishGauges()

	if _, enrolling := s.EnrollmentSecret(); enrolling {
		m.display.RemoveEnrollmentArtifact(playerID)
	}
	m.logger.Info("login countdown expired",
		"player_id", playerID, "name", s.Name, "origin", s.Origin)
	if m.disconnect != nil {
		m.disconnect(playerID, DisconnectTimeout)
	}
}

func (m *Manager) publishGauges() {
	m.metrics.SetPending(len(m.pending))
	m.metrics.SetActive(len(m.active))
}
