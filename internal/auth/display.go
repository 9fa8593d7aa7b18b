// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// TickKind selects which countdown message a player sees.
type TickKind int

const (
	// TickPlain shows the remaining seconds to log in or register.
	TickPlain TickKind = iota
	// TickAwaitingSecondFactor shows the one-time-code prompt.
	TickAwaitingSecondFactor
	// TickRateLimited shows the wait imposed by the attempt cooldown.
	TickRateLimited
)

// Tick is one second of the pre-auth countdown as shown to a player.
type Tick struct {
	Kind      TickKind
	Remaining int
	Total     int
	// RetryAfter is set for TickRateLimited.
	RetryAfter time.Duration
}

// DisconnectReason says why the engine terminated a connection.
type DisconnectReason int

const (
	// DisconnectTimeout means the pre-auth countdown ran out.
	DisconnectTimeout DisconnectReason = iota
	// DisconnectLoggedOut means the player ended their own session.
	DisconnectLoggedOut
	// DisconnectUnregistered means the account was deleted.
	DisconnectUnregistered
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectTimeout:
		return "timeout"
	case DisconnectLoggedOut:
		return "logged_out"
	case DisconnectUnregistered:
		return "unregistered"
	default:
		return "unknown"
	}
}

// DisconnectFunc terminates a player's connection with a reason. The
// engine calls it at most once per connection.
type DisconnectFunc func(playerID ulid.ULID, reason DisconnectReason)

// Display is the host surface the engine pushes player-facing events
// to. Implementations belong to the embedding server; the engine never
// renders text itself. All methods are invoked on the primary loop.
type Display interface {
	// ShowCountdown renders one countdown tick.
	ShowCountdown(playerID ulid.ULID, tick Tick)
	// NotifyLoginSuccess tells the player they are in.
	NotifyLoginSuccess(playerID ulid.ULID)
	// NotifyRegisterSuccess tells the player their account was created.
	NotifyRegisterSuccess(playerID ulid.ULID)
	// NotifyWrongCredential tells the player an attempt failed.
	NotifyWrongCredential(playerID ulid.ULID)
	// ShowEnrollment presents an enrollment secret, its otpauth URI,
	// and a QR code image for the player to scan.
	ShowEnrollment(playerID ulid.ULID, secret, uri string, qrPNG []byte)
	// RemoveEnrollmentArtifact withdraws a previously shown enrollment
	// artifact, such as a held QR map.
	RemoveEnrollmentArtifact(playerID ulid.ULID)
	// ClearPreAuth removes any pre-auth hold effects, restoring the
	// player's frozen state.
	ClearPreAuth(playerID ulid.ULID)
}

// NopDisplay discards every event. Useful in tests and as a default.
type NopDisplay struct{}

func (NopDisplay) ShowCountdown(ulid.ULID, Tick)                   {}
func (NopDisplay) NotifyLoginSuccess(ulid.ULID)                    {}
func (NopDisplay) NotifyRegisterSuccess(ulid.ULID)                 {}
func (NopDisplay) NotifyWrongCredential(ulid.ULID)                 {}
func (NopDisplay) ShowEnrollment(ulid.ULID, string, string, []byte) {}
func (NopDisplay) RemoveEnrollmentArtifact(ulid.ULID)              {}
func (NopDisplay) ClearPreAuth(ulid.ULID)                          {}

var _ Display = NopDisplay{}
