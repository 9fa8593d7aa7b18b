// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import "strings"

// Mode selects which credentials a player must present.
type Mode int

const (
	// ModePasswordOnly requires a password and never a one-time code.
	ModePasswordOnly Mode = iota
	// ModeSecondFactorOnly requires a one-time code and no password.
	ModeSecondFactorOnly
	// ModePasswordOptionalSecondFactor requires a password and lets
	// players opt into a one-time code on top.
	ModePasswordOptionalSecondFactor
)

// DefaultMode is used when configuration names no mode or an
// unrecognized one.
const DefaultMode = ModePasswordOptionalSecondFactor

// ParseMode maps a configuration string to a Mode. Matching is
// case-insensitive and tolerates surrounding whitespace; anything
// unrecognized falls back to DefaultMode.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "password_only":
		return ModePasswordOnly
	case "2fa_only":
		return ModeSecondFactorOnly
	case "password_optional_2fa":
		return ModePasswordOptionalSecondFactor
	default:
		return DefaultMode
	}
}

func (m Mode) String() string {
	switch m {
	case ModePasswordOnly:
		return "password_only"
	case ModeSecondFactorOnly:
		return "2fa_only"
	case ModePasswordOptionalSecondFactor:
		return "password_optional_2fa"
	default:
		return "unknown"
	}
}

// UsesPassword reports whether the mode authenticates with a password.
func (m Mode) UsesPassword() bool { return m != ModeSecondFactorOnly }

// UsesSecondFactor reports whether one-time codes play any role in the
// mode.
func (m Mode) UsesSecondFactor() bool { return m != ModePasswordOnly }

// SecondFactorOptional reports whether players choose for themselves
// whether to enable a one-time code.
func (m Mode) SecondFactorOptional() bool { return m == ModePasswordOptionalSecondFactor }
