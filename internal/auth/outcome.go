// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package auth

import "time"

// Outcome classifies how an authentication operation ended. The host
// maps outcomes to player-facing messages.
type Outcome int

const (
	// OutcomeSuccess means the operation fully succeeded.
	OutcomeSuccess Outcome = iota
	// OutcomeSecondFactorRequired means the password verified and a
	// one-time code is now outstanding.
	OutcomeSecondFactorRequired
	// OutcomeSecondFactorEnabled means enrollment was confirmed.
	OutcomeSecondFactorEnabled
	// OutcomeSecondFactorDisabled means the second factor was removed.
	OutcomeSecondFactorDisabled
	// OutcomeWrongCredential means the password did not match.
	OutcomeWrongCredential
	// OutcomeInvalidCode means the one-time code was wrong or
	// malformed.
	OutcomeInvalidCode
	// OutcomeRateLimited means the attempt was refused; Result
	// carries the wait.
	OutcomeRateLimited
	// OutcomeAlreadyAuthenticated means the player is already in.
	OutcomeAlreadyAuthenticated
	// OutcomeNotAuthenticated means the operation needs an active
	// session.
	OutcomeNotAuthenticated
	// OutcomeAlreadyRegistered means an account already exists.
	OutcomeAlreadyRegistered
	// OutcomeNotRegistered means no account exists yet.
	OutcomeNotRegistered
	// OutcomePasswordMismatch means the confirmation did not repeat
	// the password.
	OutcomePasswordMismatch
	// OutcomePasswordTooShort and OutcomePasswordTooLong report the
	// configured length bounds.
	OutcomePasswordTooShort
	OutcomePasswordTooLong
	// OutcomeSecondFactorNotEnabled means the account has no second
	// factor to use or remove.
	OutcomeSecondFactorNotEnabled
	// OutcomeSecondFactorAlreadyEnabled means enrollment was refused
	// because a secret is already confirmed.
	OutcomeSecondFactorAlreadyEnabled
	// OutcomeNothingPending means no credential step was outstanding.
	OutcomeNothingPending
	// OutcomeNoSession means the player has no session at all.
	OutcomeNoSession
	// OutcomeModeDisabled means the configured mode does not offer
	// the operation.
	OutcomeModeDisabled
	// OutcomeStorageError means the backing store failed; the attempt
	// was not counted against the player.
	OutcomeStorageError
)

var outcomeNames = map[Outcome]string{
	OutcomeSuccess:                    "success",
	OutcomeSecondFactorRequired:       "second_factor_required",
	OutcomeSecondFactorEnabled:        "second_factor_enabled",
	OutcomeSecondFactorDisabled:       "second_factor_disabled",
	OutcomeWrongCredential:            "wrong_credential",
	OutcomeInvalidCode:                "invalid_code",
	OutcomeRateLimited:                "rate_limited",
	OutcomeAlreadyAuthenticated:       "already_authenticated",
	OutcomeNotAuthenticated:           "not_authenticated",
	OutcomeAlreadyRegistered:          "already_registered",
	OutcomeNotRegistered:              "not_registered",
	OutcomePasswordMismatch:           "password_mismatch",
	OutcomePasswordTooShort:           "password_too_short",
	OutcomePasswordTooLong:            "password_too_long",
	OutcomeSecondFactorNotEnabled:     "second_factor_not_enabled",
	OutcomeSecondFactorAlreadyEnabled: "second_factor_already_enabled",
	OutcomeNothingPending:             "nothing_pending",
	OutcomeNoSession:                  "no_session",
	OutcomeModeDisabled:               "mode_disabled",
	OutcomeStorageError:               "storage_error",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Result is the terminal report of an authentication operation.
type Result struct {
	Outcome Outcome
	// RetryAfter is set with OutcomeRateLimited.
	RetryAfter time.Duration
	// Token is the raw session token issued on success when persisted
	// sessions are enabled. It is never stored server side.
	Token string
}

// EnrollmentResult is the terminal report of starting a one-time-code
// enrollment.
type EnrollmentResult struct {
	Outcome Outcome
	Secret  string
	URI     string
	QRPNG   []byte
}
