// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

// Package auth implements the authentication and session engine that
// gates access to the shared world: password hashing and verification,
// time-based one-time codes, pre-auth rate limiting, the pending and
// active session lifecycle, and the login countdown.
package auth
