// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package postgres

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nozz/vouch/internal/auth"
)

// SessionRepository implements auth.SessionRepository on PostgreSQL.
type SessionRepository struct {
	db db
}

// NewSessionRepository creates a session repository backed by pool.
func NewSessionRepository(pool db) *SessionRepository {
	return &SessionRepository{db: pool}
}

// Create stores a session. The delete and insert run in one
// transaction so a player and origin pair never holds two rows, even
// under concurrent logins.
func (r *SessionRepository) Create(ctx context.Context, session *auth.PersistedSession) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return oops.Code("session_create_failed").With("operation", "begin").Wrap(err)
	}
	//nolint:errcheck // rollback after commit is a no-op
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`DELETE FROM sessions WHERE player_id = $1 AND origin = $2`,
		session.PlayerID.String(), session.Origin)
	if err != nil {
		return oops.Code("session_create_failed").
			With("operation", "delete prior").
			With("player_id", session.PlayerID.String()).
			Wrap(err)
	}

	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (player_id, token_hash, origin, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.PlayerID.String(), session.TokenHash, session.Origin,
		createdAt, session.ExpiresAt)
	if err != nil {
		return oops.Code("session_create_failed").
			With("operation", "insert").
			With("player_id", session.PlayerID.String()).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("session_create_failed").With("operation", "commit").Wrap(err)
	}
	return nil
}

// HasValid reports whether playerID has an unexpired session from
// origin.
func (r *SessionRepository) HasValid(ctx context.Context, playerID ulid.ULID, origin string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM sessions
		   WHERE player_id = $1 AND origin = $2 AND expires_at > $3
		 )`,
		playerID.String(), origin, now).Scan(&exists)
	if err != nil {
		return false, oops.Code("session_lookup_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return exists, nil
}

// HasAnyValid reports whether playerID has an unexpired session from
// any origin.
func (r *SessionRepository) HasAnyValid(ctx context.Context, playerID ulid.ULID, now time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM sessions
		   WHERE player_id = $1 AND expires_at > $2
		 )`,
		playerID.String(), now).Scan(&exists)
	if err != nil {
		return false, oops.Code("session_lookup_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return exists, nil
}

// DeleteAllForPlayer removes every session for playerID.
func (r *SessionRepository) DeleteAllForPlayer(ctx context.Context, playerID ulid.ULID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE player_id = $1`,
		playerID.String())
	if err != nil {
		return 0, oops.Code("session_delete_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes sessions past their expiry.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, oops.Code("session_sweep_failed").Wrap(err)
	}
	return tag.RowsAffected(), nil
}

var _ auth.SessionRepository = (*SessionRepository)(nil)
