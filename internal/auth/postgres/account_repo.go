// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nozz/vouch/internal/auth"
)

// AccountRepository implements auth.AccountRepository on PostgreSQL.
type AccountRepository struct {
	db db
}

// NewAccountRepository creates an account repository backed by pool.
func NewAccountRepository(pool db) *AccountRepository {
	return &AccountRepository{db: pool}
}

// Create inserts a new account, mapping the unique violation on
// player_id to auth.ErrAlreadyRegistered.
func (r *AccountRepository) Create(ctx context.Context, account *auth.Account) error {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO accounts (player_id, name, password_hash, totp_secret, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		account.PlayerID.String(), account.Name,
		account.PasswordHash, account.TOTPSecret, createdAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return auth.ErrAlreadyRegistered
		}
		return oops.Code("account_create_failed").
			With("player_id", account.PlayerID.String()).
			Wrap(err)
	}
	return nil
}

// Get returns the account for playerID or auth.ErrAccountNotFound.
func (r *AccountRepository) Get(ctx context.Context, playerID ulid.ULID) (*auth.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT player_id, name, password_hash, totp_secret, created_at, last_login_at, last_ip
		 FROM accounts WHERE player_id = $1`,
		playerID.String())
	return scanAccount(row)
}

func scanAccount(row pgx.Row) (*auth.Account, error) {
	var (
		acct      auth.Account
		idStr     string
		lastLogin *time.Time
	)
	err := row.Scan(&idStr, &acct.Name, &acct.PasswordHash,
		&acct.TOTPSecret, &acct.CreatedAt, &lastLogin, &acct.LastIP)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, auth.ErrAccountNotFound
	}
	if err != nil {
		return nil, oops.Code("account_scan_failed").Wrap(err)
	}

	acct.PlayerID, err = ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("account_corrupt_id").With("player_id", idStr).Wrap(err)
	}
	if lastLogin != nil {
		acct.LastLoginAt = *lastLogin
	}
	return &acct, nil
}

// IsRegistered reports whether playerID has an account.
func (r *AccountRepository) IsRegistered(ctx context.Context, playerID ulid.ULID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE player_id = $1)`,
		playerID.String()).Scan(&exists)
	if err != nil {
		return false, oops.Code("account_lookup_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return exists, nil
}

// SetTOTPSecret stores or clears the confirmed shared secret.
func (r *AccountRepository) SetTOTPSecret(ctx context.Context, playerID ulid.ULID, secret string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET totp_secret = $2 WHERE player_id = $1`,
		playerID.String(), secret)
	if err != nil {
		return oops.Code("account_update_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// UpdateLastLogin stamps the most recent successful authentication
// together with the origin it came from.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, playerID ulid.ULID, at time.Time, ip string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET last_login_at = $2, last_ip = $3 WHERE player_id = $1`,
		playerID.String(), at, ip)
	if err != nil {
		return oops.Code("account_update_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrAccountNotFound
	}
	return nil
}

// Delete removes the account, reporting whether one existed. Sessions
// go with it via the foreign key cascade.
func (r *AccountRepository) Delete(ctx context.Context, playerID ulid.ULID) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM accounts WHERE player_id = $1`,
		playerID.String())
	if err != nil {
		return false, oops.Code("account_delete_failed").
			With("player_id", playerID.String()).
			Wrap(err)
	}
	return tag.RowsAffected() > 0, nil
}

var _ auth.AccountRepository = (*AccountRepository)(nil)
