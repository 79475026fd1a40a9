package database

import (
	"context"
	"fmt"
)

// schema is written in the subset of SQL shared by PostgreSQL and SQLite.
// Every statement is idempotent so Migrate can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             TEXT PRIMARY KEY,
		role           TEXT NOT NULL,
		name           TEXT NOT NULL,
		email          TEXT,
		phone_number   TEXT,
		login_key      TEXT NOT NULL,
		password_hash  TEXT NOT NULL,
		referral_code  TEXT,
		referred_by    TEXT,
		referral_count INTEGER NOT NULL DEFAULT 0 CHECK (referral_count >= 0),
		is_enabled     BOOLEAN NOT NULL DEFAULT TRUE,
		profile        TEXT NOT NULL DEFAULT '{}',
		video_key      TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_role_referral_code_key ON accounts (role, referral_code)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_role_login_key_key ON accounts (role, login_key)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_role_email_key ON accounts (role, email)`,
	`CREATE INDEX IF NOT EXISTS accounts_role_referred_by_idx ON accounts (role, referred_by)`,
	`CREATE INDEX IF NOT EXISTS accounts_role_leaderboard_idx ON accounts (role, is_enabled, referral_count)`,

	`CREATE TABLE IF NOT EXISTS referrals (
		id          TEXT PRIMARY KEY,
		referrer_id TEXT NOT NULL REFERENCES accounts (id),
		referee_id  TEXT NOT NULL REFERENCES accounts (id),
		code        TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS referrals_referee_id_key ON referrals (referee_id)`,
	`CREATE INDEX IF NOT EXISTS referrals_referrer_id_idx ON referrals (referrer_id)`,
}

// Migrate creates the tables and indexes if they do not exist yet.
func (c *Client) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
