package database

import (
	"errors"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Column names reported by UniqueViolation.
const (
	UniqueReferralCode = "referral_code"
	UniqueLoginKey     = "login_key"
	UniqueEmail        = "email"
	UniqueReferee      = "referee_id"
)

var pgConstraints = map[string]string{
	"accounts_role_referral_code_key": UniqueReferralCode,
	"accounts_role_login_key_key":     UniqueLoginKey,
	"accounts_role_email_key":         UniqueEmail,
	"referrals_referee_id_key":        UniqueReferee,
}

// UniqueViolation reports whether err is a unique constraint violation and,
// if so, which column caused it. The column is "" when it cannot be told.
func UniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "23505" {
			return "", false
		}
		return pgConstraints[pqErr.Constraint], true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
			return "", false
		}
		return sqliteColumn(liteErr.Error()), true
	}

	return "", false
}

// sqliteColumn pulls the last column out of
// "UNIQUE constraint failed: accounts.role, accounts.referral_code".
func sqliteColumn(msg string) string {
	_, cols, ok := strings.Cut(msg, "failed:")
	if !ok {
		return ""
	}
	parts := strings.Split(cols, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if _, col, ok := strings.Cut(last, "."); ok {
		return col
	}
	return last
}
