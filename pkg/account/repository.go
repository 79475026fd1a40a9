package account

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/domain"
)

var (
	// ErrCodeTaken is returned by Create when another account of the same
	// role already owns the referral code. Callers regenerate and retry.
	ErrCodeTaken = errors.New("referral code already taken")

	// ErrAlreadyLinked is returned by InsertReferral when the referee has
	// already been credited to a referrer.
	ErrAlreadyLinked = errors.New("referee already linked")
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Referral is one credited signup: referee used referrer's code.
type Referral struct {
	ID         string
	ReferrerID string
	RefereeID  string
	Code       string
	CreatedAt  time.Time
}

// ListFilter narrows List.
type ListFilter struct {
	Role        Role
	EnabledOnly bool
	Limit       int
	Offset      int
}

// Repository stores accounts and referral edges.
type Repository struct {
	q Querier
}

// NewRepository creates a repository on top of q.
func NewRepository(q Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx}
}

const accountColumns = `id, role, name, email, phone_number, login_key, password_hash,
	referral_code, referred_by, referral_count, is_enabled, profile, video_key,
	created_at, updated_at`

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner) (*Account, error) {
	var (
		a                                      Account
		email, phone, code, referredBy, videoK sql.NullString
		profile                                string
	)
	err := s.Scan(&a.ID, &a.Role, &a.Name, &email, &phone, &a.LoginKey, &a.PasswordHash,
		&code, &referredBy, &a.ReferralCount, &a.IsEnabled, &profile, &videoK,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Email = email.String
	a.PhoneNumber = phone.String
	a.ReferralCode = code.String
	a.ReferredBy = referredBy.String
	a.VideoKey = videoK.String
	if profile != "" {
		if err := json.Unmarshal([]byte(profile), &a.Profile); err != nil {
			return nil, fmt.Errorf("decode profile of %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func (r *Repository) queryAccounts(ctx context.Context, query string, args ...any) ([]*Account, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	defer rows.Close()

	var out []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, domain.NewInternalError(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewInternalError(err)
	}
	return out, nil
}

func (r *Repository) queryAccount(ctx context.Context, query string, args ...any) (*Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("account")
	}
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	return a, nil
}

// Create inserts a. ID and timestamps are filled in when empty.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}
	a.UpdatedAt = a.CreatedAt

	profile, err := json.Marshal(a.Profile)
	if err != nil {
		return domain.NewInternalError(err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.Role, a.Name, nullable(a.Email), nullable(a.PhoneNumber), a.LoginKey, a.PasswordHash,
		nullable(a.ReferralCode), nullable(a.ReferredBy), a.ReferralCount, a.IsEnabled, string(profile),
		nullable(a.VideoKey), a.CreatedAt, a.UpdatedAt)
	if err == nil {
		return nil
	}

	col, unique := database.UniqueViolation(err)
	switch {
	case unique && col == database.UniqueReferralCode:
		return ErrCodeTaken
	case unique && col == database.UniqueEmail:
		return domain.NewConflictError("an account with this email already exists")
	case unique:
		return domain.NewConflictError("an account with these credentials already exists")
	default:
		return domain.NewInternalError(err)
	}
}

// GetByID returns any account by id.
func (r *Repository) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.queryAccount(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

// GetByLoginKey finds the account of role with the given normalized login key.
func (r *Repository) GetByLoginKey(ctx context.Context, role Role, key string) (*Account, error) {
	return r.queryAccount(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND login_key = $2`, role, key)
}

// GetByReferralCode finds the account of role that owns code.
func (r *Repository) GetByReferralCode(ctx context.Context, role Role, code string) (*Account, error) {
	return r.queryAccount(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE role = $1 AND referral_code = $2`, role, code)
}

// CodeExists reports whether code is already used within role.
func (r *Repository) CodeExists(ctx context.Context, role Role, code string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE role = $1 AND referral_code = $2`, role, code).Scan(&n)
	if err != nil {
		return false, domain.NewInternalError(err)
	}
	return n > 0, nil
}

// List returns accounts of a role in signup order.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]*Account, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	if f.EnabledOnly {
		return r.queryAccounts(ctx,
			`SELECT `+accountColumns+` FROM accounts
			 WHERE role = $1 AND is_enabled = $2
			 ORDER BY created_at ASC, id ASC`+limitClause(limit, f.Offset),
			f.Role, true)
	}
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE role = $1
		 ORDER BY created_at ASC, id ASC`+limitClause(limit, f.Offset),
		f.Role)
}

func limitClause(limit, offset int) string {
	if limit < 0 && offset <= 0 {
		return ""
	}
	if limit < 0 {
		// LIMIT ALL is not portable; a large bound is.
		limit = 1 << 30
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}

// ListReferredBy returns the enabled accounts of role that signed up with code.
func (r *Repository) ListReferredBy(ctx context.Context, role Role, code string) ([]*Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE role = $1 AND referred_by = $2 AND is_enabled = $3
		 ORDER BY created_at ASC, id ASC`,
		role, code, true)
}

// LeaderboardRows returns enabled accounts of role ordered by referral count,
// then signup order.
func (r *Repository) LeaderboardRows(ctx context.Context, role Role) ([]*Account, error) {
	return r.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE role = $1 AND is_enabled = $2
		 ORDER BY referral_count DESC, created_at ASC, id ASC`,
		role, true)
}

func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.q.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.NewInternalError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewInternalError(err)
	}
	if n == 0 {
		return domain.NewNotFoundError("account")
	}
	return nil
}

// SoftDelete disables the account. Referrer counts are left untouched.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET is_enabled = $1, updated_at = $2 WHERE id = $3`,
		false, now(), id)
}

// SetVideoKey stores the object key of an uploaded video; "" clears it.
func (r *Repository) SetVideoKey(ctx context.Context, id, key string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET video_key = $1, updated_at = $2 WHERE id = $3`,
		nullable(key), now(), id)
}

// SetReferredBy records the code an account was credited through.
func (r *Repository) SetReferredBy(ctx context.Context, id, code string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET referred_by = $1, updated_at = $2 WHERE id = $3`,
		code, now(), id)
}

// SetReferralCount overwrites the stored count.
func (r *Repository) SetReferralCount(ctx context.Context, id string, count int) error {
	return r.execOne(ctx,
		`UPDATE accounts SET referral_count = $1, updated_at = $2 WHERE id = $3`,
		count, now(), id)
}

// IncrementReferralCount adds one to the stored count in a single statement.
func (r *Repository) IncrementReferralCount(ctx context.Context, id string) error {
	return r.execOne(ctx,
		`UPDATE accounts SET referral_count = referral_count + 1, updated_at = $1 WHERE id = $2`,
		now(), id)
}

// CountGreater counts enabled accounts of role with more than count referrals.
func (r *Repository) CountGreater(ctx context.Context, role Role, count int) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE role = $1 AND is_enabled = $2 AND referral_count > $3`,
		role, true, count).Scan(&n)
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	return n, nil
}

// CountMatchingReferees counts enabled accounts of role that signed up with code.
func (r *Repository) CountMatchingReferees(ctx context.Context, role Role, code string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE role = $1 AND referred_by = $2 AND is_enabled = $3`,
		role, code, true).Scan(&n)
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	return n, nil
}

// InsertReferral stores a referral edge.
func (r *Repository) InsertReferral(ctx context.Context, ref *Referral) error {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.CreatedAt.IsZero() {
		ref.CreatedAt = now()
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO referrals (id, referrer_id, referee_id, code, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ref.ID, ref.ReferrerID, ref.RefereeID, ref.Code, ref.CreatedAt)
	if err == nil {
		return nil
	}
	if col, ok := database.UniqueViolation(err); ok && col == database.UniqueReferee {
		return ErrAlreadyLinked
	}
	return domain.NewInternalError(err)
}

// CountReferrals counts the recorded edges of referrerID whose referee is
// still enabled.
func (r *Repository) CountReferrals(ctx context.Context, referrerID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referrals r
		 JOIN accounts a ON a.id = r.referee_id
		 WHERE r.referrer_id = $1 AND a.is_enabled = $2`,
		referrerID, true).Scan(&n)
	if err != nil {
		return 0, domain.NewInternalError(err)
	}
	return n, nil
}
