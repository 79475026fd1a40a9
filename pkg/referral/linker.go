package referral

import (
	"context"
	"errors"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/metrics"
)

// Reasons a supplied code credits nobody.
const (
	RejectUnknown  = "unknown"
	RejectDisabled = "disabled"
	RejectSelf     = "self"
)

// Linker credits referrers when a referee signs up with their code.
type Linker struct {
	roles   account.Roles
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewLinker creates a linker.
func NewLinker(roles account.Roles, log logger.Logger, m *metrics.Metrics) *Linker {
	if log == nil {
		log = logger.Discard()
	}
	return &Linker{roles: roles, log: log, metrics: m}
}

// Link resolves code to a referrer and credits it for referee. It must run
// on a repository bound to the transaction that created referee, so the
// credit commits or rolls back with the signup.
//
// A missing, DIRECT, unknown or disabled code is not an error: Link returns
// (nil, nil). Self-referrals are refused the same way.
func (l *Linker) Link(ctx context.Context, repo *account.Repository, referee *account.Account, code string) (*account.Account, error) {
	desc, err := l.roles.Lookup(referee.Role)
	if err != nil {
		return nil, err
	}
	if !desc.Referable() || IsDirect(code) {
		return nil, nil
	}
	code = NormalizeCode(code)

	if desc.ReferrerRole == referee.Role && code == referee.ReferralCode {
		l.reject(referee, code, RejectSelf)
		return nil, nil
	}

	referrer, err := repo.GetByReferralCode(ctx, desc.ReferrerRole, code)
	if domain.IsNotFound(err) {
		l.reject(referee, code, RejectUnknown)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	switch {
	case referrer.ID == referee.ID:
		l.reject(referee, code, RejectSelf)
		return nil, nil
	case !referrer.IsEnabled:
		l.reject(referee, code, RejectDisabled)
		return nil, nil
	}

	applied, err := l.Apply(ctx, repo, referee, referrer, code)
	if err != nil || !applied {
		return nil, err
	}
	return referrer, nil
}

// Apply records the referral edge, stamps referee.ReferredBy and increments
// the referrer's count by exactly one. It is the only live write path for
// referral counts. A referee that is already linked is left alone and
// Apply reports false.
func (l *Linker) Apply(ctx context.Context, repo *account.Repository, referee, referrer *account.Account, code string) (bool, error) {
	err := repo.InsertReferral(ctx, &account.Referral{
		ReferrerID: referrer.ID,
		RefereeID:  referee.ID,
		Code:       code,
	})
	if errors.Is(err, account.ErrAlreadyLinked) {
		l.log.Warn("referee already linked", "referee_id", referee.ID, "code", code)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := repo.SetReferredBy(ctx, referee.ID, code); err != nil {
		return false, err
	}
	if err := repo.IncrementReferralCount(ctx, referrer.ID); err != nil {
		return false, err
	}

	referee.ReferredBy = code
	referrer.ReferralCount++
	return true, nil
}

func (l *Linker) reject(referee *account.Account, code, reason string) {
	l.log.Info("referral code not credited",
		"referee_id", referee.ID,
		"role", referee.Role,
		"code", code,
		"reason", reason,
	)
	l.metrics.RecordReferralRejected(string(referee.Role), reason)
}
