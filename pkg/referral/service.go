package referral

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/metrics"
	"github.com/jordanlanch/refertrack/pkg/phone"
	"golang.org/x/crypto/bcrypt"
)

// Options configures NewService.
type Options struct {
	Roles        account.Roles
	PhoneRegion  string
	PasswordCost int // bcrypt cost, 0 means bcrypt.DefaultCost
	Leaderboard  *Leaderboard
	Logger       logger.Logger
	Metrics      *metrics.Metrics
}

// Service is the account component: signup, login and profile reads for
// every role, with referral crediting done in the signup transaction.
type Service struct {
	db      *sql.DB
	repo    *account.Repository
	roles   account.Roles
	region  string
	cost    int
	linker  *Linker
	ranker  *Ranker
	board   *Leaderboard
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewService creates a new referral service
func NewService(db *sql.DB, opts Options) *Service {
	if opts.Roles == nil {
		opts.Roles = account.DefaultRoles()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.PasswordCost == 0 {
		opts.PasswordCost = bcrypt.DefaultCost
	}
	repo := account.NewRepository(db)
	return &Service{
		db:      db,
		repo:    repo,
		roles:   opts.Roles,
		region:  opts.PhoneRegion,
		cost:    opts.PasswordCost,
		linker:  NewLinker(opts.Roles, opts.Logger, opts.Metrics),
		ranker:  NewRanker(repo),
		board:   opts.Leaderboard,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// Repository exposes the underlying account store.
func (s *Service) Repository() *account.Repository {
	return s.repo
}

// Roles returns the role policies in use.
func (s *Service) Roles() account.Roles {
	return s.roles
}

// Signup creates an account and credits the referrer named by
// in.ReferralCode, all in one transaction. A referral code collision at
// insert time regenerates the code and tries again.
func (s *Service) Signup(ctx context.Context, in account.NewAccount) (*account.Account, error) {
	desc, err := s.roles.Lookup(in.Role)
	if err != nil {
		return nil, err
	}
	in, err = s.normalize(desc, in)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPasswordCost(in.Password, s.cost)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}

	for {
		acc := &account.Account{
			Role:         in.Role,
			Name:         in.Name,
			Email:        in.Email,
			PhoneNumber:  in.PhoneNumber,
			LoginKey:     desc.LoginKey(in.Name, in.Email, in.PhoneNumber),
			PasswordHash: hash,
			IsEnabled:    true,
			Profile:      in.Profile,
		}
		if desc.IssuesCode {
			acc.ReferralCode, err = GenerateCode(ctx, func(ctx context.Context, code string) (bool, error) {
				taken, err := s.repo.CodeExists(ctx, in.Role, code)
				if taken {
					s.metrics.RecordCodeCollision()
				}
				return taken, err
			})
			if err != nil {
				return nil, domain.NewInternalError(err)
			}
		}

		var referrer *account.Account
		err = database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Create(ctx, acc); err != nil {
				return err
			}
			var err error
			referrer, err = s.linker.Link(ctx, repo, acc, in.ReferralCode)
			return err
		})
		if errors.Is(err, account.ErrCodeTaken) {
			s.metrics.RecordCodeCollision()
			s.log.Warn("referral code taken at insert, regenerating", "role", in.Role)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.metrics.RecordSignup(string(acc.Role))
		s.log.Info("account created", "account_id", acc.ID, "role", acc.Role, "referred_by", acc.ReferredBy)
		// A new code-issuing account joins its board at count zero.
		if desc.IssuesCode {
			s.board.Invalidate(ctx, acc.Role)
		}
		if referrer != nil {
			s.metrics.RecordReferralLinked(string(referrer.Role))
			if !desc.IssuesCode || referrer.Role != acc.Role {
				s.board.Invalidate(ctx, referrer.Role)
			}
			s.log.Info("referral credited",
				"referrer_id", referrer.ID,
				"referee_id", acc.ID,
				"code", acc.ReferredBy,
				"referral_count", referrer.ReferralCount,
			)
		}
		return acc, nil
	}
}

func (s *Service) normalize(desc account.Descriptor, in account.NewAccount) (account.NewAccount, error) {
	if err := desc.Validate(in); err != nil {
		return in, err
	}
	if len(in.Password) < auth.MinPasswordLength {
		return in, domain.NewValidationError(fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}

	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.PhoneNumber != "" {
		n, err := phone.Parse(in.PhoneNumber, s.region)
		if err != nil {
			return in, domain.NewValidationError("invalid phone number")
		}
		if desc.Role == account.RoleCollege && n.NationalLen != 10 {
			return in, domain.NewValidationError("phone number must be exactly 10 digits")
		}
		in.PhoneNumber = n.E164
	}
	return in, nil
}

// Login authenticates identifier (the role's login field) and password.
// An unknown identifier is not-found and a wrong password is a validation
// error; disabled accounts are refused once the password matches.
func (s *Service) Login(ctx context.Context, role account.Role, identifier, password string) (*account.Account, error) {
	desc, err := s.roles.Lookup(role)
	if err != nil {
		return nil, err
	}

	key := identifier
	if desc.LoginField == account.LoginByPhone {
		if key, err = phone.Normalize(identifier, s.region); err != nil {
			s.metrics.RecordLoginAttempt(string(role), false)
			return nil, domain.NewValidationError("invalid phone number")
		}
	}
	key = desc.LoginKey(key, key, key)

	acc, err := s.repo.GetByLoginKey(ctx, role, key)
	if err != nil {
		s.metrics.RecordLoginAttempt(string(role), false)
		return nil, err
	}

	// The password is checked first so a disabled account is only revealed
	// to its owner.
	ok, err := auth.CheckPassword(acc.PasswordHash, password)
	if err != nil {
		return nil, domain.NewInternalError(err)
	}
	if !ok {
		s.metrics.RecordLoginAttempt(string(role), false)
		return nil, domain.NewValidationError("invalid credentials")
	}
	if !acc.IsEnabled {
		s.metrics.RecordLoginAttempt(string(role), false)
		return nil, domain.NewForbiddenError("account is disabled")
	}
	s.metrics.RecordLoginAttempt(string(role), true)
	return acc, nil
}

// Get returns the account with id if it has role.
func (s *Service) Get(ctx context.Context, role account.Role, id string) (*account.Account, error) {
	acc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != "" && acc.Role != role {
		return nil, domain.NewNotFoundError("account")
	}
	return acc, nil
}

// Profile is an account with its rank and the accounts it referred.
type Profile struct {
	Account   *account.Account   `json:"account"`
	Rank      *int               `json:"rank,omitempty"`
	Referrals []*account.Account `json:"referrals"`
}

// Profile loads acc's rank and referees. Rank is only set for roles that
// issue codes.
func (s *Service) Profile(ctx context.Context, acc *account.Account) (*Profile, error) {
	desc, err := s.roles.Lookup(acc.Role)
	if err != nil {
		return nil, err
	}
	p := &Profile{Account: acc, Referrals: []*account.Account{}}
	if !desc.IssuesCode || acc.ReferralCode == "" {
		return p, nil
	}

	rank, err := s.ranker.Rank(ctx, acc.Role, acc.ReferralCount)
	if err != nil {
		return nil, err
	}
	p.Rank = &rank

	if refereeRole, ok := s.roles.RefereeRole(acc.Role); ok {
		referrals, err := s.repo.ListReferredBy(ctx, refereeRole, acc.ReferralCode)
		if err != nil {
			return nil, err
		}
		if referrals != nil {
			p.Referrals = referrals
		}
	}
	return p, nil
}

// Rank returns the competition rank of count among enabled accounts of role.
func (s *Service) Rank(ctx context.Context, role account.Role, count int) (int, error) {
	return s.ranker.Rank(ctx, role, count)
}

// List returns accounts of a role for administration.
func (s *Service) List(ctx context.Context, f account.ListFilter) ([]*account.Account, error) {
	if _, err := s.roles.Lookup(f.Role); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, f)
}

// Disable soft-deletes an account. The referrer's count is not decremented
// here; the next reconciliation drops the disabled referee from it.
func (s *Service) Disable(ctx context.Context, acc *account.Account) error {
	if err := s.repo.SoftDelete(ctx, acc.ID); err != nil {
		return err
	}
	acc.IsEnabled = false
	s.board.Invalidate(ctx, acc.Role)
	s.log.Info("account disabled", "account_id", acc.ID, "role", acc.Role)
	return nil
}

// ValidateCode reports whether code currently credits a referrer for a
// signup of refereeRole.
func (s *Service) ValidateCode(ctx context.Context, refereeRole account.Role, code string) (*account.Account, error) {
	desc, err := s.roles.Lookup(refereeRole)
	if err != nil {
		return nil, err
	}
	if !desc.Referable() {
		return nil, domain.NewValidationError(fmt.Sprintf("role %q does not accept referral codes", refereeRole))
	}
	if IsDirect(code) {
		return nil, domain.NewNotFoundError("referral code")
	}
	referrer, err := s.repo.GetByReferralCode(ctx, desc.ReferrerRole, NormalizeCode(code))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("referral code")
		}
		return nil, err
	}
	if !referrer.IsEnabled {
		return nil, domain.NewNotFoundError("referral code")
	}
	return referrer, nil
}
