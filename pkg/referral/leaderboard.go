package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/cache"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/metrics"
)

// Entry is one public leaderboard row.
type Entry struct {
	Rank          int    `json:"rank"`
	Name          string `json:"name"`
	Organization  string `json:"organization,omitempty"`
	ReferralCount int    `json:"referralCount"`
}

// Cache is the subset of the redis client the leaderboard uses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Leaderboard projects stored counts into ranked public entries.
type Leaderboard struct {
	repo    *account.Repository
	roles   account.Roles
	cache   Cache
	ttl     time.Duration
	log     logger.Logger
	metrics *metrics.Metrics
}

// LeaderboardOptions configures NewLeaderboard. Cache may be nil.
type LeaderboardOptions struct {
	Cache    Cache
	CacheTTL time.Duration
	Logger   logger.Logger
	Metrics  *metrics.Metrics
}

// NewLeaderboard creates a projector.
func NewLeaderboard(repo *account.Repository, roles account.Roles, opts LeaderboardOptions) *Leaderboard {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Leaderboard{
		repo:    repo,
		roles:   roles,
		cache:   opts.Cache,
		ttl:     opts.CacheTTL,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
}

// CacheKeyPrefix namespaces cached leaderboards in redis.
const CacheKeyPrefix = "leaderboard:"

func cacheKey(role account.Role) string {
	return CacheKeyPrefix + string(role)
}

// Get returns the leaderboard for a code-issuing role. Disabled accounts
// never appear.
func (b *Leaderboard) Get(ctx context.Context, role account.Role) ([]Entry, error) {
	desc, err := b.roles.Lookup(role)
	if err != nil {
		return nil, err
	}
	if !desc.IssuesCode {
		return nil, domain.NewValidationError(fmt.Sprintf("role %q has no leaderboard", role))
	}

	if b.cache != nil && b.ttl > 0 {
		var cached []Entry
		err := b.cache.GetJSON(ctx, cacheKey(role), &cached)
		switch {
		case err == nil:
			b.metrics.RecordCacheHit("leaderboard")
			return cached, nil
		case errors.Is(err, cache.ErrMiss):
			b.metrics.RecordCacheMiss("leaderboard")
		default:
			b.log.Warn("leaderboard cache read failed", "role", role, "error", err)
		}
	}

	rows, err := b.repo.LeaderboardRows(ctx, role)
	if err != nil {
		return nil, err
	}
	entries := Project(rows)

	if b.cache != nil && b.ttl > 0 {
		if err := b.cache.SetJSON(ctx, cacheKey(role), entries, b.ttl); err != nil {
			b.log.Warn("leaderboard cache write failed", "role", role, "error", err)
		}
	}
	return entries, nil
}

// Invalidate drops the cached leaderboard for role.
func (b *Leaderboard) Invalidate(ctx context.Context, role account.Role) {
	if b == nil || b.cache == nil {
		return
	}
	if err := b.cache.Delete(ctx, cacheKey(role)); err != nil {
		b.log.Warn("leaderboard cache invalidation failed", "role", role, "error", err)
	}
}

// Project turns accounts already ordered by count into ranked entries,
// dropping disabled accounts and every private field.
func Project(accounts []*account.Account) []Entry {
	entries := make([]Entry, 0, len(accounts))
	counts := make([]int, 0, len(accounts))
	for _, a := range accounts {
		if !a.IsEnabled {
			continue
		}
		entries = append(entries, Entry{
			Name:          a.Name,
			Organization:  a.Organization(),
			ReferralCount: a.ReferralCount,
		})
		counts = append(counts, a.ReferralCount)
	}
	for i, r := range CompetitionRanks(counts) {
		entries[i].Rank = r
	}
	return entries
}
