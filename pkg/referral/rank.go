package referral

import (
	"context"

	"github.com/jordanlanch/refertrack/pkg/account"
)

// Ranker computes competition ranks from stored counts.
type Ranker struct {
	repo *account.Repository
}

// NewRanker creates a ranker.
func NewRanker(repo *account.Repository) *Ranker {
	return &Ranker{repo: repo}
}

// Rank returns 1 + the number of enabled accounts of role with a strictly
// greater count. Ties share a rank.
func (r *Ranker) Rank(ctx context.Context, role account.Role, count int) (int, error) {
	greater, err := r.repo.CountGreater(ctx, role, count)
	if err != nil {
		return 0, err
	}
	return greater + 1, nil
}

// CompetitionRanks assigns 1,2,2,4 style ranks to counts sorted descending.
func CompetitionRanks(counts []int) []int {
	ranks := make([]int, len(counts))
	for i, c := range counts {
		if i > 0 && c == counts[i-1] {
			ranks[i] = ranks[i-1]
			continue
		}
		ranks[i] = i + 1
	}
	return ranks
}
