package referral

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/metrics"
)

// ReportEntry is the before/after record of one reconciled account.
type ReportEntry struct {
	AccountID string `json:"accountId"`
	Name      string `json:"name"`
	Code      string `json:"referralCode"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
	Edges     int    `json:"edges"`
	Error     string `json:"error,omitempty"`
}

// Report summarizes one reconciliation run.
type Report struct {
	Role       account.Role  `json:"role"`
	Processed  int           `json:"processed"`
	Changed    int           `json:"changed"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	Entries    []ReportEntry `json:"entries"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
}

// Reconciler recomputes stored referral counts from the referee records.
type Reconciler struct {
	repo    *account.Repository
	roles   account.Roles
	board   *Leaderboard
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewReconciler creates a reconciler. board may be nil.
func NewReconciler(repo *account.Repository, roles account.Roles, board *Leaderboard, log logger.Logger, m *metrics.Metrics) *Reconciler {
	if log == nil {
		log = logger.Discard()
	}
	return &Reconciler{repo: repo, roles: roles, board: board, log: log.With("component", "reconcile"), metrics: m}
}

// Run overwrites the count of every account of referrerRole, enabled or not,
// with the number of enabled referees that signed up with its code.
//
// An error is returned only when the run cannot start. A failure on a single
// account is logged, counted in Report.Failed and the batch moves on.
func (r *Reconciler) Run(ctx context.Context, referrerRole account.Role) (*Report, error) {
	refereeRole, ok := r.roles.RefereeRole(referrerRole)
	if !ok {
		return nil, domain.NewValidationError(fmt.Sprintf("role %q has no referees to reconcile", referrerRole))
	}

	report := &Report{Role: referrerRole, StartedAt: time.Now().UTC()}

	accounts, err := r.repo.List(ctx, account.ListFilter{Role: referrerRole})
	if err != nil {
		return nil, fmt.Errorf("list %s accounts: %w", referrerRole, err)
	}

	for _, a := range accounts {
		if err := ctx.Err(); err != nil {
			r.finish(ctx, report)
			return report, err
		}

		entry := ReportEntry{AccountID: a.ID, Name: a.Name, Code: a.ReferralCode, Before: a.ReferralCount}
		report.Processed++

		truth := 0
		if a.ReferralCode != "" {
			truth, err = r.repo.CountMatchingReferees(ctx, refereeRole, a.ReferralCode)
			if err != nil {
				r.fail(report, entry, err)
				continue
			}
		}
		entry.After = truth

		// Edges only exist for links made through signup; a gap points at
		// referees imported or linked by hand.
		entry.Edges, err = r.repo.CountReferrals(ctx, a.ID)
		if err != nil {
			r.fail(report, entry, err)
			continue
		}

		if err := r.repo.SetReferralCount(ctx, a.ID, truth); err != nil {
			r.fail(report, entry, err)
			continue
		}

		if entry.Before != entry.After {
			report.Changed++
		} else {
			report.Unchanged++
		}
		report.Entries = append(report.Entries, entry)
		r.log.Info("referral count reconciled",
			"account_id", a.ID,
			"name", a.Name,
			"code", a.ReferralCode,
			"before", entry.Before,
			"after", entry.After,
			"edges", entry.Edges,
		)
	}

	r.finish(ctx, report)
	return report, nil
}

func (r *Reconciler) fail(report *Report, entry ReportEntry, err error) {
	report.Failed++
	entry.After = entry.Before
	entry.Error = err.Error()
	report.Entries = append(report.Entries, entry)
	r.log.Error("referral count reconciliation failed",
		"account_id", entry.AccountID,
		"code", entry.Code,
		"error", err,
	)
}

func (r *Reconciler) finish(ctx context.Context, report *Report) {
	report.FinishedAt = time.Now().UTC()
	r.board.Invalidate(context.WithoutCancel(ctx), report.Role)
	r.metrics.RecordReconcile(string(report.Role), report.Changed, report.Unchanged, report.Failed,
		report.FinishedAt.Sub(report.StartedAt))
	r.log.Info("reconciliation finished",
		"role", report.Role,
		"processed", report.Processed,
		"changed", report.Changed,
		"unchanged", report.Unchanged,
		"failed", report.Failed,
	)
}
