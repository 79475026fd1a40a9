package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/robfig/cron/v3"
)

// ReconcileRoles are the referrer roles reconciled by the nightly job.
var ReconcileRoles = []account.Role{account.RoleUser, account.RoleCollege}

// Reconciler runs one reconciliation pass for a referrer role.
type Reconciler interface {
	Run(ctx context.Context, referrerRole account.Role) (*referral.Report, error)
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron       *cron.Cron
	reconciler Reconciler
	log        logger.Logger
	timeout    time.Duration
}

// NewCronManager creates a new cron manager
func NewCronManager(reconciler Reconciler, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Discard()
	}

	return &CronManager{
		cron:       cron.New(),
		reconciler: reconciler,
		log:        log.With("component", "cron"),
		timeout:    30 * time.Minute,
	}
}

// SetupJobs registers the reconciliation job on schedule (standard 5-field
// cron spec). An empty schedule registers nothing.
func (cm *CronManager) SetupJobs(schedule string) error {
	if schedule == "" {
		cm.log.Info("reconciliation schedule disabled")
		return nil
	}

	_, err := cm.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cm.timeout)
		defer cancel()

		if err := cm.ReconcileAll(ctx); err != nil {
			cm.log.Error("scheduled reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	cm.log.Info("cron jobs configured", "reconcile_schedule", schedule)
	return nil
}

// AddFunc registers an extra job.
func (cm *CronManager) AddFunc(spec string, fn func()) error {
	_, err := cm.cron.AddFunc(spec, fn)
	return err
}

// ReconcileAll reconciles every referrer role in turn. A role that cannot run
// does not stop the others; the errors are joined.
func (cm *CronManager) ReconcileAll(ctx context.Context) error {
	var errs []error
	for _, role := range ReconcileRoles {
		report, err := cm.reconciler.Run(ctx, role)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", role, err))
			continue
		}
		cm.log.Info("reconciliation completed",
			"role", role,
			"processed", report.Processed,
			"changed", report.Changed,
			"failed", report.Failed,
		)
	}
	return errors.Join(errs...)
}

// Entries returns the number of registered jobs.
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.log.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (cm *CronManager) Stop() context.Context {
	cm.log.Info("stopping cron scheduler")
	return cm.cron.Stop()
}
