// Command seed fills a database with demo colleges, their school students
// and referred users, all going through the normal signup path.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jordanlanch/refertrack/config"
	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/jordanlanch/refertrack/pkg/testdata"
	"github.com/spf13/cobra"
)

// Plan sizes a seeding run.
type Plan struct {
	Colleges           int
	StudentsPerCollege int
	Users              int
	// ReferralsPerUser users sign up with each earlier user's code.
	ReferralsPerUser int
	Password         string
	Seed             int64
}

// Summary counts what a run created.
type Summary struct {
	Colleges int
	Schools  int
	Users    int
	Linked   int
}

const maxAttempts = 5

func main() {
	cfg := config.Load()
	plan := Plan{}

	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Create demo accounts with referral links",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, plan, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&plan.Colleges, "colleges", 3, "Number of colleges")
	cmd.Flags().IntVar(&plan.StudentsPerCollege, "students", 4, "School students referred by each college")
	cmd.Flags().IntVar(&plan.Users, "users", 10, "Number of users")
	cmd.Flags().IntVar(&plan.ReferralsPerUser, "referrals", 2, "Users referred by each referring user")
	cmd.Flags().StringVar(&plan.Password, "password", "", "Password for every account (random when empty)")
	cmd.Flags().Int64Var(&plan.Seed, "seed", 0, "Random seed (0 picks one)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, plan Plan, out io.Writer) error {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		URL:    cfg.DatabaseURL,
		Pool:   database.DefaultPoolConfig(),
		SSL:    &database.SSLConfig{Mode: cfg.DBSSLMode},
		Logger: log,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	svc := referral.NewService(db.DB, referral.Options{
		PhoneRegion: cfg.DefaultPhoneZone,
		Logger:      log,
	})

	summary, err := seed(ctx, svc, testdata.NewGenerator(plan.Seed), plan)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created %d colleges, %d schools, %d users (%d referral links)\n",
		summary.Colleges, summary.Schools, summary.Users, summary.Linked)
	return nil
}

func seed(ctx context.Context, svc *referral.Service, gen *testdata.Generator, plan Plan) (*Summary, error) {
	summary := &Summary{}

	for i := 0; i < plan.Colleges; i++ {
		college, err := signup(ctx, svc, gen, plan, account.RoleCollege, "")
		if err != nil {
			return summary, err
		}
		summary.Colleges++

		for j := 0; j < plan.StudentsPerCollege; j++ {
			if _, err := signup(ctx, svc, gen, plan, account.RoleSchool, college.ReferralCode); err != nil {
				return summary, err
			}
			summary.Schools++
			summary.Linked++
		}
	}

	var referrers []*account.Account
	for summary.Users < plan.Users {
		code := ""
		// The first user of every group refers the rest.
		if len(referrers) > 0 && summary.Users%(plan.ReferralsPerUser+1) != 0 {
			code = referrers[len(referrers)-1].ReferralCode
		}
		u, err := signup(ctx, svc, gen, plan, account.RoleUser, code)
		if err != nil {
			return summary, err
		}
		summary.Users++
		if code == "" {
			referrers = append(referrers, u)
		} else {
			summary.Linked++
		}
	}
	return summary, nil
}

// signup retries with fresh fake data when a generated identifier collides.
func signup(ctx context.Context, svc *referral.Service, gen *testdata.Generator, plan Plan, role account.Role, code string) (*account.Account, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		in := gen.NewAccount(role, code)
		if plan.Password != "" {
			in.Password = plan.Password
		}
		acc, err := svc.Signup(ctx, in)
		if err == nil {
			return acc, nil
		}
		if !domain.IsConflict(err) {
			return nil, fmt.Errorf("seed %s: %w", role, err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("seed %s after %d attempts: %w", role, maxAttempts, lastErr)
}
