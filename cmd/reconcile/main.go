// Command reconcile recomputes every stored referral count from the referee
// records and exits 0 when all accounts were reconciled, 1 when a run could
// not start and 2 when it finished with per-account failures.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jordanlanch/refertrack/config"
	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/cache"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/jobs"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitCannotRun = 1
	ExitPartial   = 2
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

func execute(args []string, out io.Writer) int {
	cfg := config.Load()
	code := ExitOK
	cmd := newRootCmd(cfg, out, &code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		return ExitCannotRun
	}
	return code
}

type options struct {
	roles       []string
	asJSON      bool
	driver      string
	databaseURL string
}

func newRootCmd(cfg *config.Config, out io.Writer, code *int) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Recompute referral counts from referee records",
		Long: `Recompute the referral count of every referrer account from the enabled
referee accounts that signed up with its code, overwriting drifted values.

Examples:
  reconcile                       # user and college roles
  reconcile --role college        # one role
  reconcile --json                # full per-account report`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			roles, err := parseRoles(opts.roles)
			if err != nil {
				return err
			}
			if opts.driver != "" {
				cfg.DatabaseDriver = opts.driver
			}
			if opts.databaseURL != "" {
				cfg.DatabaseURL = opts.databaseURL
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			*code = run(ctx, cfg, roles, out, opts.asJSON)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&opts.roles, "role", []string{string(account.RoleUser), string(account.RoleCollege)}, "Referrer roles to reconcile")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full reports as JSON")
	cmd.Flags().StringVar(&opts.driver, "driver", "", "Database driver (overrides DATABASE_DRIVER)")
	cmd.Flags().StringVar(&opts.databaseURL, "database-url", "", "Database URL (overrides DATABASE_URL)")
	return cmd
}

func parseRoles(raw []string) ([]account.Role, error) {
	roles := make([]account.Role, 0, len(raw))
	for _, r := range raw {
		role, err := account.ParseRole(r)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func run(ctx context.Context, cfg *config.Config, roles []account.Role, out io.Writer, asJSON bool) int {
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, Environment: cfg.SentryEnvironment}); err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		URL:    cfg.DatabaseURL,
		Pool:   database.DefaultPoolConfig(),
		SSL:    &database.SSLConfig{Mode: cfg.DBSSLMode},
		Logger: log,
	})
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		sentry.CaptureException(err)
		return ExitCannotRun
	}
	defer db.Close()

	// Without redis the counts are still fixed; cached boards expire on their own.
	var boardCache referral.Cache
	if redisClient, err := cache.NewClient(ctx, cfg.RedisURL); err != nil {
		log.Warn("redis unavailable, leaderboard cache will not be invalidated", "error", err)
	} else {
		defer redisClient.Close()
		boardCache = redisClient
	}

	rs := account.DefaultRoles()
	repo := account.NewRepository(db.DB)
	board := referral.NewLeaderboard(repo, rs, referral.LeaderboardOptions{Cache: boardCache, CacheTTL: cfg.LeaderboardCacheTTL, Logger: log})
	rec := referral.NewReconciler(repo, rs, board, log, nil)

	return reconcileRoles(ctx, rec, roles, out, asJSON)
}

// reconcileRoles runs each role and reports. It returns the process exit code.
func reconcileRoles(ctx context.Context, rec jobs.Reconciler, roles []account.Role, out io.Writer, asJSON bool) int {
	code := ExitOK
	var reports []*referral.Report

	for _, role := range roles {
		report, err := rec.Run(ctx, role)
		if err != nil {
			fmt.Fprintf(out, "%s: cannot run: %v\n", role, err)
			sentry.CaptureException(fmt.Errorf("reconcile %s: %w", role, err))
			code = ExitCannotRun
			continue
		}
		reports = append(reports, report)
		if report.Failed > 0 && code == ExitOK {
			code = ExitPartial
		}
		if !asJSON {
			fmt.Fprintf(out, "%s: processed=%d changed=%d unchanged=%d failed=%d\n",
				role, report.Processed, report.Changed, report.Unchanged, report.Failed)
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return ExitCannotRun
		}
	}
	return code
}
