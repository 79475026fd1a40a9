package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/refertrack/config"
	"github.com/jordanlanch/refertrack/pkg/account"
	apierrors "github.com/jordanlanch/refertrack/pkg/api/errors"
	"github.com/jordanlanch/refertrack/pkg/api/handlers"
	"github.com/jordanlanch/refertrack/pkg/auth"
	"github.com/jordanlanch/refertrack/pkg/cache"
	"github.com/jordanlanch/refertrack/pkg/database"
	"github.com/jordanlanch/refertrack/pkg/jobs"
	"github.com/jordanlanch/refertrack/pkg/logger"
	"github.com/jordanlanch/refertrack/pkg/metrics"
	custommiddleware "github.com/jordanlanch/refertrack/pkg/middleware"
	"github.com/jordanlanch/refertrack/pkg/referral"
	"github.com/jordanlanch/refertrack/pkg/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	apierrors.SetLogger(log)

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("configuration loaded", "environment", cfg.APIEnvironment)

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			TracesSampleRate: 0.2,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Warn("failed to initialize sentry", "error", err)
		} else {
			log.Info("sentry initialized", "environment", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	redisClient, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// Counts may have been reconciled while the API was down.
	if n, err := redisClient.DeletePattern(ctx, referral.CacheKeyPrefix+"*"); err != nil {
		log.Warn("failed to clear cached leaderboards", "error", err)
	} else if n > 0 {
		log.Info("cleared cached leaderboards", "keys", n)
	}

	var videos storage.ObjectStore
	if cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.Config{
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: cfg.AWSSecretAccessKey,
			AWSRegion:          cfg.AWSRegion,
			Bucket:             cfg.S3Bucket,
			Endpoint:           cfg.S3Endpoint,
		})
		if err != nil {
			return fmt.Errorf("failed to configure object storage: %w", err)
		}
		videos = store
		log.Info("video storage configured", "bucket", cfg.S3Bucket)
	} else {
		log.Warn("AWS_BUCKET_NAME not set, video endpoints disabled")
	}

	m := metrics.New()
	roles := account.DefaultRoles().WithTokenTTLs(map[account.Role]time.Duration{
		account.RoleUser:    cfg.UserTokenTTL,
		account.RoleSchool:  cfg.SchoolTokenTTL,
		account.RoleCollege: cfg.CollegeTokenTTL,
		account.RoleAdmin:   cfg.AdminTokenTTL,
	})
	repo := account.NewRepository(db.DB)
	board := referral.NewLeaderboard(repo, roles, referral.LeaderboardOptions{
		Cache:    redisClient,
		CacheTTL: cfg.LeaderboardCacheTTL,
		Logger:   log,
		Metrics:  m,
	})
	svc := referral.NewService(db.DB, referral.Options{
		Roles:       roles,
		PhoneRegion: cfg.DefaultPhoneZone,
		Leaderboard: board,
		Logger:      log,
		Metrics:     m,
	})
	reconciler := referral.NewReconciler(repo, roles, board, log, m)

	cronManager := jobs.NewCronManager(reconciler, log)
	if err := cronManager.SetupJobs(cfg.ReconcileSchedule); err != nil {
		return err
	}
	if err := cronManager.AddFunc("@every 30s", func() {
		m.UpdateDBConnections(float64(db.Stats().InUse))
	}); err != nil {
		return err
	}
	cronManager.Start()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			args := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				args = append(args, "error", v.Error)
			}
			log.Info("request", args...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(m.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(middleware.Gzip())
	e.Use(middleware.Secure())
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dB", cfg.VideoMaxBytes+1<<20)))

	e.GET("/health", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status":   "unhealthy",
				"database": "down",
			})
		}
		if err := redisClient.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"status": "unhealthy",
				"cache":  "down",
			})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"status":   "healthy",
			"database": "up",
			"cache":    "up",
		})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	authLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	go authLimiter.RunCleanup(ctx, 3*time.Minute)

	v1 := e.Group("/api/v1", custommiddleware.APIVersionMiddleware(custommiddleware.CurrentAPIVersion))
	v1.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, custommiddleware.CurrentAPIVersion)
	})
	handlers.RegisterRoutes(v1, handlers.Deps{
		Service:     svc,
		Leaderboard: board,
		Reconciler:  reconciler,
		Issuer:      auth.NewTokenIssuer(cfg.JWTSecret, auth.NewTokenBlacklist(redisClient)),
		Videos:      videos,
		Logger:      log,
		Settings: handlers.Settings{
			CookieSecure:    cfg.CookieSecure,
			AdminSignupOpen: cfg.AdminSignupOpen,
			VideoURLTTL:     cfg.VideoURLTTL,
			VideoMaxBytes:   cfg.VideoMaxBytes,
		},
	}, authLimiter.Middleware())

	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	errCh := make(chan error, 1)
	go func() {
		log.Info("API starting", "address", address, "reconcile_schedule", cfg.ReconcileSchedule)
		if err := e.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	<-cronManager.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server gracefully stopped")
	return nil
}
