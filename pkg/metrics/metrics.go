package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Referral metrics
	Signups           *prometheus.CounterVec
	ReferralsLinked   *prometheus.CounterVec
	ReferralsRejected *prometheus.CounterVec
	LoginAttempts     *prometheus.CounterVec
	ReconcileAccounts *prometheus.CounterVec
	ReconcileDuration *prometheus.HistogramVec
	CodeCollisions    prometheus.Counter

	// Database metrics
	DBConnections prometheus.Gauge

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

// New registers all metrics with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers all metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPResponseSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000, 500000, 1000000},
			},
			[]string{"method", "path"},
		),

		Signups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signups_total",
				Help: "Total number of accounts registered",
			},
			[]string{"role"},
		),
		ReferralsLinked: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referrals_linked_total",
				Help: "Total number of signups credited to a referrer",
			},
			[]string{"role"}, // referrer role
		),
		ReferralsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referrals_rejected_total",
				Help: "Referral codes supplied at signup that credited nobody",
			},
			[]string{"role", "reason"}, // unknown, disabled, self
		),
		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"role", "status"},
		),
		ReconcileAccounts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconcile_accounts_total",
				Help: "Accounts processed by reconciliation runs",
			},
			[]string{"role", "outcome"}, // changed, unchanged, failed
		),
		ReconcileDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reconcile_duration_seconds",
				Help:    "Duration of reconciliation runs",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"role"},
		),
		CodeCollisions: f.NewCounter(prometheus.CounterOpts{
			Name: "referral_code_collisions_total",
			Help: "Generated referral codes rejected because they were already in use",
		}),

		DBConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		}),

		CacheHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			req := c.Request()
			path := c.Path() // route pattern, e.g. /api/v1/user/:id

			err := next(c)

			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(req.Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
			m.HTTPResponseSize.WithLabelValues(req.Method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// RecordSignup increments the signup counter
func (m *Metrics) RecordSignup(role string) {
	if m == nil {
		return
	}
	m.Signups.WithLabelValues(role).Inc()
}

// RecordReferralLinked counts a credited referral for the referrer role
func (m *Metrics) RecordReferralLinked(referrerRole string) {
	if m == nil {
		return
	}
	m.ReferralsLinked.WithLabelValues(referrerRole).Inc()
}

// RecordReferralRejected counts a supplied code that credited nobody
func (m *Metrics) RecordReferralRejected(refereeRole, reason string) {
	if m == nil {
		return
	}
	m.ReferralsRejected.WithLabelValues(refereeRole, reason).Inc()
}

// RecordLoginAttempt increments login attempts counter
func (m *Metrics) RecordLoginAttempt(role string, success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(role, status).Inc()
}

// RecordReconcile records the outcome counts of one reconciliation run
func (m *Metrics) RecordReconcile(role string, changed, unchanged, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileAccounts.WithLabelValues(role, "changed").Add(float64(changed))
	m.ReconcileAccounts.WithLabelValues(role, "unchanged").Add(float64(unchanged))
	m.ReconcileAccounts.WithLabelValues(role, "failed").Add(float64(failed))
	m.ReconcileDuration.WithLabelValues(role).Observe(duration.Seconds())
}

// RecordCodeCollision counts a generated code that was already taken
func (m *Metrics) RecordCodeCollision() {
	if m == nil {
		return
	}
	m.CodeCollisions.Inc()
}

// UpdateDBConnections updates active database connections gauge
func (m *Metrics) UpdateDBConnections(count float64) {
	if m == nil {
		return
	}
	m.DBConnections.Set(count)
}

// RecordCacheHit increments cache hits counter
func (m *Metrics) RecordCacheHit(cacheType string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss increments cache misses counter
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}
