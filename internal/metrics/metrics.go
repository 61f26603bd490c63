package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/role"
)

// Metrics holds all Prometheus collectors for the teamhub server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Authorization.
	PermissionDenialsTotal *prometheus.CounterVec
	RoleRecomputesTotal    *prometheus.CounterVec
	RoleTransitionsTotal   *prometheus.CounterVec

	RateLimitRejectionsTotal *prometheus.CounterVec

	// Access audit collector.
	AuditFlushesTotal *prometheus.CounterVec
	AuditRecordsTotal prometheus.Counter

	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	NotificationsPublishedTotal *prometheus.CounterVec

	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamhub_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		HTTPResponseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamhub_http_response_size_bytes",
			Help:    "HTTP response size in bytes.",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6),
		}, []string{"method", "path_pattern"}),

		PermissionDenialsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_permission_denials_total",
			Help: "Total number of permission denials by predicate.",
		}, []string{"predicate", "action"}),

		RoleRecomputesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_role_recomputes_total",
			Help: "Total number of role recomputations by result.",
		}, []string{"result"}),

		RoleTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_role_transitions_total",
			Help: "Total number of role changes by source and target role.",
		}, []string{"from", "to"}),

		RateLimitRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}, []string{"limiter_type"}),

		AuditFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_audit_flushes_total",
			Help: "Total number of access audit flushes.",
		}, []string{"status"}),

		AuditRecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teamhub_audit_records_total",
			Help: "Total number of access audit records flushed.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		NotificationsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamhub_notifications_published_total",
			Help: "Total number of notifications pushed to live subscribers.",
		}, []string{"status"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "teamhub_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.PermissionDenialsTotal,
		m.RoleRecomputesTotal,
		m.RoleTransitionsTotal,
		m.RateLimitRejectionsTotal,
		m.AuditFlushesTotal,
		m.AuditRecordsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.NotificationsPublishedTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector exposes the database pool read through stats.
func (m *Metrics) RegisterDBPoolCollector(stats PoolStatsFunc) {
	m.registry.MustRegister(NewDBPoolCollector(stats))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, pattern string, status, bytes int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pattern).Observe(elapsed.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, pattern).Observe(float64(bytes))
}

// ObserveDecision counts denials. It has the shape of an authz observer.
func (m *Metrics) ObserveDecision(_ context.Context, d authz.Decision) {
	if d.Allowed {
		return
	}
	m.PermissionDenialsTotal.WithLabelValues(d.Predicate, d.Action).Inc()
}

// ObserveRecompute records a role recomputation. It has the shape of a
// role.ObserveFunc.
func (m *Metrics) ObserveRecompute(_ string, from, to role.Role, err error) {
	switch {
	case err != nil:
		m.RoleRecomputesTotal.WithLabelValues("error").Inc()
	case from == to:
		m.RoleRecomputesTotal.WithLabelValues("unchanged").Inc()
	default:
		m.RoleRecomputesTotal.WithLabelValues("changed").Inc()
		m.RoleTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	}
}

// ObserveAuditFlush records an access audit flush. It has the shape of an
// audit.FlushFunc.
func (m *Metrics) ObserveAuditFlush(count int, err error) {
	if err != nil {
		m.AuditFlushesTotal.WithLabelValues("error").Inc()
		return
	}
	m.AuditFlushesTotal.WithLabelValues("success").Inc()
	m.AuditRecordsTotal.Add(float64(count))
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection(limiterType string) {
	m.RateLimitRejectionsTotal.WithLabelValues(limiterType).Inc()
}

// IncNotificationPublished counts a live notification push.
func (m *Metrics) IncNotificationPublished(err error) {
	if err != nil {
		m.NotificationsPublishedTotal.WithLabelValues("error").Inc()
		return
	}
	m.NotificationsPublishedTotal.WithLabelValues("success").Inc()
}
