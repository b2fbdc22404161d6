package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Counter metrics
var (
	// TenantResolutionCounter counts tenant context lookups by outcome:
	// "hit", "miss" (served from storage), "unresolved" or "cache_error"
	TenantResolutionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_context_resolutions_total",
			Help: "Total number of tenant context resolutions",
		},
		[]string{"result"},
	)

	// MembershipOperationCounter counts membership mutations
	MembershipOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_membership_operations_total",
			Help: "Total number of membership operations",
		},
		[]string{"operation", "result"},
	)

	// AuthErrorCounter counts rejected requests by reason
	AuthErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_auth_errors_total",
			Help: "Total number of authentication and authorization errors",
		},
		[]string{"type"}, // "missing_token", "invalid_token", "session_revoked", "forbidden", ...
	)

	// TenantErrorCounter counts scoping and invariant failures
	TenantErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_errors_total",
			Help: "Total number of tenant isolation errors",
		},
		[]string{"error_type"},
	)

	// SessionRevocationCounter counts sessions revoked after membership removal
	SessionRevocationCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_sessions_revoked_total",
			Help: "Total number of sessions revoked by membership removal",
		},
	)

	// SessionRevocationFailureCounter counts cascades that could not revoke sessions
	SessionRevocationFailureCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_session_revocation_failures_total",
			Help: "Total number of failed session revocation cascades",
		},
	)

	// RevocationPublishCounter counts session-revoked notifications by outcome
	RevocationPublishCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_revocation_events_published_total",
			Help: "Total number of session revocation events published",
		},
		[]string{"result"},
	)
)

// Histogram metrics
var (
	// DBOperationDuration records database operation durations
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tenant_service_info",
			Help: "Information about the tenant service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(TenantResolutionCounter)
	prometheus.MustRegister(MembershipOperationCounter)
	prometheus.MustRegister(TenantErrorCounter)
	prometheus.MustRegister(AuthErrorCounter)
	prometheus.MustRegister(SessionRevocationCounter)
	prometheus.MustRegister(SessionRevocationFailureCounter)
	prometheus.MustRegister(RevocationPublishCounter)

	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(InfoGauge)
	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// TrackDBOperation measures a database operation; call the result with the end time
func TrackDBOperation(operation string) func(time.Time) {
	startTime := time.Now()
	return func(endTime time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(endTime.Sub(startTime).Seconds())
	}
}

// RecordTenantResolution records the outcome of a tenant context lookup
func RecordTenantResolution(result string) {
	TenantResolutionCounter.With(prometheus.Labels{"result": result}).Inc()
}

// RecordMembershipOperation records a membership mutation and whether it succeeded
func RecordMembershipOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	MembershipOperationCounter.With(prometheus.Labels{"operation": operation, "result": result}).Inc()
}

// RecordAuthError records an authentication or authorization error by type
func RecordAuthError(errorType string) {
	AuthErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// RecordTenantError records a tenant isolation error
func RecordTenantError(errorType string) {
	TenantErrorCounter.With(prometheus.Labels{"error_type": errorType}).Inc()
}

// RecordSessionRevocations records sessions revoked by one cascade
func RecordSessionRevocations(count int64) {
	SessionRevocationCounter.Add(float64(count))
}

// RecordSessionRevocationFailure records a cascade that failed
func RecordSessionRevocationFailure() {
	SessionRevocationFailureCounter.Inc()
}

// RecordRevocationPublish records the outcome of a notification publish
func RecordRevocationPublish(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	RevocationPublishCounter.With(prometheus.Labels{"result": result}).Inc()
}
