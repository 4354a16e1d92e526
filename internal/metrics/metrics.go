// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authentication

	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_login_attempts_total",
			Help: "Login attempts by mode and outcome",
		},
		[]string{"mode", "outcome"}, // mode: owner, multi; outcome: success or error code
	)

	LoginDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reelgate_login_duration_seconds",
			Help:    "Time spent verifying a login, including password hashing",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
	)

	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_token_verifications_total",
			Help: "Access token and signature verifications by credential kind and outcome",
		},
		[]string{"kind", "outcome"}, // kind: access, signature
	)

	RefreshExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_refresh_exchanges_total",
			Help: "Refresh token exchanges by outcome",
		},
		[]string{"outcome"},
	)

	RefreshFamiliesRevoked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelgate_refresh_families_revoked_total",
			Help: "Refresh token families revoked after reuse of a rotated token",
		},
	)

	IdentityCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_identity_cache_lookups_total",
			Help: "Identity cache lookups by result",
		},
		[]string{"result"}, // hit, miss
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_cache_invalidations_total",
			Help: "Identity cache invalidations by reason",
		},
		[]string{"reason"}, // logout, password_change, config_save, migration, ban
	)

	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelgate_account_lockouts_total",
			Help: "Accounts locked after repeated login failures",
		},
	)

	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_registrations_total",
			Help: "Registration requests by outcome",
		},
		[]string{"outcome"}, // created, pending, approved, rejected, closed, invalid
	)

	// Authorization

	AuthorizationDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_authorization_denials_total",
			Help: "Requests rejected by the route guard by required role and status",
		},
		[]string{"required_role", "status"},
	)

	PolicyDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_policy_decisions_total",
			Help: "Route policy enforcement decisions",
		},
		[]string{"decision", "cached"},
	)

	MigrationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_legacy_migration_runs_total",
			Help: "Legacy permission migration runs by outcome",
		},
		[]string{"outcome"}, // changed, unchanged, failed
	)

	ConfigVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelgate_config_version",
			Help: "Version of the active permission configuration snapshot",
		},
	)

	// Box client guard

	TVBoxDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_tvbox_decisions_total",
			Help: "Box-client guard decisions by outcome",
		},
		[]string{"outcome"}, // allowed, user_agent, token, rate_limited, device_capacity, error
	)

	TVBoxDeviceEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reelgate_tvbox_device_evictions_total",
			Help: "Devices evicted by re-registration",
		},
	)

	// Backends

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reelgate_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	// HTTP API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelgate_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelgate_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reelgate_api_active_requests",
			Help: "Number of in-flight API requests",
		},
	)
)

// RecordLogin records a login attempt. outcome is "success" or an error code.
func RecordLogin(mode, outcome string, duration time.Duration) {
	LoginAttempts.WithLabelValues(mode, outcome).Inc()
	LoginDuration.Observe(duration.Seconds())
}

// RecordTokenVerification records one credential check.
func RecordTokenVerification(kind string, ok bool) {
	TokenVerifications.WithLabelValues(kind, outcomeLabel(ok)).Inc()
}

// RecordRefresh records one refresh exchange.
func RecordRefresh(outcome string) {
	RefreshExchanges.WithLabelValues(outcome).Inc()
}

// RecordIdentityCache records an identity cache lookup.
func RecordIdentityCache(hit bool) {
	if hit {
		IdentityCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	IdentityCacheLookups.WithLabelValues("miss").Inc()
}

// RecordInvalidation records an identity cache invalidation.
func RecordInvalidation(reason string) {
	CacheInvalidations.WithLabelValues(reason).Inc()
}

// RecordDenial records a route guard rejection.
func RecordDenial(requiredRole string, status int) {
	AuthorizationDenials.WithLabelValues(requiredRole, statusLabel(status)).Inc()
}

// RecordPolicyDecision records a casbin decision.
func RecordPolicyDecision(allowed, cached bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	c := "false"
	if cached {
		c = "true"
	}
	PolicyDecisions.WithLabelValues(decision, c).Inc()
}

// RecordTVBoxDecision records a box-client guard outcome.
func RecordTVBoxDecision(outcome string) {
	TVBoxDecisions.WithLabelValues(outcome).Inc()
}

// RecordAPIRequest records a finished HTTP request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest moves the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func statusLabel(status int) string {
	switch status {
	case 401:
		return "401"
	case 403:
		return "403"
	default:
		return "other"
	}
}
