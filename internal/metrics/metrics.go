// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Intake
	DonationSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "donation_submissions_total",
			Help: "Donation intake attempts by payment method and outcome",
		},
		[]string{"method", "outcome"}, // succeeded, pending, rejected, unavailable, duplicate, invalid
	)

	// Ledger
	LedgerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transitions_total",
			Help: "Applied donation status transitions",
		},
		[]string{"from", "to"},
	)

	LedgerInvalidTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_invalid_transitions_total",
			Help: "Rejected donation status transitions",
		},
		[]string{"from", "to"},
	)

	LedgerIdempotentTransitions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_idempotent_transitions_total",
			Help: "Transitions absorbed as no-ops because they were already applied",
		},
	)

	// Providers
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_calls_total",
			Help: "Calls made to payment providers",
		},
		[]string{"rail", "operation", "result"},
	)

	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Payment provider call latency including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"rail", "operation"},
	)

	ProviderCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_callbacks_total",
			Help: "Inbound provider callbacks by result",
		},
		[]string{"rail", "result"}, // applied, noop, signature_invalid, unknown, error
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Reconciliation
	ReconcileAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_attempts_total",
			Help: "Reconciliation polls of stuck intakes",
		},
		[]string{"rail", "result"}, // confirmed, declined, unresolved, forced_failed
	)

	ReconcileTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconcile_tracked_intakes",
			Help: "Intakes awaiting provider confirmation",
		},
	)

	ManualReviewFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "manual_review_flagged_total",
			Help: "Donations forced to FAILED and flagged for manual review",
		},
	)

	// Broadcast
	BroadcastPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_published_total",
			Help: "Change messages accepted for fan-out",
		},
	)

	BroadcastDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_dropped_total",
			Help: "Change messages dropped before reaching a session",
		},
		[]string{"reason"}, // queue_full, closed
	)

	BroadcastSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_sessions",
			Help: "Connected dashboard sessions",
		},
	)

	BroadcastDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_disconnects_total",
			Help: "Dashboard sessions removed by reason",
		},
		[]string{"reason"}, // client, slow, shutdown
	)

	// Offline sync queue
	SyncQueueEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "syncqueue_entries",
			Help: "Offline queue entries by sync status",
		},
		[]string{"status"},
	)

	SyncQueueDrains = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncqueue_drains_total",
			Help: "Completed offline queue drains",
		},
		[]string{"result"}, // clean, partial, aborted
	)

	SyncQueueSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncqueue_submissions_total",
			Help: "Offline queue entry submissions by result",
		},
		[]string{"result"}, // synced, duplicate, failed
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordProviderCall records one logical provider operation (all retries included).
func RecordProviderCall(rail, operation, result string, duration time.Duration) {
	ProviderCalls.WithLabelValues(rail, operation, result).Inc()
	ProviderCallDuration.WithLabelValues(rail, operation).Observe(duration.Seconds())
}

// RecordTransition counts an applied ledger transition.
func RecordTransition(from, to string) {
	LedgerTransitions.WithLabelValues(from, to).Inc()
}

// RecordInvalidTransition counts a rejected ledger transition.
func RecordInvalidTransition(from, to string) {
	LedgerInvalidTransitions.WithLabelValues(from, to).Inc()
}

// SetSyncQueueCounts replaces the per-status entry gauges.
func SetSyncQueueCounts(pending, synced, failed int) {
	SyncQueueEntries.WithLabelValues("pending").Set(float64(pending))
	SyncQueueEntries.WithLabelValues("synced").Set(float64(synced))
	SyncQueueEntries.WithLabelValues("failed").Set(float64(failed))
}
