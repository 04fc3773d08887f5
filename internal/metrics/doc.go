// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package metrics provides the Prometheus collectors for Tallyboard.

Collectors are registered with the default registry through promauto and
exposed at /metrics:

	curl http://localhost:8420/metrics

# Available Metrics

Intake and ledger:
  - donation_submissions_total: intake outcomes (counter)
    Labels: method, outcome
  - ledger_transitions_total: applied status transitions (counter)
    Labels: from, to
  - ledger_invalid_transitions_total: rejected transitions (counter)
    Labels: from, to

Providers:
  - provider_calls_total / provider_call_duration_seconds
    Labels: rail, operation, result
  - circuit_breaker_state: 0 closed, 1 half-open, 2 open (gauge)
  - provider_callbacks_total: inbound callbacks by result (counter)

Reconciliation:
  - reconcile_attempts_total, reconcile_tracked_intakes, manual_review_flagged_total

Broadcast:
  - broadcast_published_total, broadcast_dropped_total, broadcast_sessions,
    broadcast_disconnects_total

Offline sync queue (staff device):
  - syncqueue_entries, syncqueue_drains_total, syncqueue_submissions_total

HTTP:
  - api_requests_total, api_request_duration_seconds, api_active_requests
*/
package metrics
