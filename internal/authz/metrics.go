// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AuthzDecisionsTotal counts authorization decisions. The resource label is
// the route pattern, never a concrete path.
var AuthzDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tallyboard_authz_decisions_total",
		Help: "Total number of authorization decisions",
	},
	[]string{"role", "resource", "action", "decision"},
)

// RecordAuthzDecision records one decision.
func RecordAuthzDecision(role, resource, action string, allowed bool) {
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	AuthzDecisionsTotal.WithLabelValues(role, resource, action, decision).Inc()
}
