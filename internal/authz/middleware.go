// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package authz

import (
	"net/http"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/logging"
)

// Middleware enforces the policy on staff routes.
type Middleware struct {
	enforcer *Enforcer
}

// NewMiddleware creates a new authorization middleware.
func NewMiddleware(enforcer *Enforcer) *Middleware {
	return &Middleware{enforcer: enforcer}
}

// Authorize allows the request when the caller's role may perform action on
// object. object is the route pattern as written in the policy, e.g.
// /api/v1/review. Anonymous callers get 401, denied roles 403.
func (m *Middleware) Authorize(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "Unauthorized: staff token required", http.StatusUnauthorized)
				return
			}

			allowed, err := m.enforcer.Enforce(claims.Role, object, action)
			if err != nil {
				logging.Error().Err(err).Str("object", object).Msg("Authorization error")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			RecordAuthzDecision(claims.Role, object, action, allowed)

			if !allowed {
				logging.Warn().
					Str("staff", claims.Username).
					Str("role", claims.Role).
					Str("object", object).
					Str("action", action).
					Msg("Authorization denied")
				http.Error(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ActionFor maps HTTP methods to policy actions.
func ActionFor(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ActionRead
	default:
		return ActionWrite
	}
}
