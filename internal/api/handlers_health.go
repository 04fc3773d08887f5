// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/tallyboard/internal/models"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 2 * time.Second

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
// Field queue devices also probe it to detect connectivity.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 200 OK only if every registered dependency check passes.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.readiness))
	for name := range h.readiness {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := h.readiness[name](ctx)
		cancel()
		if err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	data := map[string]interface{}{
		"ready_to_serve":     ready,
		"checks":             checks,
		"dashboard_sessions": h.gateway.SessionCount(),
		"pending_intakes":    h.coordinator.Tracked(),
		"uptime":             time.Since(h.startTime).Seconds(),
	}

	if !ready {
		respondJSON(w, r, http.StatusServiceUnavailable, &models.APIResponse{
			Status: "not_ready",
			Data:   data,
			Error:  &models.APIError{Code: ErrCodeNotReady, Message: "a dependency is not ready"},
		})
		return
	}
	respondJSON(w, r, http.StatusOK, &models.APIResponse{Status: "ready", Data: data})
}
