// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"context"
	"time"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/broadcast"
	"github.com/tomtom215/tallyboard/internal/config"
	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/settlement"
	"github.com/tomtom215/tallyboard/internal/store"
)

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Handler contains dependencies for API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct and constructor (this file)
//   - handlers_donations.go: intake, lookups, totals, review
//   - handlers_webhooks.go: provider callbacks
//   - handlers_websocket.go: dashboard subscriptions
//   - handlers_auth.go: staff login
//   - handlers_health.go: probes
type Handler struct {
	coordinator *settlement.Coordinator
	ledger      *ledger.Ledger
	store       store.Store
	gateway     *broadcast.Gateway
	config      *config.Config

	// Nil when no staff accounts are configured; login is then disabled.
	jwtManager *auth.JWTManager
	staff      *auth.StaffDirectory

	security  *logging.SecurityLogger
	readiness map[string]ReadinessCheck
	startTime time.Time
}

// Deps groups the collaborators NewHandler needs.
type Deps struct {
	Coordinator *settlement.Coordinator
	Ledger      *ledger.Ledger
	Store       store.Store
	Gateway     *broadcast.Gateway
	Config      *config.Config
	JWTManager  *auth.JWTManager
	Staff       *auth.StaffDirectory
}

// NewHandler creates the API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		coordinator: d.Coordinator,
		ledger:      d.Ledger,
		store:       d.Store,
		gateway:     d.Gateway,
		config:      d.Config,
		jwtManager:  d.JWTManager,
		staff:       d.Staff,
		security:    logging.NewSecurityLogger(),
		readiness:   make(map[string]ReadinessCheck),
		startTime:   time.Now(),
	}
}

// AddReadinessCheck registers a dependency probed by /api/v1/health/ready.
// Must be called before the server starts.
func (h *Handler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.readiness[name] = check
}
