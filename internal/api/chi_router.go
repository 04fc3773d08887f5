// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/authz"
	"github.com/tomtom215/tallyboard/internal/middleware"
)

// Policy objects, as written in the casbin policy.
const (
	objectMe             = "/api/v1/auth/me"
	objectDonationRecord = "/api/v1/donations/:id/record"
	objectReview         = "/api/v1/review"
)

// Router sets up HTTP routes using the Chi router.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	authz         *authz.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. authMiddleware built with a nil JWT manager
// still lets anonymous requests through.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, authzMiddleware *authz.Middleware, chiMW *ChiMiddleware) *Router {
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{
		handler:       handler,
		auth:          authMiddleware,
		authz:         authzMiddleware,
		chiMiddleware: chiMW,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()
	h := router.handler

	// Applied to every route, in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight is answered

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	// Provider callbacks authenticate by signature, not staff token.
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitWebhook))
		r.Post("/{rail}", h.ProviderWebhook)
	})

	r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).Get("/api/v1/ws", h.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())
		r.Use(router.auth.Authenticate)

		r.With(router.chiMiddleware.RateLimitCustom(RateLimitLogin)).Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())

			r.Post("/donations", h.SubmitDonation)
			r.Get("/donations/{id}", h.GetDonation)
			r.Get("/events/{id}/totals", h.EventTotals)

			r.With(router.authz.Authorize(objectMe, authz.ActionRead)).Get("/auth/me", h.Me)
			r.With(router.authz.Authorize(objectDonationRecord, authz.ActionRead)).Get("/donations/{id}/record", h.GetDonationRecord)
			r.With(router.authz.Authorize(objectReview, authz.ActionRead)).Get("/review", h.Review)
		})
	})

	return r
}
