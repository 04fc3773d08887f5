// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package middleware provides infrastructure HTTP middleware shared by every
route: request ids, access logging and Prometheus instrumentation.

All three are plain func(http.Handler) http.Handler and are installed with
chi's r.Use. Authentication and authorization live in internal/auth and
internal/authz.

Middleware Stack:

	r.Use(middleware.RequestID)         // X-Request-ID + logging context
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)         // one zerolog line per request
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics) // api_requests_total{method,endpoint,status_code}
	r.Use(cors)
	r.Use(authMiddleware.Authenticate)

The Prometheus endpoint label is the chi route pattern, so it has to run
inside a chi router. Requests no route matched are labelled "unmatched".

Both AccessLog and PrometheusMetrics wrap the ResponseWriter with chi's
WrapResponseWriter, which keeps http.Hijacker for websocket upgrades.

See Also:

  - internal/auth: staff token middleware
  - internal/api: router and handlers
  - internal/metrics: Prometheus collectors
*/
package middleware
