// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package api provides the HTTP surface of the Tallyboard server.

Routes are registered on a chi router by Router.SetupChi:

	POST /api/v1/donations              intake (Idempotency-Key header required)
	GET  /api/v1/donations/{id}         public summary, for dashboard refetch
	GET  /api/v1/donations/{id}/record  full record, staff only
	GET  /api/v1/events/{id}/totals     confirmed total against goal
	POST /api/v1/webhooks/{rail}        provider callbacks (card, wallet)
	GET  /api/v1/ws?event_id=...        dashboard websocket
	POST /api/v1/auth/login             staff login, returns a bearer token
	GET  /api/v1/auth/me                caller's staff claims
	GET  /api/v1/review                 donations flagged for manual review (admin)
	GET  /api/v1/health/live            liveness
	GET  /api/v1/health/ready           readiness
	GET  /metrics                       Prometheus

Every JSON response uses the models.APIResponse envelope. Domain errors are
mapped to status codes in one place (writeDomainError):

	validation            400 VALIDATION_ERROR
	provider rejected     402 PROVIDER_REJECTED (data carries the FAILED summary)
	duplicate token       409 DUPLICATE_SUPPRESSED (data carries the original summary)
	provider unavailable  503 PROVIDER_UNAVAILABLE with Retry-After (data is PENDING)
	signature invalid     400 SIGNATURE_INVALID

Staff tokens are optional on most routes. auth.Middleware.Authenticate only
rejects a token that is present and invalid; routes that need staff apply
authz.Middleware.Authorize on top.
*/
package api
