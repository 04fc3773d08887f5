// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package auth identifies staff on API requests.

Staff log in with a username and password checked against bcrypt hashes
from configuration (StaffDirectory) and receive an HS256 JWT (JWTManager).
Donors are anonymous; the middleware only attaches claims when a bearer token
is sent:

	mw := auth.NewMiddleware(jwtManager)
	r.Use(mw.Authenticate)
	r.With(mw.RequireStaff).Get("/api/v1/auth/me", h.Me)

Handlers read the identity with ClaimsFromContext or StaffFromContext. Role
checks beyond "is staff" live in package authz.
*/
package auth
