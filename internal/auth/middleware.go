// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomtom215/tallyboard/internal/logging"
)

type contextKey string

// ClaimsContextKey holds the *Claims of an authenticated staff request.
const ClaimsContextKey contextKey = "claims"

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, claims)
}

// ClaimsFromContext returns the staff claims, if the request carried a valid
// token.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok && claims != nil
}

// StaffFromContext returns the staff username or "".
func StaffFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Username
	}
	return ""
}

// Middleware authenticates staff bearer tokens.
type Middleware struct {
	jwtManager *JWTManager
	security   *logging.SecurityLogger
}

// NewMiddleware creates the staff authentication middleware. A nil manager
// means no staff accounts are configured: every bearer token is rejected.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{
		jwtManager: jwtManager,
		security:   logging.NewSecurityLogger(),
	}
}

// Authenticate attaches staff claims when a bearer token is present. Requests
// without a token pass through anonymously; a present but invalid token is
// rejected so a staff device never silently degrades to anonymous.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			m.security.LogStaffTokenInvalid(r.RemoteAddr, r.URL.Path, "malformed authorization header")
			http.Error(w, "Unauthorized: invalid authorization header", http.StatusUnauthorized)
			return
		}

		if m.jwtManager == nil {
			m.security.LogStaffTokenInvalid(r.RemoteAddr, r.URL.Path, "staff login disabled")
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			m.security.LogStaffTokenInvalid(r.RemoteAddr, r.URL.Path, err.Error())
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireStaff rejects requests that Authenticate left anonymous.
func (m *Middleware) RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tallyboard"`)
			http.Error(w, "Unauthorized: staff token required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
