// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareAuthenticate(t *testing.T) {
	m := newTestManager(t)
	token, _, err := m.GenerateToken("bo", RoleStaff)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		manager    *JWTManager
		header     string
		wantStatus int
		wantStaff  string
	}{
		{"anonymous", m, "", http.StatusOK, ""},
		{"valid bearer", m, "Bearer " + token, http.StatusOK, "bo"},
		{"lowercase scheme", m, "bearer " + token, http.StatusOK, "bo"},
		{"basic scheme", m, "Basic Ym86cHc=", http.StatusUnauthorized, ""},
		{"empty bearer", m, "Bearer ", http.StatusUnauthorized, ""},
		{"invalid token", m, "Bearer nope", http.StatusUnauthorized, ""},
		{"staff login disabled", nil, "Bearer " + token, http.StatusUnauthorized, ""},
		{"anonymous with login disabled", nil, "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotStaff string
			called := false
			h := NewMiddleware(tt.manager).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotStaff = StaffFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/donations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("next called = %v", called)
			}
			if gotStaff != tt.wantStaff {
				t.Errorf("staff = %q, want %q", gotStaff, tt.wantStaff)
			}
		})
	}
}

func TestMiddlewareRequireStaff(t *testing.T) {
	m := NewMiddleware(newTestManager(t))
	h := m.RequireStaff(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("missing WWW-Authenticate challenge")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(WithClaims(req.Context(), &Claims{Username: "bo", Role: RoleStaff}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("staff status = %d, want 204", rec.Code)
	}
}
