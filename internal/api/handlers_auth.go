// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/validation"
)

// LoginRequest is the staff login body.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginResponse carries the bearer token for staff devices.
type LoginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffIdentity is the body of GET /api/v1/auth/me.
type StaffIdentity struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.jwtManager == nil || h.staff == nil {
		respondError(w, r, http.StatusForbidden, ErrCodeAuthDisabled, "no staff accounts are configured")
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondErrorWithData(w, r, http.StatusBadRequest, &models.APIError{
			Code:    ErrCodeValidation,
			Message: verr.Error(),
			Details: verr.Details(),
		}, nil)
		return
	}

	role, err := h.staff.Authenticate(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.security.LogLoginFailed(req.Username, r.RemoteAddr, "invalid credentials")
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid username or password")
		return
	}
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}

	token, expiresAt, err := h.jwtManager.GenerateToken(req.Username, role)
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}

	logging.Ctx(r.Context()).Info().Str("staff", req.Username).Str("role", role).Msg("staff logged in")
	respondSuccess(w, r, http.StatusOK, LoginResponse{
		Token:     token,
		Username:  req.Username,
		Role:      role,
		ExpiresAt: expiresAt,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "staff token required")
		return
	}
	identity := StaffIdentity{Username: claims.Username, Role: claims.Role}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	respondSuccess(w, r, http.StatusOK, identity)
}
