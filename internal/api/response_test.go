// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/settlement"
)

func TestWriteDomainError(t *testing.T) {
	pending := &models.DonationSummary{ID: "d1", Status: models.StatusPending}

	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter bool
	}{
		{"duplicate", &settlement.DuplicateError{DonationID: "d1", Summary: pending}, http.StatusConflict, ErrCodeDuplicate, false},
		{"declined", &provider.RejectedError{Rail: "card", Code: "expired_card", Reason: "expired"}, http.StatusPaymentRequired, ErrCodeProviderRejected, false},
		{"wrapped unavailable", fmt.Errorf("initiate: %w", provider.ErrProviderUnavailable), http.StatusServiceUnavailable, ErrCodeProviderUnavailable, true},
		{"bad signature", provider.ErrSignatureInvalid, http.StatusBadRequest, ErrCodeSignatureInvalid, false},
		{"malformed callback", fmt.Errorf("%w: card: eof", settlement.ErrMalformedCallback), http.StatusBadRequest, ErrCodeBadRequest, false},
		{"unknown rail", provider.ErrUnknownRail, http.StatusNotFound, ErrCodeNotFound, false},
		{"not found", ledger.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, false},
		{"anything else", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/api/v1/donations", nil)

			writeDomainError(w, r, tt.err, pending)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			env := decode(t, w)
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", env.Error, tt.code)
			}
			if got := w.Header().Get("Retry-After") != ""; got != tt.retryAfter {
				t.Errorf("Retry-After present = %v, want %v", got, tt.retryAfter)
			}
			if w.Header().Get("Cache-Control") != "no-store" {
				t.Error("error responses must not be cached")
			}
		})
	}
}

func TestDeclineCodeInDetails(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/donations", nil)

	writeDomainError(w, r, &provider.RejectedError{Rail: "card", Code: "insufficient_funds", Reason: "Your card has insufficient funds."}, nil)

	env := decode(t, w)
	if env.Error.Message != "Your card has insufficient funds." {
		t.Errorf("message = %q", env.Error.Message)
	}
	if env.Error.Details["decline_code"] != "insufficient_funds" {
		t.Errorf("details = %v", env.Error.Details)
	}
	if len(env.Data) != 0 && string(env.Data) != "null" {
		t.Errorf("data = %s, want none", env.Data)
	}
}
