// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/store"
)

// IdempotencyHeader carries the client's idempotency token.
const IdempotencyHeader = "Idempotency-Key"

// maxDraftBytes bounds an intake request body.
const maxDraftBytes = 16 << 10

// SubmitDonation handles POST /api/v1/donations.
//
// 201 with the summary for a new donation (SUCCEEDED, or PENDING with a
// client action), 409 with the original summary for a reused key.
func (h *Handler) SubmitDonation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDraftBytes)

	var draft models.DonationDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "request body must be a donation JSON object")
		return
	}

	token := r.Header.Get(IdempotencyHeader)
	staff := auth.StaffFromContext(r.Context())

	summary, err := h.coordinator.SubmitDonation(r.Context(), draft, token, staff)
	if err != nil {
		writeDomainError(w, r, err, summary)
		return
	}
	respondSuccess(w, r, http.StatusCreated, summary)
}

// GetDonation handles GET /api/v1/donations/{id}. The public summary never
// contains the donor's email or an anonymous donor's name.
func (h *Handler) GetDonation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.coordinator.Donation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, summary)
}

// GetDonationRecord handles GET /api/v1/donations/{id}/record, the full
// ledger record for staff.
func (h *Handler) GetDonationRecord(w http.ResponseWriter, r *http.Request) {
	d, err := h.ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, d)
}

// EventTotals handles GET /api/v1/events/{id}/totals.
func (h *Handler) EventTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := store.Totals(r.Context(), h.store, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, totals)
}

// ReviewItem is one donation awaiting manual review.
type ReviewItem struct {
	*models.DonationSummary
	RecordedBy string    `json:"recorded_by,omitempty"`
	FlaggedAt  time.Time `json:"flagged_at"`
}

// Review handles GET /api/v1/review: donations forced FAILED after
// confirmation retries ran out.
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	flagged, err := h.ledger.Flagged(r.Context())
	if err != nil {
		writeDomainError(w, r, err, nil)
		return
	}

	items := make([]ReviewItem, 0, len(flagged))
	for _, d := range flagged {
		items = append(items, ReviewItem{
			DonationSummary: d.Summary(),
			RecordedBy:      d.RecordedBy,
			FlaggedAt:       d.UpdatedAt,
		})
	}
	respondSuccess(w, r, http.StatusOK, items)
}
