// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/middleware"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/settlement"
)

// Error codes carried in APIError.Code.
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeProviderRejected    = "PROVIDER_REJECTED"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeDuplicate           = "DUPLICATE_SUPPRESSED"
	ErrCodeSignatureInvalid    = "SIGNATURE_INVALID"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeAuthDisabled        = "AUTH_DISABLED"
	ErrCodeNotReady            = "NOT_READY"
	ErrCodeRateLimited         = "TOO_MANY_REQUESTS"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// retryAfterSeconds is sent with 503 so clients back off before resubmitting
// with the same idempotency key.
const retryAfterSeconds = 5

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *models.APIResponse) {
	response.Metadata = models.Metadata{
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(r.Context()),
	}

	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	respondJSON(w, r, status, &models.APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	respondErrorWithData(w, r, status, &models.APIError{Code: code, Message: message}, nil)
}

// respondErrorWithData writes an error envelope that still carries a payload,
// e.g. the original summary of a suppressed duplicate.
func respondErrorWithData(w http.ResponseWriter, r *http.Request, status int, apiErr *models.APIError, data interface{}) {
	respondJSON(w, r, status, &models.APIResponse{Status: "error", Data: data, Error: apiErr})
}

// writeDomainError maps the settlement, provider and store error taxonomy to
// an HTTP response. summary is attached when the operation produced one.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error, summary *models.DonationSummary) {
	var verr *settlement.ValidationError
	var dup *settlement.DuplicateError

	// A typed nil inside the interface would still serialize as data: null.
	var data interface{}
	if summary != nil {
		data = summary
	}

	switch {
	case errors.As(err, &verr):
		respondErrorWithData(w, r, http.StatusBadRequest, &models.APIError{
			Code:    ErrCodeValidation,
			Message: verr.Fields.Error(),
			Details: verr.Fields.Details(),
		}, nil)

	case errors.As(err, &dup):
		respondErrorWithData(w, r, http.StatusConflict, &models.APIError{
			Code:    ErrCodeDuplicate,
			Message: "idempotency key already used",
			Details: map[string]interface{}{"donation_id": dup.DonationID},
		}, dup.Summary)

	case errors.Is(err, provider.ErrProviderRejected):
		apiErr := &models.APIError{Code: ErrCodeProviderRejected, Message: "payment was declined"}
		var rej *provider.RejectedError
		if errors.As(err, &rej) {
			apiErr.Message = rej.Reason
			if rej.Code != "" {
				apiErr.Details = map[string]interface{}{"decline_code": rej.Code}
			}
		}
		respondErrorWithData(w, r, http.StatusPaymentRequired, apiErr, data)

	case errors.Is(err, provider.ErrProviderUnavailable):
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		respondErrorWithData(w, r, http.StatusServiceUnavailable, &models.APIError{
			Code:    ErrCodeProviderUnavailable,
			Message: "payment provider unavailable, retry with the same idempotency key",
		}, data)

	case errors.Is(err, provider.ErrSignatureInvalid):
		respondError(w, r, http.StatusBadRequest, ErrCodeSignatureInvalid, "callback signature invalid")

	case errors.Is(err, settlement.ErrMalformedCallback):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "callback could not be decoded")

	case errors.Is(err, provider.ErrUnknownRail):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown payment rail")

	case errors.Is(err, ledger.ErrNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "not found")

	default:
		logging.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("API Error")
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}
