// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider/card"
	"github.com/tomtom215/tallyboard/internal/provider/wallet"
	"github.com/tomtom215/tallyboard/internal/settlement"
)

// maxCallbackBytes matches Stripe's documented webhook payload ceiling.
const maxCallbackBytes = 64 << 10

// signatureHeaders names the header each external rail signs callbacks with.
// The manual rail has no callbacks.
var signatureHeaders = map[string]string{
	models.RailCard:   card.SignatureHeader,
	models.RailWallet: wallet.SignatureHeader,
}

// ProviderWebhook handles POST /api/v1/webhooks/{rail}.
//
// 200 once the callback verified, whether or not it changed anything, so the
// provider stops redelivering. 400 when the signature does not verify.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	rail := chi.URLParam(r, "rail")
	header, ok := signatureHeaders[rail]
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown payment rail")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "callback body too large")
			return
		}
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "could not read callback body")
		return
	}

	ctx := settlement.WithCallbackSource(r.Context(), settlement.CallbackSource{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	})
	if err := h.coordinator.HandleCallback(ctx, rail, raw, r.Header.Get(header)); err != nil {
		writeDomainError(w, r, err, nil)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]bool{"received": true})
}
