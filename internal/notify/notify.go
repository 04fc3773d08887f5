// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package notify delivers receipts and review alerts to an external webhook,
// typically a mailer or a chat integration. Delivery is fire and forget: a
// failed POST is logged and never affects the donation.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

// Notification types.
const (
	TypeReceipt = "donation.receipt"
	TypeReview  = "donation.review"
)

// Config configures the webhook.
type Config struct {
	URL     string
	Secret  string
	Timeout time.Duration
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Type       string    `json:"type"`
	DonationID string    `json:"donation_id"`
	EventID    string    `json:"event_id"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	DonorName  *string   `json:"donor_name"`
	DonorEmail string    `json:"donor_email,omitempty"`
	Method     string    `json:"method"`
	Reason     string    `json:"reason,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// WebhookHook posts receipts for confirmed donations and alerts for
// donations flagged for review.
type WebhookHook struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookHook creates the hook. Returns nil when no URL is configured.
func NewWebhookHook(cfg Config) *WebhookHook {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookHook{url: cfg.URL, secret: cfg.Secret, client: &http.Client{Timeout: timeout}}
}

// DonationConfirmed posts a receipt.
func (h *WebhookHook) DonationConfirmed(ctx context.Context, d *models.Donation) {
	p := payloadFor(TypeReceipt, d)
	p.DonorEmail = d.DonorEmail
	if err := h.post(ctx, p); err != nil {
		logging.Warn().Err(err).Str("donation_id", d.ID).Msg("receipt webhook failed")
	}
}

// Flagged posts a review alert.
func (h *WebhookHook) Flagged(ctx context.Context, d *models.Donation, reason string) {
	p := payloadFor(TypeReview, d)
	p.Reason = reason
	if err := h.post(ctx, p); err != nil {
		logging.Warn().Err(err).Str("donation_id", d.ID).Msg("review webhook failed")
	}
}

func payloadFor(kind string, d *models.Donation) Payload {
	return Payload{
		Type:       kind,
		DonationID: d.ID,
		EventID:    d.EventID,
		Amount:     d.Amount,
		Currency:   d.Currency,
		DonorName:  d.PublicDonorName(),
		Method:     string(d.Method),
		SentAt:     time.Now().UTC(),
	}
}

func (h *WebhookHook) post(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.secret != "" {
		req.Header.Set("Authorization", "Bearer "+h.secret)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	logging.Debug().Str("type", p.Type).Str("donation_id", p.DonationID).Msg("notification delivered")
	return nil
}
