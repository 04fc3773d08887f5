// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package settlement

import (
	"context"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

// ConfirmedHook is told once about every donation that reaches SUCCEEDED.
// It runs on its own goroutine and must not block settlement.
type ConfirmedHook interface {
	DonationConfirmed(ctx context.Context, d *models.Donation)
}

// ReviewSink receives donations forced to FAILED because the provider never
// answered. Staff reconcile them by hand.
type ReviewSink interface {
	Flagged(ctx context.Context, d *models.Donation, reason string)
}

type logHooks struct{}

func (logHooks) DonationConfirmed(_ context.Context, d *models.Donation) {
	logging.Debug().Str("donation_id", d.ID).Msg("donation confirmed")
}

func (logHooks) Flagged(_ context.Context, d *models.Donation, reason string) {
	logging.Warn().
		Str("donation_id", d.ID).
		Str("event_id", d.EventID).
		Str("external_ref", d.ExternalRef).
		Str("reason", reason).
		Msg("donation flagged for manual review")
}
