// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package models defines the data structures shared across Tallyboard.

Key types:

  - Donation: the authoritative donation record owned by the ledger
  - DonationStatus: PENDING, SUCCEEDED, FAILED, REFUNDED and the allowed moves between them
  - DonationDraft: intake input, validated with go-playground/validator tags
  - DonationSummary: what intake returns to callers
  - ChangeMessage: the literal payload broadcast to dashboards
  - EventConfig / EventTotals: per event currency, goal and running total
  - APIResponse / APIError: the JSON envelope used by every HTTP endpoint

Amounts are always integer minor units (cents). Currency is an upper case ISO
4217 code fixed per event.
*/
package models
