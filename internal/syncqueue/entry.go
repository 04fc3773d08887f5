// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package syncqueue

import (
	"time"

	"github.com/tomtom215/tallyboard/internal/models"
)

// SyncStatus is the local sync state of a queued donation.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSynced  SyncStatus = "synced"
	StatusFailed  SyncStatus = "failed"
)

// PendingDonation is a donation recorded on a staff device. Entries are
// never deleted; a synced entry is kept for audit.
type PendingDonation struct {
	ID  string `json:"id"`
	Seq uint64 `json:"seq"`

	// IdempotencyToken is generated once at enqueue and sent with every
	// submission of this entry.
	IdempotencyToken string `json:"idempotency_token"`

	EventID    string               `json:"event_id"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	Method     models.PaymentMethod `json:"method"`
	DonorName  string               `json:"donor_name,omitempty"`
	DonorEmail string               `json:"donor_email,omitempty"`
	Message    string               `json:"message,omitempty"`
	Anonymous  bool                 `json:"anonymous,omitempty"`
	RecordedBy string               `json:"recorded_by,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`

	Status        SyncStatus `json:"status"`
	LastError     string     `json:"last_error,omitempty"`
	Attempts      int        `json:"attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// ServerID is the donation id assigned by the server, once known.
	ServerID     string                `json:"server_id,omitempty"`
	ServerStatus models.DonationStatus `json:"server_status,omitempty"`
	SyncedAt     *time.Time            `json:"synced_at,omitempty"`
}

// Draft is the intake request body for this entry.
func (p *PendingDonation) Draft() models.DonationDraft {
	return models.DonationDraft{
		EventID:    p.EventID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		Method:     p.Method,
		DonorName:  p.DonorName,
		DonorEmail: p.DonorEmail,
		Anonymous:  p.Anonymous,
		Message:    p.Message,
	}
}

// Submittable reports whether a drain should send this entry.
func (p *PendingDonation) Submittable() bool {
	return p.Status == StatusPending || p.Status == StatusFailed
}

// Stats counts entries by status.
type Stats struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// Total returns the number of entries.
func (s Stats) Total() int {
	return s.Pending + s.Synced + s.Failed
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Attempted int `json:"attempted"`
	Synced    int `json:"synced"`
	Failed    int `json:"failed"`

	// Aborted is set when the context ended before every entry was tried.
	Aborted bool `json:"aborted,omitempty"`
}

func (r *DrainReport) result() string {
	switch {
	case r.Aborted:
		return "aborted"
	case r.Failed > 0:
		return "partial"
	default:
		return "clean"
	}
}
