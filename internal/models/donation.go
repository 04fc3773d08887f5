// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package models

import (
	"time"
)

// PaymentMethod tags how a donation was paid.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodWallet PaymentMethod = "wallet"
	MethodCash   PaymentMethod = "cash"
	MethodCheck  PaymentMethod = "check"
	MethodOther  PaymentMethod = "other"
)

// Payment rails. Several methods share the manual rail.
const (
	RailCard   = "card"
	RailWallet = "wallet"
	RailManual = "manual"
)

// Rail returns the payment rail that settles this method.
func (m PaymentMethod) Rail() string {
	switch m {
	case MethodCard:
		return RailCard
	case MethodWallet:
		return RailWallet
	default:
		return RailManual
	}
}

// IsManual reports whether the method is recorded by staff rather than charged
// through an external network.
func (m PaymentMethod) IsManual() bool {
	return m.Rail() == RailManual
}

// DonationStatus is the ledger state of a donation.
type DonationStatus string

const (
	StatusPending   DonationStatus = "PENDING"
	StatusSucceeded DonationStatus = "SUCCEEDED"
	StatusFailed    DonationStatus = "FAILED"
	StatusRefunded  DonationStatus = "REFUNDED"
)

var allowedTransitions = map[DonationStatus][]DonationStatus{
	StatusPending:   {StatusSucceeded, StatusFailed},
	StatusSucceeded: {StatusRefunded},
}

// CanTransition reports whether from -> to is one of
// PENDING->SUCCEEDED, PENDING->FAILED or SUCCEEDED->REFUNDED.
func CanTransition(from, to DonationStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further confirmation work is expected.
// SUCCEEDED is terminal for settlement even though a refund may follow.
func (s DonationStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusRefunded
}

// Valid reports whether s is a known status.
func (s DonationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSucceeded, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

// Donation is the authoritative record. Only the ledger mutates it.
type Donation struct {
	ID          string         `json:"id"`
	EventID     string         `json:"event_id"`
	Amount      int64          `json:"amount"`
	Currency    string         `json:"currency"`
	DonorName   string         `json:"donor_name,omitempty"`
	DonorEmail  string         `json:"donor_email,omitempty"`
	Anonymous   bool           `json:"anonymous"`
	Message     string         `json:"message,omitempty"`
	Method      PaymentMethod  `json:"method"`
	ExternalRef string         `json:"external_ref,omitempty"`
	Status      DonationStatus `json:"status"`
	RecordedBy  string         `json:"recorded_by,omitempty"`
	ReviewFlag  string         `json:"review_flag,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PublicDonorName returns the donor name as it may be shown publicly, or nil
// when the donor asked to stay anonymous or gave no name.
func (d *Donation) PublicDonorName() *string {
	if d.Anonymous || d.DonorName == "" {
		return nil
	}
	name := d.DonorName
	return &name
}

// Clone returns a copy safe to hand out of the ledger.
func (d *Donation) Clone() *Donation {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// DonationDraft is the intake request for a new donation.
type DonationDraft struct {
	EventID    string        `json:"event_id" validate:"required,max=64"`
	Amount     int64         `json:"amount" validate:"required,gt=0"`
	Currency   string        `json:"currency" validate:"required,iso4217"`
	Method     PaymentMethod `json:"method" validate:"required,oneof=card wallet cash check other"`
	DonorName  string        `json:"donor_name,omitempty" validate:"max=200"`
	DonorEmail string        `json:"donor_email,omitempty" validate:"omitempty,email,max=254"`
	Anonymous  bool          `json:"anonymous,omitempty"`
	Message    string        `json:"message,omitempty" validate:"max=500"`
}

// DonationSummary is returned by intake and the donation lookup endpoint.
type DonationSummary struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	Amount       int64          `json:"amount"`
	Currency     string         `json:"currency"`
	DonorName    *string        `json:"donor_name"`
	Method       PaymentMethod  `json:"method"`
	Status       DonationStatus `json:"status"`
	ExternalRef  string         `json:"external_ref,omitempty"`
	ClientAction string         `json:"client_action,omitempty"`
	ReviewFlag   string         `json:"review_flag,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Summary builds the caller-facing view of d.
func (d *Donation) Summary() *DonationSummary {
	return &DonationSummary{
		ID:          d.ID,
		EventID:     d.EventID,
		Amount:      d.Amount,
		Currency:    d.Currency,
		DonorName:   d.PublicDonorName(),
		Method:      d.Method,
		Status:      d.Status,
		ExternalRef: d.ExternalRef,
		ReviewFlag:  d.ReviewFlag,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// ChangeMessage is the payload pushed to dashboards for every applied ledger
// transition. Dashboards depend on this exact field set.
type ChangeMessage struct {
	DonationID string         `json:"donation_id"`
	EventID    string         `json:"event_id"`
	Amount     int64          `json:"amount"`
	Currency   string         `json:"currency"`
	DonorName  *string        `json:"donor_name"`
	Status     DonationStatus `json:"status"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ChangeMessage builds the broadcast payload for d's current state.
func (d *Donation) ChangeMessage() ChangeMessage {
	return ChangeMessage{
		DonationID: d.ID,
		EventID:    d.EventID,
		Amount:     d.Amount,
		Currency:   d.Currency,
		DonorName:  d.PublicDonorName(),
		Status:     d.Status,
		OccurredAt: d.UpdatedAt,
	}
}
