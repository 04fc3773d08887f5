// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package store persists donations, provider references, idempotency tokens
// and event configuration.
//
// Two implementations share the same contract: Memory for tests and
// single-process development, and Badger for durable deployments. Both are
// strongly consistent for a single donation id; callers that need to serialize
// read-modify-write cycles (the ledger) hold their own per-id lock.
package store

import (
	"context"
	"errors"

	"github.com/tomtom215/tallyboard/internal/models"
)

var (
	// ErrNotFound is returned when a donation, reference, token or event is unknown.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateReference is returned when a provider reference is already
	// owned by a different donation on the same rail.
	ErrDuplicateReference = errors.New("store: external reference already in use")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store: closed")
)

// DonationStore is the persistence surface the ledger depends on.
type DonationStore interface {
	LoadDonation(ctx context.Context, id string) (*models.Donation, error)

	// SaveDonation upserts d and maintains the rail/reference index.
	SaveDonation(ctx context.Context, d *models.Donation) error

	FindByReference(ctx context.Context, rail, ref string) (*models.Donation, error)

	ListByStatus(ctx context.Context, status models.DonationStatus) ([]*models.Donation, error)

	ListByEvent(ctx context.Context, eventID string) ([]*models.Donation, error)
}

// EventStore resolves per event configuration.
type EventStore interface {
	LoadEventConfig(ctx context.Context, eventID string) (*models.EventConfig, error)
	SaveEventConfig(ctx context.Context, cfg *models.EventConfig) error
}

// TokenStore maps client idempotency tokens to the donation they created.
type TokenStore interface {
	// ReserveToken binds token to donationID if the token is new and returns
	// "". If the token is already bound it returns the existing donation id
	// and leaves the binding unchanged.
	ReserveToken(ctx context.Context, token, donationID string) (existing string, err error)
}

// Store is everything the server needs from persistence.
type Store interface {
	DonationStore
	EventStore
	TokenStore
	Close() error
}

// Totals computes the dashboard catch-up view for one event.
func Totals(ctx context.Context, s Store, eventID string) (*models.EventTotals, error) {
	cfg, err := s.LoadEventConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}
	donations, err := s.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	totals := &models.EventTotals{
		EventID:    cfg.ID,
		Currency:   cfg.Currency,
		GoalAmount: cfg.GoalAmount,
	}
	for _, d := range donations {
		switch d.Status {
		case models.StatusSucceeded:
			totals.Raised += d.Amount
			totals.Count++
		case models.StatusRefunded:
			totals.Refunded += d.Amount
		}
	}
	return totals, nil
}

// SeedEvents writes every configured event. Existing entries are overwritten
// so the config file stays authoritative for currency and goal.
func SeedEvents(ctx context.Context, s EventStore, events []models.EventConfig) error {
	for i := range events {
		if err := s.SaveEventConfig(ctx, &events[i]); err != nil {
			return err
		}
	}
	return nil
}
