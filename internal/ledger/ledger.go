// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package ledger owns the authoritative donation records and their status
// state machine.
//
// Allowed moves are PENDING->SUCCEEDED, PENDING->FAILED and
// SUCCEEDED->REFUNDED. Every mutation of a single donation runs under that
// donation's lock, so a provider callback and a reconciliation poll racing on
// the same id apply at most one change between them. Different ids never
// contend.
//
// Each applied transition emits exactly one ChangeMessage through the
// Notifier while the donation lock is still held, which keeps notifications
// for one donation in the order their transitions were applied.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tallyboard/internal/keylock"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/store"
)

// Notifier receives one change message per applied transition.
type Notifier interface {
	Notify(ctx context.Context, msg models.ChangeMessage) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg models.ChangeMessage) error

func (f NotifierFunc) Notify(ctx context.Context, msg models.ChangeMessage) error {
	return f(ctx, msg)
}

// Result is the outcome of Transition.
type Result struct {
	// Donation is a copy of the record after the call.
	Donation *models.Donation

	// Applied is false when the call was an idempotent repeat.
	Applied bool

	// From is the status before the call.
	From models.DonationStatus
}

// Ledger mutates donations. The zero value is not usable; call New.
type Ledger struct {
	store    store.DonationStore
	notifier Notifier
	locks    keylock.Map
	now      func() time.Time
}

// New creates a ledger over s. A nil notifier discards notifications.
func New(s store.DonationStore, n Notifier) *Ledger {
	if n == nil {
		n = NotifierFunc(func(context.Context, models.ChangeMessage) error { return nil })
	}
	return &Ledger{
		store:    s,
		notifier: n,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create records a new PENDING donation. An empty id gets a fresh uuid.
// Creation is not a transition and broadcasts nothing.
func (l *Ledger) Create(ctx context.Context, id string, draft models.DonationDraft, recordedBy string) (*models.Donation, error) {
	if id == "" {
		id = uuid.NewString()
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	if _, err := l.store.LoadDonation(ctx, id); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load donation %s: %w", id, err)
	}

	now := l.now()
	d := &models.Donation{
		ID:         id,
		EventID:    draft.EventID,
		Amount:     draft.Amount,
		Currency:   strings.ToUpper(draft.Currency),
		DonorName:  strings.TrimSpace(draft.DonorName),
		DonorEmail: strings.TrimSpace(draft.DonorEmail),
		Anonymous:  draft.Anonymous,
		Message:    draft.Message,
		Method:     draft.Method,
		Status:     models.StatusPending,
		RecordedBy: recordedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.store.SaveDonation(ctx, d); err != nil {
		return nil, fmt.Errorf("save donation %s: %w", id, err)
	}

	logging.Ctx(ctx).Debug().
		Str("donation_id", id).
		Str("event_id", d.EventID).
		Str("method", string(d.Method)).
		Msg("donation created")

	return d.Clone(), nil
}

// BindReference attaches the provider reference to a PENDING donation.
// Binding the same reference again is a no-op; a different one is refused.
func (l *Ledger) BindReference(ctx context.Context, id, ref string) (*models.Donation, error) {
	if ref == "" {
		return nil, fmt.Errorf("bind reference for %s: empty reference", id)
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	d, err := l.store.LoadDonation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load donation %s: %w", id, err)
	}

	switch {
	case d.ExternalRef == ref:
		return d, nil
	case d.ExternalRef != "":
		return nil, &TransitionError{ID: id, From: d.Status, To: d.Status, Reason: "external reference already bound"}
	case d.Status != models.StatusPending:
		return nil, &TransitionError{ID: id, From: d.Status, To: d.Status, Reason: "reference can only be bound while pending"}
	}

	d.ExternalRef = ref
	d.UpdatedAt = l.now()
	if err := l.store.SaveDonation(ctx, d); err != nil {
		return nil, fmt.Errorf("bind reference for %s: %w", id, err)
	}
	return d.Clone(), nil
}

// Transition moves donation id to target. ref, when non-empty, must match the
// bound reference or is bound as part of the move.
//
// Repeating the current status is an idempotent no-op reported with
// Applied=false. Forbidden moves return a *TransitionError and leave the
// record untouched.
func (l *Ledger) Transition(ctx context.Context, id string, target models.DonationStatus, ref string) (Result, error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	d, err := l.store.LoadDonation(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load donation %s: %w", id, err)
	}
	from := d.Status

	if ref != "" && d.ExternalRef != "" && ref != d.ExternalRef {
		l.reject(ctx, d, target, "external reference mismatch")
		return Result{}, &TransitionError{ID: id, From: from, To: target, Reason: "external reference mismatch"}
	}

	if from == target {
		metrics.LedgerIdempotentTransitions.Inc()
		return Result{Donation: d, Applied: false, From: from}, nil
	}

	if !models.CanTransition(from, target) {
		l.reject(ctx, d, target, "")
		return Result{}, &TransitionError{ID: id, From: from, To: target}
	}

	d.Status = target
	if ref != "" && d.ExternalRef == "" {
		d.ExternalRef = ref
	}
	d.UpdatedAt = l.now()

	if err := l.store.SaveDonation(ctx, d); err != nil {
		return Result{}, fmt.Errorf("save donation %s: %w", id, err)
	}
	metrics.RecordTransition(string(from), string(target))

	logging.Ctx(ctx).Info().
		Str("donation_id", id).
		Str("event_id", d.EventID).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("donation status changed")

	if err := l.notifier.Notify(ctx, d.ChangeMessage()); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("donation_id", id).Msg("change notification failed")
	}

	return Result{Donation: d.Clone(), Applied: true, From: from}, nil
}

func (l *Ledger) reject(ctx context.Context, d *models.Donation, target models.DonationStatus, reason string) {
	metrics.RecordInvalidTransition(string(d.Status), string(target))
	logging.Ctx(ctx).Warn().
		Str("donation_id", d.ID).
		Str("from", string(d.Status)).
		Str("to", string(target)).
		Str("reason", reason).
		Msg("transition rejected")
}

// Flag marks a donation for manual review without changing its status.
func (l *Ledger) Flag(ctx context.Context, id, reason string) (*models.Donation, error) {
	unlock := l.locks.Lock(id)
	defer unlock()

	d, err := l.store.LoadDonation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load donation %s: %w", id, err)
	}
	if d.ReviewFlag == reason {
		return d, nil
	}
	d.ReviewFlag = reason
	d.UpdatedAt = l.now()
	if err := l.store.SaveDonation(ctx, d); err != nil {
		return nil, fmt.Errorf("flag donation %s: %w", id, err)
	}
	return d.Clone(), nil
}

// Get returns a copy of donation id.
func (l *Ledger) Get(ctx context.Context, id string) (*models.Donation, error) {
	return l.store.LoadDonation(ctx, id)
}

// FindByReference returns the donation bound to ref on rail.
func (l *Ledger) FindByReference(ctx context.Context, rail, ref string) (*models.Donation, error) {
	return l.store.FindByReference(ctx, rail, ref)
}

// ListByStatus returns every donation currently in status.
func (l *Ledger) ListByStatus(ctx context.Context, status models.DonationStatus) ([]*models.Donation, error) {
	return l.store.ListByStatus(ctx, status)
}

// Flagged returns FAILED donations awaiting manual review.
func (l *Ledger) Flagged(ctx context.Context) ([]*models.Donation, error) {
	failed, err := l.store.ListByStatus(ctx, models.StatusFailed)
	if err != nil {
		return nil, err
	}
	out := failed[:0]
	for _, d := range failed {
		if d.ReviewFlag != "" {
			out = append(out, d)
		}
	}
	return out, nil
}
