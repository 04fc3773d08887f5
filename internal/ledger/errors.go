// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package ledger

import (
	"errors"
	"fmt"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/store"
)

var (
	// ErrInvalidTransition is returned for a move the state machine forbids
	// and for an attempt to rebind a different external reference.
	ErrInvalidTransition = errors.New("invalid donation status transition")

	// ErrNotFound aliases store.ErrNotFound so callers need not import store.
	ErrNotFound = store.ErrNotFound

	// ErrAlreadyExists is returned by Create for an id already in use.
	ErrAlreadyExists = errors.New("donation already exists")
)

// TransitionError describes a rejected change. It matches
// ErrInvalidTransition with errors.Is.
type TransitionError struct {
	ID     string
	From   models.DonationStatus
	To     models.DonationStatus
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("donation %s: %s -> %s: %s", e.ID, e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("donation %s: %s -> %s not allowed", e.ID, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
