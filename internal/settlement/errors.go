// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package settlement

import (
	"errors"
	"fmt"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/validation"
)

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("donation rejected by validation")

	// ErrDuplicateSuppressed is matched by every *DuplicateError.
	ErrDuplicateSuppressed = errors.New("duplicate donation suppressed")

	// ErrMalformedCallback wraps a callback the rail could not decode.
	ErrMalformedCallback = errors.New("malformed provider callback")
)

// ValidationError lists the fields that made a draft unacceptable.
type ValidationError struct {
	Fields *validation.RequestValidationError
}

func newValidationError(field, tag, message string) *ValidationError {
	return &ValidationError{Fields: validation.NewRequestValidationError(field, tag, message)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Fields.Error())
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DuplicateError reports that an idempotency token was already used. The
// original donation is returned unchanged.
type DuplicateError struct {
	DonationID string
	Summary    *models.DonationSummary
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: token already used by donation %s", ErrDuplicateSuppressed, e.DonationID)
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateSuppressed
}
