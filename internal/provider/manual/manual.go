// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package manual implements the rail for cash, check and other payments that
// staff record in person. The money is already in hand, so every payment
// settles during Initiate.
package manual

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
)

// RefPrefix starts every manual reference.
const RefPrefix = "manual-"

// Adapter is the manual rail. The zero value is ready to use.
type Adapter struct{}

// New returns the manual adapter.
func New() *Adapter { return &Adapter{} }

// Rail implements provider.Adapter.
func (*Adapter) Rail() string { return models.RailManual }

// Initiate returns a settled handle with a fresh local reference.
func (*Adapter) Initiate(ctx context.Context, amount int64, currency string, _ provider.Metadata) (*provider.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	if amount <= 0 {
		return nil, &provider.RejectedError{Rail: models.RailManual, Code: "invalid_amount", Reason: "amount must be positive"}
	}
	return &provider.Handle{
		Rail:    models.RailManual,
		Ref:     RefPrefix + uuid.NewString(),
		Settled: true,
	}, nil
}

// Confirm always reports the payment as confirmed.
func (*Adapter) Confirm(context.Context, *provider.Handle) (provider.Outcome, error) {
	return provider.OutcomeConfirmed, nil
}

// VerifyCallback rejects everything; nobody calls back for cash.
func (*Adapter) VerifyCallback(context.Context, []byte, string) (*provider.VerifiedEvent, error) {
	return nil, fmt.Errorf("%w: manual rail has no callbacks", provider.ErrSignatureInvalid)
}
