// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package provider defines the capability set every payment rail implements
// and the resilience helpers (bounded retry, circuit breaker) adapters use
// when they call out to a remote payment network.
//
// Rails live in subpackages: card (Stripe PaymentIntents), wallet (REST
// wallet processor) and manual (cash, check and other staff-recorded
// payments). The settlement coordinator only sees the Adapter interface and
// picks an implementation through a Registry.
package provider

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProviderRejected is a terminal business failure such as a declined card.
	ErrProviderRejected = errors.New("provider rejected payment")

	// ErrProviderUnavailable is a transient infrastructure failure. Callers may
	// retry later; the donation stays PENDING.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrSignatureInvalid means an inbound callback failed verification.
	ErrSignatureInvalid = errors.New("callback signature invalid")

	// ErrUnknownRail is returned by the registry for a rail nobody registered.
	ErrUnknownRail = errors.New("unknown payment rail")
)

// RejectedError carries the provider's decline reason. It matches
// ErrProviderRejected with errors.Is.
type RejectedError struct {
	Rail   string
	Code   string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s rejected payment (%s): %s", ErrProviderRejected, e.Rail, e.Code, e.Reason)
	}
	return fmt.Sprintf("%s: %s rejected payment: %s", ErrProviderRejected, e.Rail, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrProviderRejected
}

// Outcome is the provider's answer to a confirmation poll.
type Outcome int

const (
	// OutcomePending means the provider has not decided yet.
	OutcomePending Outcome = iota
	OutcomeConfirmed
	OutcomeDeclined
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeDeclined:
		return "declined"
	default:
		return "pending"
	}
}

// Metadata travels with a payment intent to the provider and comes back in
// callbacks, which lets a callback find its donation even before the
// provider reference has been recorded.
type Metadata struct {
	DonationID     string
	EventID        string
	Method         string
	IdempotencyKey string
	Description    string
}

// Handle identifies a payment at the provider.
type Handle struct {
	Rail string
	Ref  string

	// ClientAction is what a donor front-end needs to finish the payment
	// (a client secret or a redirect URL). Empty for manual payments.
	ClientAction string

	// Settled is true when the rail settled synchronously during Initiate.
	Settled bool
}

// VerifiedEvent is a callback that passed signature verification.
type VerifiedEvent struct {
	Rail       string
	Type       string
	Ref        string
	DonationID string
	Outcome    Outcome

	// Refunded marks a post-success reversal.
	Refunded bool
}

// Adapter is the capability set of one payment rail.
type Adapter interface {
	// Rail names the rail, e.g. "card".
	Rail() string

	// Initiate creates the payment at the provider. It fails with
	// ErrProviderRejected or ErrProviderUnavailable.
	Initiate(ctx context.Context, amount int64, currency string, meta Metadata) (*Handle, error)

	// Confirm polls the provider. It fails with ErrProviderUnavailable.
	Confirm(ctx context.Context, h *Handle) (Outcome, error)

	// VerifyCallback authenticates and decodes a raw callback body. It fails
	// with ErrSignatureInvalid.
	VerifyCallback(ctx context.Context, raw []byte, signature string) (*VerifiedEvent, error)
}
