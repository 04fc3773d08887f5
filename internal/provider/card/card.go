// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package card implements the card rail on Stripe PaymentIntents.
//
// Initiate creates a PaymentIntent carrying the donation id in its metadata
// and hands the client secret back as the client action. The donor's
// browser confirms the card with Stripe directly; the server learns the
// outcome from payment_intent.* webhooks or by retrieving the intent during
// reconciliation.
package card

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
)

// SignatureHeader carries Stripe's webhook signature.
const SignatureHeader = "Stripe-Signature"

// Webhook event types the rail acts on.
const (
	EventSucceeded = "payment_intent.succeeded"
	EventFailed    = "payment_intent.payment_failed"
	EventCanceled  = "payment_intent.canceled"
	EventRefunded  = "charge.refunded"
)

// Metadata keys written on every PaymentIntent.
const (
	metaDonationID = "donation_id"
	metaEventID    = "event_id"
)

// Config configures the Stripe client.
type Config struct {
	SecretKey     string
	WebhookSecret string
	Retry         provider.RetryPolicy
	Breaker       provider.BreakerConfig
}

// paymentIntents is the subset of stripe.Client.V1PaymentIntents in use.
type paymentIntents interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

// Adapter is the Stripe-backed card rail.
type Adapter struct {
	intents       paymentIntents
	webhookSecret string
	caller        *provider.Caller
}

// New creates the card adapter.
func New(cfg Config) *Adapter {
	sc := stripe.NewClient(cfg.SecretKey)
	return newAdapter(sc.V1PaymentIntents, cfg)
}

func newAdapter(intents paymentIntents, cfg Config) *Adapter {
	return &Adapter{
		intents:       intents,
		webhookSecret: cfg.WebhookSecret,
		caller:        provider.NewCaller(models.RailCard, cfg.Retry, cfg.Breaker),
	}
}

// Rail implements provider.Adapter.
func (a *Adapter) Rail() string { return models.RailCard }

// Initiate creates a PaymentIntent. The intake idempotency key is forwarded
// as Stripe's Idempotency-Key so a resumed intake reuses the same intent.
func (a *Adapter) Initiate(ctx context.Context, amount int64, currency string, meta provider.Metadata) (*provider.Handle, error) {
	pi, err := provider.Call(ctx, a.caller, "initiate", func(ctx context.Context) (*stripe.PaymentIntent, error) {
		params := &stripe.PaymentIntentCreateParams{
			Amount:   stripe.Int64(amount),
			Currency: stripe.String(strings.ToLower(currency)),
			AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
				Enabled: stripe.Bool(true),
			},
		}
		if meta.Description != "" {
			params.Description = stripe.String(meta.Description)
		}
		params.AddMetadata(metaDonationID, meta.DonationID)
		params.AddMetadata(metaEventID, meta.EventID)
		if meta.IdempotencyKey != "" {
			params.SetIdempotencyKey("donation-" + meta.IdempotencyKey)
		}

		pi, err := a.intents.Create(ctx, params)
		if err != nil {
			return nil, classify(err)
		}
		return pi, nil
	})
	if err != nil {
		return nil, err
	}

	return &provider.Handle{
		Rail:         models.RailCard,
		Ref:          pi.ID,
		ClientAction: pi.ClientSecret,
		Settled:      pi.Status == stripe.PaymentIntentStatusSucceeded,
	}, nil
}

// Confirm retrieves the intent and maps its status.
func (a *Adapter) Confirm(ctx context.Context, h *provider.Handle) (provider.Outcome, error) {
	return provider.Call(ctx, a.caller, "confirm", func(ctx context.Context) (provider.Outcome, error) {
		pi, err := a.intents.Retrieve(ctx, h.Ref, &stripe.PaymentIntentRetrieveParams{})
		if err != nil {
			// A missing intent will never confirm. Any other failure, a
			// revoked API key included, says nothing about the payment.
			if isMissing(err) {
				return provider.OutcomeDeclined, nil
			}
			err = classify(err)
			if errors.Is(err, provider.ErrProviderRejected) {
				err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
			}
			return provider.OutcomePending, err
		}
		return outcomeFor(pi), nil
	})
}

// VerifyCallback checks the Stripe-Signature header and decodes the event.
// Event types the rail does not act on verify successfully with
// OutcomePending so the webhook is acknowledged.
func (a *Adapter) VerifyCallback(_ context.Context, raw []byte, signature string) (*provider.VerifiedEvent, error) {
	event, err := webhook.ConstructEventWithOptions(raw, signature, a.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrSignatureInvalid, err)
	}

	ev := &provider.VerifiedEvent{Rail: models.RailCard, Type: string(event.Type)}

	switch string(event.Type) {
	case EventSucceeded, EventFailed, EventCanceled:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.Ref = pi.ID
		ev.DonationID = pi.Metadata[metaDonationID]
		switch string(event.Type) {
		case EventSucceeded:
			ev.Outcome = provider.OutcomeConfirmed
		case EventCanceled:
			ev.Outcome = provider.OutcomeDeclined
		default:
			// A failed attempt sends the intent back to
			// requires_payment_method and the donor may retry.
			ev.Outcome = provider.OutcomePending
		}

	case EventRefunded:
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			ev.Ref = ch.PaymentIntent.ID
		}
		ev.DonationID = ch.Metadata[metaDonationID]
		// Partial refunds leave the donation counted.
		ev.Refunded = ch.Refunded
	}

	return ev, nil
}

func outcomeFor(pi *stripe.PaymentIntent) provider.Outcome {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return provider.OutcomeConfirmed
	case stripe.PaymentIntentStatusCanceled:
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}

func isMissing(err error) bool {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
}

// classify maps Stripe errors onto the provider taxonomy: card and request
// errors are permanent, rate limits, 5xx and transport failures are not.
func classify(err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}

	if se.HTTPStatusCode >= http.StatusInternalServerError || se.HTTPStatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: stripe %d: %s", provider.ErrProviderUnavailable, se.HTTPStatusCode, se.Msg)
	}

	switch se.Type {
	case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeIdempotency:
		return &provider.RejectedError{Rail: models.RailCard, Code: string(se.Code), Reason: se.Msg}
	default:
		return fmt.Errorf("%w: stripe %s: %s", provider.ErrProviderUnavailable, se.Type, se.Msg)
	}
}
