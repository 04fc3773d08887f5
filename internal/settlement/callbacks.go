// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/store"
)

type callbackSourceKey struct{}

// CallbackSource describes who delivered a callback, for security logs.
type CallbackSource struct {
	RemoteAddr string
	UserAgent  string
}

// WithCallbackSource attaches src to ctx.
func WithCallbackSource(ctx context.Context, src CallbackSource) context.Context {
	return context.WithValue(ctx, callbackSourceKey{}, src)
}

func callbackSource(ctx context.Context) CallbackSource {
	src, _ := ctx.Value(callbackSourceKey{}).(CallbackSource)
	return src
}

// HandleCallback verifies and applies one provider callback.
//
// A callback that fails verification returns provider.ErrSignatureInvalid and
// changes nothing. Callbacks that verify but cannot be applied (unknown
// payment, a move the state machine forbids) are logged and acknowledged with
// a nil error so the provider stops redelivering them. A captured payment or
// refund reported for a FAILED donation leaves it FAILED and flags it for
// manual review.
func (c *Coordinator) HandleCallback(ctx context.Context, rail string, raw []byte, signature string) error {
	adapter, err := c.providers.ForRail(rail)
	if err != nil {
		return err
	}

	ev, err := adapter.VerifyCallback(ctx, raw, signature)
	if err != nil {
		if errors.Is(err, provider.ErrSignatureInvalid) {
			src := callbackSource(ctx)
			c.security.LogSignatureInvalid(rail, src.RemoteAddr, src.UserAgent, err.Error())
			metrics.ProviderCallbacks.WithLabelValues(rail, "signature_invalid").Inc()
			return err
		}
		metrics.ProviderCallbacks.WithLabelValues(rail, "malformed").Inc()
		return fmt.Errorf("%w: %s: %v", ErrMalformedCallback, rail, err)
	}

	target, ok := targetFor(ev)
	if !ok {
		metrics.ProviderCallbacks.WithLabelValues(rail, "ignored").Inc()
		logging.Ctx(ctx).Debug().Str("rail", rail).Str("type", ev.Type).Msg("callback ignored")
		return nil
	}

	d, err := c.locate(ctx, rail, ev)
	if errors.Is(err, store.ErrNotFound) {
		metrics.ProviderCallbacks.WithLabelValues(rail, "unmatched").Inc()
		logging.Ctx(ctx).Warn().
			Str("rail", rail).
			Str("type", ev.Type).
			Str("external_ref", ev.Ref).
			Str("donation_id", ev.DonationID).
			Msg("callback for unknown payment")
		return nil
	}
	if err != nil {
		return err
	}

	res, err := c.apply(ctx, d.ID, target, ev.Ref)
	switch {
	case errors.Is(err, ledger.ErrInvalidTransition):
		if c.flagLateSettlement(ctx, d.ID, target, ev) {
			metrics.ProviderCallbacks.WithLabelValues(rail, "flagged").Inc()
			return nil
		}
		metrics.ProviderCallbacks.WithLabelValues(rail, "conflict").Inc()
		return nil
	case err != nil:
		metrics.ProviderCallbacks.WithLabelValues(rail, "error").Inc()
		return err
	case res.Applied:
		metrics.ProviderCallbacks.WithLabelValues(rail, "applied").Inc()
	default:
		metrics.ProviderCallbacks.WithLabelValues(rail, "duplicate").Inc()
	}
	return nil
}

func targetFor(ev *provider.VerifiedEvent) (models.DonationStatus, bool) {
	switch {
	case ev.Refunded:
		return models.StatusRefunded, true
	case ev.Outcome == provider.OutcomeConfirmed:
		return models.StatusSucceeded, true
	case ev.Outcome == provider.OutcomeDeclined:
		return models.StatusFailed, true
	default:
		return "", false
	}
}

// locate prefers the donation id carried in provider metadata, which works
// even before the reference has been bound, and falls back to the reference.
func (c *Coordinator) locate(ctx context.Context, rail string, ev *provider.VerifiedEvent) (*models.Donation, error) {
	if ev.DonationID != "" {
		d, err := c.ledger.Get(ctx, ev.DonationID)
		if err == nil && d.Method.Rail() == rail && (d.ExternalRef == "" || ev.Ref == "" || d.ExternalRef == ev.Ref) {
			return d, nil
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	if ev.Ref == "" {
		return nil, store.ErrNotFound
	}
	return c.ledger.FindByReference(ctx, rail, ev.Ref)
}

// flagLateSettlement flags id for review when the provider reports money
// moving on a donation the ledger already holds as FAILED.
func (c *Coordinator) flagLateSettlement(ctx context.Context, id string, target models.DonationStatus, ev *provider.VerifiedEvent) bool {
	if target != models.StatusSucceeded && target != models.StatusRefunded {
		return false
	}
	d, err := c.ledger.Get(ctx, id)
	if err != nil || d.Status != models.StatusFailed {
		return false
	}

	reason := fmt.Sprintf("provider reported %s for %s after the donation failed", strings.ToLower(string(target)), ev.Ref)
	flagged, err := c.ledger.Flag(ctx, id, reason)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("donation_id", id).Msg("flag late settlement failed")
		return false
	}
	metrics.ManualReviewFlagged.Inc()
	logging.Ctx(ctx).Warn().
		Str("donation_id", id).
		Str("external_ref", ev.Ref).
		Str("reported", string(target)).
		Msg("provider settled a failed donation")
	c.review.Flagged(ctx, flagged, reason)
	return true
}
