// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package settlement drives a donation from intake to a final status.
//
// The Coordinator validates a draft, suppresses duplicate submissions by
// idempotency token, initiates the payment on the right rail and applies the
// resulting transitions through the ledger. Provider callbacks and the
// Reconciler's confirmation polls feed the same ledger, so whichever arrives
// first wins and the other is an idempotent no-op.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/tallyboard/internal/keylock"
	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/store"
	"github.com/tomtom215/tallyboard/internal/validation"
)

// Store is the persistence the coordinator needs besides the ledger.
type Store interface {
	store.EventStore
	store.TokenStore
}

// Options wires optional collaborators. Nil fields fall back to logging.
type Options struct {
	Confirmed ConfirmedHook
	Review    ReviewSink
	Security  *logging.SecurityLogger
}

// Coordinator runs the intake lifecycle.
type Coordinator struct {
	ledger    *ledger.Ledger
	store     Store
	providers *provider.Registry
	tracker   *tracker
	tokens    keylock.Map

	// initiating is held per donation id while a payment is being created,
	// and by the reconciler before it gives up on an intake that never
	// reached its provider.
	initiating keylock.Map

	confirmed ConfirmedHook
	review    ReviewSink
	security  *logging.SecurityLogger
	now       func() time.Time
}

// NewCoordinator creates a coordinator.
func NewCoordinator(l *ledger.Ledger, s Store, providers *provider.Registry, opts Options) *Coordinator {
	c := &Coordinator{
		ledger:    l,
		store:     s,
		providers: providers,
		tracker:   newTracker(),
		confirmed: opts.Confirmed,
		review:    opts.Review,
		security:  opts.Security,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if c.confirmed == nil {
		c.confirmed = logHooks{}
	}
	if c.review == nil {
		c.review = logHooks{}
	}
	if c.security == nil {
		c.security = logging.NewSecurityLogger()
	}
	return c
}

// SubmitDonation accepts a donation draft.
//
// staff is the authenticated staff identity and is required for manual
// methods. token is the client's idempotency token: a repeat of a token whose
// donation already reached the provider returns the original summary with a
// *DuplicateError, while a repeat after a provider outage resumes the same
// donation.
//
// Errors: *ValidationError, *DuplicateError, provider.ErrProviderRejected
// (summary is FAILED) and provider.ErrProviderUnavailable (summary is PENDING,
// safe to retry with the same token).
func (c *Coordinator) SubmitDonation(ctx context.Context, draft models.DonationDraft, token, staff string) (*models.DonationSummary, error) {
	draft.Currency = strings.ToUpper(strings.TrimSpace(draft.Currency))
	draft.EventID = strings.TrimSpace(draft.EventID)
	token = strings.TrimSpace(token)

	event, adapter, err := c.validate(ctx, draft, token, staff)
	if err != nil {
		c.recordSubmission(draft.Method, "invalid")
		return nil, err
	}

	unlock := c.tokens.Lock(token)
	defer unlock()

	d, err := c.reserve(ctx, draft, token, staff)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			c.recordSubmission(draft.Method, "duplicate")
			return dup.Summary, err
		}
		c.recordSubmission(draft.Method, "error")
		return nil, err
	}

	release := c.initiating.Lock(d.ID)
	defer release()

	// The reconciler may have given up on a resumed donation meanwhile.
	current, err := c.ledger.Get(ctx, d.ID)
	if err != nil {
		c.recordSubmission(draft.Method, "error")
		return nil, fmt.Errorf("load donation %s: %w", d.ID, err)
	}
	if current.Status.IsTerminal() {
		c.recordSubmission(draft.Method, "duplicate")
		return current.Summary(), &DuplicateError{DonationID: current.ID, Summary: current.Summary()}
	}

	return c.initiate(ctx, current, event, adapter, token)
}

func (c *Coordinator) validate(ctx context.Context, draft models.DonationDraft, token, staff string) (*models.EventConfig, provider.Adapter, error) {
	if verr := validation.ValidateStruct(draft); verr != nil {
		return nil, nil, &ValidationError{Fields: verr}
	}
	if token == "" {
		return nil, nil, newValidationError("idempotency_key", "required", "idempotency_key is required")
	}

	event, err := c.store.LoadEventConfig(ctx, draft.EventID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, newValidationError("event_id", "exists", "event_id does not name a known event")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load event %s: %w", draft.EventID, err)
	}
	if !strings.EqualFold(event.Currency, draft.Currency) {
		return nil, nil, newValidationError("currency", "eqfield", fmt.Sprintf("currency must be %s for this event", event.Currency))
	}
	if draft.Method.IsManual() && strings.TrimSpace(staff) == "" {
		return nil, nil, newValidationError("recorded_by", "required", "manual payments must be recorded by authenticated staff")
	}

	adapter, err := c.providers.ForMethod(draft.Method)
	if err != nil {
		return nil, nil, newValidationError("method", "oneof", fmt.Sprintf("payment method %s is not available", draft.Method))
	}
	return event, adapter, nil
}

// reserve binds token to a new donation or resolves the donation it already
// names. Callers hold the token lock.
func (c *Coordinator) reserve(ctx context.Context, draft models.DonationDraft, token, staff string) (*models.Donation, error) {
	newID := uuid.NewString()
	existing, err := c.store.ReserveToken(ctx, token, newID)
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency token: %w", err)
	}
	if existing == "" {
		return c.ledger.Create(ctx, newID, draft, staff)
	}

	d, err := c.ledger.Get(ctx, existing)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// Crashed between reserving and creating.
		return c.ledger.Create(ctx, existing, draft, staff)
	case err != nil:
		return nil, fmt.Errorf("load donation %s: %w", existing, err)
	case d.ExternalRef != "" || d.Status.IsTerminal():
		logging.Ctx(ctx).Info().
			Str("donation_id", d.ID).
			Str("status", string(d.Status)).
			Msg("duplicate submission suppressed")
		return nil, &DuplicateError{DonationID: d.ID, Summary: d.Summary()}
	default:
		logging.Ctx(ctx).Info().Str("donation_id", d.ID).Msg("resuming donation after earlier provider failure")
		return d, nil
	}
}

func (c *Coordinator) initiate(ctx context.Context, d *models.Donation, event *models.EventConfig, adapter provider.Adapter, token string) (*models.DonationSummary, error) {
	rail := adapter.Rail()
	h, err := adapter.Initiate(ctx, d.Amount, d.Currency, provider.Metadata{
		DonationID:     d.ID,
		EventID:        d.EventID,
		Method:         string(d.Method),
		IdempotencyKey: token,
		Description:    "Donation to " + event.Name,
	})

	switch {
	case errors.Is(err, provider.ErrProviderRejected):
		res, terr := c.ledger.Transition(ctx, d.ID, models.StatusFailed, "")
		if terr != nil {
			return nil, fmt.Errorf("record rejection of %s: %w", d.ID, terr)
		}
		c.tracker.untrack(d.ID)
		c.recordSubmission(d.Method, "rejected")
		logging.Ctx(ctx).Info().Err(err).Str("donation_id", d.ID).Str("rail", rail).Msg("payment rejected by provider")
		return res.Donation.Summary(), err

	case err != nil:
		c.tracker.track(intake{DonationID: d.ID, Rail: rail, Since: c.now()})
		c.recordSubmission(d.Method, "unavailable")
		logging.Ctx(ctx).Warn().Err(err).Str("donation_id", d.ID).Str("rail", rail).Msg("payment provider unavailable, donation left pending")
		if !errors.Is(err, provider.ErrProviderUnavailable) {
			err = fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
		}
		return d.Summary(), err
	}

	bound, err := c.ledger.BindReference(ctx, d.ID, h.Ref)
	if err != nil {
		logging.Ctx(ctx).Error().
			Err(err).
			Str("donation_id", d.ID).
			Str("external_ref", h.Ref).
			Msg("payment created but reference could not be recorded")
		c.recordSubmission(d.Method, "error")
		return nil, fmt.Errorf("bind reference %s: %w", h.Ref, err)
	}

	if h.Settled {
		res, err := c.apply(ctx, d.ID, models.StatusSucceeded, h.Ref)
		if err != nil {
			c.recordSubmission(d.Method, "error")
			return nil, err
		}
		c.recordSubmission(d.Method, "succeeded")
		return res.Donation.Summary(), nil
	}

	// A callback may already have settled it.
	if bound.Status == models.StatusPending {
		c.tracker.track(intake{DonationID: d.ID, Rail: rail, Handle: h, Since: c.now()})
	}
	c.recordSubmission(d.Method, "pending")

	summary := bound.Summary()
	summary.ClientAction = h.ClientAction
	return summary, nil
}

// apply runs a transition and the side effects that depend on it being
// applied: untracking settled intakes and the confirmed hook.
func (c *Coordinator) apply(ctx context.Context, id string, target models.DonationStatus, ref string) (ledger.Result, error) {
	res, err := c.ledger.Transition(ctx, id, target, ref)
	if err != nil {
		return res, err
	}
	if res.Donation.Status != models.StatusPending {
		c.tracker.untrack(id)
	}
	if res.Applied && target == models.StatusSucceeded {
		c.fireConfirmed(ctx, res.Donation)
	}
	return res, nil
}

func (c *Coordinator) fireConfirmed(ctx context.Context, d *models.Donation) {
	hookCtx := context.WithoutCancel(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Error().Interface("panic", r).Str("donation_id", d.ID).Msg("confirmed hook panicked")
			}
		}()
		c.confirmed.DonationConfirmed(hookCtx, d)
	}()
}

// Donation returns the summary of one donation.
func (c *Coordinator) Donation(ctx context.Context, id string) (*models.DonationSummary, error) {
	d, err := c.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return d.Summary(), nil
}

// Tracked reports how many intakes await a provider verdict.
func (c *Coordinator) Tracked() int {
	return c.tracker.size()
}

func (c *Coordinator) recordSubmission(method models.PaymentMethod, outcome string) {
	label := string(method)
	switch method {
	case models.MethodCard, models.MethodWallet, models.MethodCash, models.MethodCheck, models.MethodOther:
	default:
		label = "unknown"
	}
	metrics.DonationSubmissions.WithLabelValues(label, outcome).Inc()
}
