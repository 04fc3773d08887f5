// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/store"
)

// Config tunes reconciliation.
type Config struct {
	// SweepInterval between sweeps.
	SweepInterval time.Duration

	// StuckAfter is how old an intake must be before it is polled.
	StuckAfter time.Duration

	// ConfirmTimeout bounds one confirmation poll.
	ConfirmTimeout time.Duration

	// MaxAttempts unresolved polls before a donation is forced to FAILED
	// and flagged for manual review.
	MaxAttempts int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SweepInterval:  30 * time.Second,
		StuckAfter:     2 * time.Minute,
		ConfirmTimeout: 10 * time.Second,
		MaxAttempts:    10,
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Checked    int
	Resolved   int
	Unresolved int
	Flagged    int
}

// Reconciler polls providers for intakes whose callback never arrived.
type Reconciler struct {
	c   *Coordinator
	cfg Config

	// Sweeps never overlap.
	mu sync.Mutex
}

// NewReconciler creates a reconciler for c.
func NewReconciler(c *Coordinator, cfg Config) *Reconciler {
	def := DefaultConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = def.ConfirmTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	return &Reconciler{c: c, cfg: cfg}
}

// Recover rebuilds the in-flight set from persisted PENDING donations. It is
// called once on startup before the first sweep.
func (r *Reconciler) Recover(ctx context.Context) (int, error) {
	pending, err := r.c.ledger.ListByStatus(ctx, models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("list pending donations: %w", err)
	}

	recovered := 0
	for _, d := range pending {
		if r.c.tracker.has(d.ID) {
			continue
		}
		in := intake{DonationID: d.ID, Rail: d.Method.Rail(), Since: d.CreatedAt}
		if d.ExternalRef != "" {
			in.Handle = &provider.Handle{Rail: in.Rail, Ref: d.ExternalRef}
		}
		r.c.tracker.track(in)
		recovered++
	}

	if recovered > 0 {
		logging.Info().Int("recovered", recovered).Msg("recovered in-flight donations")
	}
	return recovered, nil
}

// Sweep polls every due intake once.
func (r *Reconciler) Sweep(ctx context.Context) SweepReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report SweepReport
	for _, in := range r.c.tracker.due(r.c.now(), r.cfg.StuckAfter) {
		if ctx.Err() != nil {
			break
		}
		report.Checked++

		switch r.reconcile(ctx, in) {
		case resultResolved:
			report.Resolved++
		case resultFlagged:
			report.Flagged++
		case resultUnresolved:
			report.Unresolved++
		}
	}

	if report.Checked > 0 {
		logging.Info().
			Int("checked", report.Checked).
			Int("resolved", report.Resolved).
			Int("unresolved", report.Unresolved).
			Int("flagged", report.Flagged).
			Msg("reconciliation sweep finished")
	}
	return report
}

type reconcileResult int

const (
	resultSkipped reconcileResult = iota
	resultResolved
	resultUnresolved
	resultFlagged
)

func (r *Reconciler) reconcile(ctx context.Context, in intake) reconcileResult {
	d, err := r.c.ledger.Get(ctx, in.DonationID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && d.Status != models.StatusPending) {
		r.c.tracker.untrack(in.DonationID)
		return resultSkipped
	}
	if err != nil {
		logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: load donation failed")
		return resultUnresolved
	}

	outcome := provider.OutcomePending
	if in.Handle != nil {
		outcome = r.poll(ctx, in)
	} else {
		metrics.ReconcileAttempts.WithLabelValues(in.Rail, "not_initiated").Inc()
	}

	var target models.DonationStatus
	switch outcome {
	case provider.OutcomeConfirmed:
		target = models.StatusSucceeded
	case provider.OutcomeDeclined:
		target = models.StatusFailed
	default:
		attempts := r.c.tracker.recordAttempt(in.DonationID)
		if attempts < r.cfg.MaxAttempts {
			return resultUnresolved
		}
		return r.forceFail(ctx, in, attempts)
	}

	if _, err := r.c.apply(ctx, in.DonationID, target, in.ref()); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			r.c.tracker.untrack(in.DonationID)
			return resultSkipped
		}
		logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: transition failed")
		return resultUnresolved
	}
	return resultResolved
}

func (r *Reconciler) poll(ctx context.Context, in intake) provider.Outcome {
	adapter, err := r.c.providers.ForRail(in.Rail)
	if err != nil {
		logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: no adapter for rail")
		return provider.OutcomePending
	}

	pollCtx, cancel := context.WithTimeout(ctx, r.cfg.ConfirmTimeout)
	defer cancel()

	outcome, err := adapter.Confirm(pollCtx, in.Handle)
	if err != nil {
		metrics.ReconcileAttempts.WithLabelValues(in.Rail, "error").Inc()
		logging.Warn().
			Err(err).
			Str("donation_id", in.DonationID).
			Str("rail", in.Rail).
			Msg("confirmation poll failed")
		return provider.OutcomePending
	}
	metrics.ReconcileAttempts.WithLabelValues(in.Rail, outcome.String()).Inc()
	return outcome
}

func (r *Reconciler) forceFail(ctx context.Context, in intake, attempts int) reconcileResult {
	if in.Handle == nil {
		// A resubmission may be creating the payment right now.
		release := r.c.initiating.Lock(in.DonationID)
		defer release()

		d, err := r.c.ledger.Get(ctx, in.DonationID)
		if err != nil {
			logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: load donation failed")
			return resultUnresolved
		}
		if d.Status != models.StatusPending {
			r.c.tracker.untrack(in.DonationID)
			return resultSkipped
		}
		if d.ExternalRef != "" {
			// Initiated meanwhile; polled from the next sweep.
			return resultUnresolved
		}
	}

	reason := fmt.Sprintf("no provider resolution after %d attempts", attempts)

	if _, err := r.c.apply(ctx, in.DonationID, models.StatusFailed, ""); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			r.c.tracker.untrack(in.DonationID)
			return resultSkipped
		}
		logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: forced failure failed")
		return resultUnresolved
	}

	d, err := r.c.ledger.Flag(ctx, in.DonationID, reason)
	if err != nil {
		logging.Error().Err(err).Str("donation_id", in.DonationID).Msg("reconcile: flag for review failed")
		return resultFlagged
	}
	metrics.ManualReviewFlagged.Inc()
	r.c.review.Flagged(ctx, d, reason)
	return resultFlagged
}

func (in intake) ref() string {
	if in.Handle == nil {
		return ""
	}
	return in.Handle.Ref
}

// RunWithContext sweeps every SweepInterval until ctx is cancelled.
func (r *Reconciler) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	logging.Info().
		Dur("interval", r.cfg.SweepInterval).
		Dur("stuck_after", r.cfg.StuckAfter).
		Int("max_attempts", r.cfg.MaxAttempts).
		Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Str("component", "settlement-reconciler").Msg("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (r *Reconciler) String() string {
	return "settlement-reconciler"
}
