// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/store"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

type recorder struct {
	mu   sync.Mutex
	msgs []models.ChangeMessage
}

func (r *recorder) Notify(_ context.Context, msg models.ChangeMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func draft() models.DonationDraft {
	return models.DonationDraft{EventID: "gala", Amount: 2500, Currency: "usd", Method: models.MethodCard, DonorName: "Ada"}
}

func newLedger(t *testing.T) (*Ledger, *recorder) {
	t.Helper()
	rec := &recorder{}
	return New(store.NewMemory(), rec), rec
}

func TestCreate(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()

	d, err := l.Create(ctx, "", draft(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.ID == "" || d.Status != models.StatusPending || d.Currency != "USD" {
		t.Errorf("unexpected donation %+v", d)
	}
	if rec.count() != 0 {
		t.Error("creation must not broadcast")
	}

	if _, err := l.Create(ctx, d.ID, draft(), ""); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		path    []models.DonationStatus
		target  models.DonationStatus
		wantErr bool
	}{
		{"pending to succeeded", nil, models.StatusSucceeded, false},
		{"pending to failed", nil, models.StatusFailed, false},
		{"succeeded to refunded", []models.DonationStatus{models.StatusSucceeded}, models.StatusRefunded, false},
		{"pending to refunded", nil, models.StatusRefunded, true},
		{"failed to succeeded", []models.DonationStatus{models.StatusFailed}, models.StatusSucceeded, true},
		{"succeeded to failed", []models.DonationStatus{models.StatusSucceeded}, models.StatusFailed, true},
		{"refunded to succeeded", []models.DonationStatus{models.StatusSucceeded, models.StatusRefunded}, models.StatusSucceeded, true},
		{"succeeded to pending", []models.DonationStatus{models.StatusSucceeded}, models.StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, rec := newLedger(t)
			ctx := context.Background()
			d, _ := l.Create(ctx, "", draft(), "")

			for _, s := range tt.path {
				if _, err := l.Transition(ctx, d.ID, s, ""); err != nil {
					t.Fatalf("setup transition to %s: %v", s, err)
				}
			}
			before := rec.count()

			res, err := l.Transition(ctx, d.ID, tt.target, "")
			if tt.wantErr {
				var te *TransitionError
				if !errors.As(err, &te) || !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected TransitionError, got %v", err)
				}
				if rec.count() != before {
					t.Error("rejected transition must not notify")
				}
				got, _ := l.Get(ctx, d.ID)
				if got.Status == tt.target {
					t.Error("rejected transition changed state")
				}
				return
			}
			if err != nil {
				t.Fatalf("Transition: %v", err)
			}
			if !res.Applied || res.Donation.Status != tt.target {
				t.Errorf("unexpected result %+v", res)
			}
			if rec.count() != before+1 {
				t.Errorf("notifications = %d, want %d", rec.count(), before+1)
			}
		})
	}
}

func TestTransitionIdempotent(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	d, _ := l.Create(ctx, "", draft(), "")

	if _, err := l.Transition(ctx, d.ID, models.StatusSucceeded, "pi_1"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	for _, ref := range []string{"pi_1", ""} {
		res, err := l.Transition(ctx, d.ID, models.StatusSucceeded, ref)
		if err != nil {
			t.Fatalf("repeat with ref %q: %v", ref, err)
		}
		if res.Applied {
			t.Errorf("repeat with ref %q reported Applied", ref)
		}
	}
	if rec.count() != 1 {
		t.Errorf("notifications = %d, want 1", rec.count())
	}

	if _, err := l.Transition(ctx, d.ID, models.StatusSucceeded, "pi_other"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("different reference should conflict, got %v", err)
	}
}

func TestBindReference(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	a, _ := l.Create(ctx, "", draft(), "")
	b, _ := l.Create(ctx, "", draft(), "")

	if _, err := l.BindReference(ctx, a.ID, "pi_a"); err != nil {
		t.Fatalf("BindReference: %v", err)
	}
	if _, err := l.BindReference(ctx, a.ID, "pi_a"); err != nil {
		t.Errorf("rebinding the same ref should be a no-op: %v", err)
	}
	if _, err := l.BindReference(ctx, a.ID, "pi_z"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("rebinding a different ref should fail, got %v", err)
	}
	if _, err := l.BindReference(ctx, b.ID, "pi_a"); !errors.Is(err, store.ErrDuplicateReference) {
		t.Errorf("ref must be unique per rail, got %v", err)
	}

	found, err := l.FindByReference(ctx, models.RailCard, "pi_a")
	if err != nil || found.ID != a.ID {
		t.Errorf("FindByReference = %v, %v", found, err)
	}
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	d, _ := l.Create(ctx, "", draft(), "")

	const workers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		target := models.StatusSucceeded
		if i%2 == 1 {
			target = models.StatusFailed
		}
		go func(target models.DonationStatus) {
			defer wg.Done()
			res, err := l.Transition(ctx, d.ID, target, "")
			if err == nil && res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied = %d, want exactly 1", applied)
	}
	if rec.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", rec.count())
	}
}

func TestFlag(t *testing.T) {
	l, rec := newLedger(t)
	ctx := context.Background()
	d, _ := l.Create(ctx, "", draft(), "")
	other, _ := l.Create(ctx, "", draft(), "")

	_, _ = l.Transition(ctx, d.ID, models.StatusFailed, "")
	_, _ = l.Transition(ctx, other.ID, models.StatusFailed, "")
	before := rec.count()

	flagged, err := l.Flag(ctx, d.ID, "unresolved after 5 polls")
	if err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if flagged.Status != models.StatusFailed || flagged.ReviewFlag == "" {
		t.Errorf("unexpected donation %+v", flagged)
	}
	if rec.count() != before {
		t.Error("flagging is not a transition")
	}

	list, err := l.Flagged(ctx)
	if err != nil {
		t.Fatalf("Flagged: %v", err)
	}
	if len(list) != 1 || list[0].ID != d.ID {
		t.Errorf("Flagged = %v", list)
	}
}

func TestNotFound(t *testing.T) {
	l, _ := newLedger(t)
	if _, err := l.Transition(context.Background(), "missing", models.StatusSucceeded, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
