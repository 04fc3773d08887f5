// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

type stubAdapter struct{ rail string }

func (s stubAdapter) Rail() string { return s.rail }
func (s stubAdapter) Initiate(context.Context, int64, string, Metadata) (*Handle, error) {
	return &Handle{Rail: s.rail, Ref: "x"}, nil
}
func (s stubAdapter) Confirm(context.Context, *Handle) (Outcome, error) { return OutcomePending, nil }
func (s stubAdapter) VerifyCallback(context.Context, []byte, string) (*VerifiedEvent, error) {
	return nil, ErrSignatureInvalid
}

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(stubAdapter{"card"}, stubAdapter{"manual"})

	tests := []struct {
		method  models.PaymentMethod
		rail    string
		wantErr bool
	}{
		{models.MethodCard, "card", false},
		{models.MethodCash, "manual", false},
		{models.MethodCheck, "manual", false},
		{models.MethodWallet, "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			a, err := reg.ForMethod(tt.method)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownRail) {
					t.Fatalf("expected ErrUnknownRail, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForMethod: %v", err)
			}
			if a.Rail() != tt.rail {
				t.Errorf("rail = %s, want %s", a.Rail(), tt.rail)
			}
		})
	}

	if got := reg.Rails(); len(got) != 2 || got[0] != "card" || got[1] != "manual" {
		t.Errorf("Rails() = %v", got)
	}
}

func TestRejectedErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("initiate: %w", &RejectedError{Rail: "card", Code: "card_declined", Reason: "insufficient funds"})
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatal("RejectedError should match ErrProviderRejected")
	}
	if errors.Is(err, ErrProviderUnavailable) {
		t.Fatal("RejectedError should not match ErrProviderUnavailable")
	}
	var re *RejectedError
	if !errors.As(err, &re) || re.Code != "card_declined" {
		t.Fatalf("errors.As failed: %v", re)
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 500 * time.Millisecond}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond},
		{10, 500 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := p.Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestCallRetriesTransient(t *testing.T) {
	c := &Caller{Rail: "test", Policy: fastPolicy(3)}
	calls := 0

	got, err := Call(context.Background(), c, "initiate", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("%w: timeout", ErrProviderUnavailable)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ok" || calls != 3 {
		t.Errorf("got %q after %d calls", got, calls)
	}
}

func TestCallStopsOnRejection(t *testing.T) {
	c := &Caller{Rail: "test", Policy: fastPolicy(5)}
	calls := 0

	_, err := Call(context.Background(), c, "initiate", func(context.Context) (string, error) {
		calls++
		return "", &RejectedError{Rail: "test", Reason: "declined"}
	})
	if !errors.Is(err, ErrProviderRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if calls != 1 {
		t.Errorf("rejections must not be retried, got %d calls", calls)
	}
}

func TestCallExhaustedIsUnavailable(t *testing.T) {
	c := &Caller{Rail: "test", Policy: fastPolicy(2)}
	calls := 0

	_, err := Call(context.Background(), c, "confirm", func(ctx context.Context) (Outcome, error) {
		calls++
		return OutcomePending, context.DeadlineExceeded
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestCallAppliesCallTimeout(t *testing.T) {
	c := &Caller{Rail: "test", Policy: RetryPolicy{MaxAttempts: 1, CallTimeout: 10 * time.Millisecond}}

	_, err := Call(context.Background(), c, "confirm", func(ctx context.Context) (Outcome, error) {
		<-ctx.Done()
		return OutcomePending, ctx.Err()
	})
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable after timeout, got %v", err)
	}
}

func TestCallHonorsCancellation(t *testing.T) {
	c := &Caller{Rail: "test", Policy: RetryPolicy{MaxAttempts: 10, InitialBackoff: time.Hour}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := Call(ctx, c, "initiate", func(context.Context) (string, error) {
			return "", ErrProviderUnavailable
		})
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after cancellation")
	}
}

func TestBreakerOpensOnUnavailable(t *testing.T) {
	b := NewBreaker("open-test", BreakerConfig{MaxRequests: 1, Timeout: time.Hour, MinRequests: 3, FailureRatio: 0.5})

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(func() (interface{}, error) { return nil, ErrProviderUnavailable })
	}
	if b.State() != "open" {
		t.Fatalf("state = %s, want open", b.State())
	}

	called := false
	_, err := b.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if called {
		t.Error("open breaker must not call through")
	}
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("open breaker should surface ErrProviderUnavailable, got %v", err)
	}
}

func TestBreakerIgnoresRejections(t *testing.T) {
	b := NewBreaker("reject-test", BreakerConfig{MaxRequests: 1, Timeout: time.Hour, MinRequests: 3, FailureRatio: 0.5})

	for i := 0; i < 10; i++ {
		_, err := b.Execute(func() (interface{}, error) {
			return nil, &RejectedError{Rail: "test", Reason: "declined"}
		})
		if !errors.Is(err, ErrProviderRejected) {
			t.Fatalf("expected rejection, got %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("declines must not trip the breaker, state = %s", b.State())
	}
}
