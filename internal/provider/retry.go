// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
)

// RetryPolicy bounds the calls made for one provider operation.
type RetryPolicy struct {
	// MaxAttempts including the first call. Values below 1 mean 1.
	MaxAttempts int

	// InitialBackoff before the second attempt; doubled per attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps a single wait.
	MaxBackoff time.Duration

	// CallTimeout bounds each attempt. Zero leaves the caller's deadline alone.
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns three attempts with 200ms, 400ms waits.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		CallTimeout:    10 * time.Second,
	}
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 || p.InitialBackoff <= 0 {
		return 0
	}
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxBackoff > 0 && d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// Caller runs provider operations with bounded retries behind a breaker.
type Caller struct {
	Rail    string
	Policy  RetryPolicy
	Breaker *Breaker
}

// NewCaller builds a Caller with its own breaker.
func NewCaller(rail string, policy RetryPolicy, breaker BreakerConfig) *Caller {
	return &Caller{Rail: rail, Policy: policy, Breaker: NewBreaker(rail, breaker)}
}

// Call runs fn until it succeeds, fails permanently or the attempts run out.
// Exhausted retries and caller cancellation both surface as
// ErrProviderUnavailable; permanent errors are returned unchanged.
func Call[T any](ctx context.Context, c *Caller, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	attempts := c.Policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.attempt(ctx, func(callCtx context.Context) (interface{}, error) {
			return fn(callCtx)
		})
		if err == nil {
			metrics.RecordProviderCall(c.Rail, operation, "ok", time.Since(start))
			typed, ok := result.(T)
			if !ok && result != nil {
				return zero, fmt.Errorf("provider %s %s: unexpected result type %T", c.Rail, operation, result)
			}
			return typed, nil
		}
		lastErr = err

		if !IsTransient(err) {
			metrics.RecordProviderCall(c.Rail, operation, resultLabel(err), time.Since(start))
			return zero, err
		}
		if ctx.Err() != nil {
			break
		}

		logging.Ctx(ctx).Warn().
			Err(err).
			Str("rail", c.Rail).
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("provider call failed")

		if attempt < attempts {
			wait := c.Policy.Backoff(attempt)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				attempt = attempts
			case <-timer.C:
			}
		}
	}

	metrics.RecordProviderCall(c.Rail, operation, "unavailable", time.Since(start))
	if errors.Is(lastErr, ErrProviderUnavailable) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w: %s %s: %v", ErrProviderUnavailable, c.Rail, operation, lastErr)
}

func (c *Caller) attempt(ctx context.Context, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	callCtx := ctx
	if c.Policy.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.Policy.CallTimeout)
		defer cancel()
	}
	if c.Breaker == nil {
		return fn(callCtx)
	}
	return c.Breaker.Execute(func() (interface{}, error) {
		return fn(callCtx)
	})
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrProviderRejected):
		return "rejected"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	default:
		return "error"
	}
}
