// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package manual

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tomtom215/tallyboard/internal/provider"
)

var _ provider.Adapter = (*Adapter)(nil)

func TestInitiateSettles(t *testing.T) {
	a := New()

	h1, err := a.Initiate(context.Background(), 10000, "EUR", provider.Metadata{})
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	h2, _ := a.Initiate(context.Background(), 10000, "EUR", provider.Metadata{})

	if !h1.Settled {
		t.Error("manual payments settle synchronously")
	}
	if !strings.HasPrefix(h1.Ref, RefPrefix) {
		t.Errorf("ref %q missing prefix", h1.Ref)
	}
	if h1.Ref == h2.Ref {
		t.Error("refs must be unique")
	}
}

func TestInitiateRejectsNonPositive(t *testing.T) {
	_, err := New().Initiate(context.Background(), 0, "EUR", provider.Metadata{})
	if !errors.Is(err, provider.ErrProviderRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestConfirmAndCallbacks(t *testing.T) {
	a := New()
	if got, err := a.Confirm(context.Background(), &provider.Handle{}); err != nil || got != provider.OutcomeConfirmed {
		t.Errorf("Confirm = %s, %v", got, err)
	}
	if _, err := a.VerifyCallback(context.Background(), []byte(`{}`), "sig"); !errors.Is(err, provider.ErrSignatureInvalid) {
		t.Errorf("expected ErrSignatureInvalid, got %v", err)
	}
}
