// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitStarted(t *testing.T, svc *mockService, min int32) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() < min {
		if time.Now().After(deadline) {
			t.Fatalf("%s started %d times, want at least %d", svc.name, svc.starts.Load(), min)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewSupervisorTree(t *testing.T) {
	t.Run("applies defaults for zero config", func(t *testing.T) {
		tree, err := NewSupervisorTree(testLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("NewSupervisorTree: %v", err)
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want defaults", tree.config)
		}
		if len(tree.layers) != 3 {
			t.Errorf("layers = %d, want 3", len(tree.layers))
		}
	})

	t.Run("requires a logger", func(t *testing.T) {
		if _, err := NewSupervisorTree(nil, TreeConfig{}); err == nil {
			t.Error("expected error for nil logger")
		}
	})
}

func TestAddToLayers(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	svcs := map[Layer]*mockService{
		LayerData:      newMockService("reconciler"),
		LayerMessaging: newMockService("gateway"),
		LayerAPI:       newMockService("http"),
	}
	for layer, svc := range svcs {
		if _, err := tree.Add(layer, svc); err != nil {
			t.Fatalf("Add(%s): %v", layer, err)
		}
	}
	if _, err := tree.Add("storage", newMockService("x")); err == nil {
		t.Error("expected error for unknown layer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range svcs {
		waitStarted(t, svc, 1)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down")
	}
}

func TestFailingServiceRestartsInItsLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	failing := newMockService("gateway")
	failing.failFirst = 2
	stable := newMockService("http")

	tree.AddMessagingService(failing)
	tree.AddAPIService(stable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	waitStarted(t, failing, 3)
	waitStarted(t, stable, 1)

	if stable.starts.Load() != 1 {
		t.Errorf("stable service restarted %d times", stable.starts.Load()-1)
	}
}

func TestRemoveFromLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(testLogger(), TreeConfig{ShutdownTimeout: time.Second})

	svc := newMockService("forwarder")
	token := tree.AddMessagingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)
	waitStarted(t, svc, 1)

	if err := tree.Remove(LayerMessaging, token); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := tree.Remove("nope", token); err == nil {
		t.Error("expected error for unknown layer")
	}
}
