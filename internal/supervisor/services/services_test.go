// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/tallyboard/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*RunnerService)(nil)
)

type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	started       chan struct{}
	stopCh        chan struct{}
	shutdownCount atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	close(m.started)
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return m.shutdownErr
}

func TestNewHTTPServerService_DefaultTimeout(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"explicit", 3 * time.Second, 3 * time.Second},
		{"zero", 0, 10 * time.Second},
		{"negative", -time.Second, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHTTPServerService(newMockHTTPServer(), ":8080", tt.timeout)
			if svc.shutdownTimeout != tt.want {
				t.Errorf("shutdownTimeout = %v, want %v", svc.shutdownTimeout, tt.want)
			}
		})
	}
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, ":8080", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()

	select {
	case <-server.started:
	case <-time.After(time.Second):
		t.Fatal("server did not start")
	}
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if server.shutdownCount.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", server.shutdownCount.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, ":8080", time.Second)

	err := svc.Serve(context.Background())
	if err == nil || !errors.Is(err, server.listenErr) {
		t.Errorf("Serve = %v, want wrapped listen error", err)
	}
}

type fakeRunner struct {
	runs atomic.Int32
	err  error
}

func (f *fakeRunner) RunWithContext(ctx context.Context) error {
	f.runs.Add(1)
	if f.err != nil {
		return f.err
	}
	<-ctx.Done()
	return nil
}

func (f *fakeRunner) String() string { return "fake-runner" }

func TestRunnerService(t *testing.T) {
	t.Run("clean stop reports context error", func(t *testing.T) {
		r := &fakeRunner{}
		svc := NewRunnerService(r)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
		if svc.String() != "fake-runner" {
			t.Errorf("String = %q", svc.String())
		}
	})

	t.Run("runner failure propagates", func(t *testing.T) {
		boom := errors.New("boom")
		svc := NewRunnerService(&fakeRunner{err: boom})
		if err := svc.Serve(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Serve = %v, want boom", err)
		}
	})
}
