// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

type capture struct {
	mu   sync.Mutex
	got  []models.ChangeMessage
	seen chan struct{}
}

func newCapture() *capture {
	return &capture{seen: make(chan struct{}, 16)}
}

func (c *capture) Publish(eventID string, msg models.ChangeMessage) bool {
	c.mu.Lock()
	c.got = append(c.got, msg)
	c.mu.Unlock()
	c.seen <- struct{}{}
	return true
}

func (c *capture) wait(t *testing.T, n int) []models.ChangeMessage {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i+1)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChangeMessage(nil), c.got...)
}

func startForwarder(t *testing.T, bus *Bus, target Publisher) (cancel func()) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	done := make(chan error, 1)
	fwd := NewForwarder(bus, target)
	go func() { done <- fwd.RunWithContext(ctx) }()

	// GoChannel drops messages published before anyone subscribes.
	time.Sleep(50 * time.Millisecond)

	return func() {
		cancelFn()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("forwarder returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("forwarder did not stop")
		}
	}
}

func TestNotifyReachesGateway(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Close()

	target := newCapture()
	stop := startForwarder(t, bus, target)
	defer stop()

	name := "Ada"
	sent := models.ChangeMessage{
		DonationID: "d1",
		EventID:    "gala",
		Amount:     10000,
		Currency:   "EUR",
		DonorName:  &name,
		Status:     models.StatusSucceeded,
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	if err := bus.Notify(context.Background(), sent); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := target.wait(t, 1)
	if len(got) != 1 {
		t.Fatalf("got %d messages", len(got))
	}
	m := got[0]
	if m.DonationID != "d1" || m.EventID != "gala" || m.Status != models.StatusSucceeded || m.DonorName == nil || *m.DonorName != "Ada" {
		t.Errorf("unexpected message %+v", m)
	}
	if !m.OccurredAt.Equal(sent.OccurredAt) {
		t.Errorf("occurred_at = %v", m.OccurredAt)
	}
}

func TestForwarderSkipsGarbage(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Close()

	target := newCapture()
	stop := startForwarder(t, bus, target)
	defer stop()

	if err := bus.pubsub.Publish(TopicDonationsChanged, message.NewMessage(watermill.NewUUID(), []byte("not json"))); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bus.Notify(context.Background(), models.ChangeMessage{DonationID: "d2", EventID: "gala", Status: models.StatusFailed}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	got := target.wait(t, 1)
	if got[0].DonationID != "d2" {
		t.Errorf("expected the valid message to be forwarded, got %+v", got[0])
	}
}

func TestNotifyWithoutSubscriberDoesNotBlock(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = bus.Notify(context.Background(), models.ChangeMessage{DonationID: "d", EventID: "e"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked without subscribers")
	}
}

// sequence records statuses per donation without ever blocking the forwarder.
type sequence struct {
	mu     sync.Mutex
	byID   map[string][]models.DonationStatus
	total  int
	notify chan struct{}
}

func (s *sequence) Publish(eventID string, msg models.ChangeMessage) bool {
	s.mu.Lock()
	s.byID[msg.DonationID] = append(s.byID[msg.DonationID], msg.Status)
	s.total++
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

func TestNotifyKeepsPerDonationOrder(t *testing.T) {
	bus := New(DefaultConfig())
	defer bus.Close()

	target := &sequence{byID: make(map[string][]models.DonationStatus), notify: make(chan struct{}, 1)}
	stop := startForwarder(t, bus, target)
	defer stop()

	const donations = 200
	var wg sync.WaitGroup
	for i := 0; i < donations; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, st := range []models.DonationStatus{models.StatusSucceeded, models.StatusRefunded} {
				if err := bus.Notify(context.Background(), models.ChangeMessage{DonationID: id, EventID: "gala", Status: st}); err != nil {
					t.Errorf("Notify: %v", err)
				}
			}
		}(fmt.Sprintf("d%d", i))
	}
	wg.Wait()

	// Notify returns after the ack, so everything has been forwarded.
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.total != 2*donations {
		t.Fatalf("forwarded %d messages, want %d", target.total, 2*donations)
	}
	for id, got := range target.byID {
		if len(got) != 2 || got[0] != models.StatusSucceeded || got[1] != models.StatusRefunded {
			t.Errorf("%s delivered %v, want [SUCCEEDED REFUNDED]", id, got)
		}
	}
}
