// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package settlement

import (
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/provider"
)

// intake is a donation still waiting for its provider's verdict.
type intake struct {
	DonationID string
	Rail       string

	// Handle is nil when Initiate never succeeded.
	Handle *provider.Handle

	Since    time.Time
	Attempts int
}

// tracker holds in-flight intakes in memory. It is rebuilt from persisted
// PENDING donations on startup.
type tracker struct {
	mu      sync.Mutex
	intakes map[string]*intake
}

func newTracker() *tracker {
	return &tracker{intakes: make(map[string]*intake)}
}

// track adds or replaces the intake for in.DonationID. A replacement keeps the
// attempt count, unless it is the first to carry a provider handle.
func (t *tracker) track(in intake) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.intakes[in.DonationID]; ok {
		if prev.Handle != nil || in.Handle == nil {
			in.Attempts = prev.Attempts
		}
		if !prev.Since.IsZero() {
			in.Since = prev.Since
		}
	}
	t.intakes[in.DonationID] = &in
	metrics.ReconcileTracked.Set(float64(len(t.intakes)))
}

func (t *tracker) untrack(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.intakes[id]; ok {
		delete(t.intakes, id)
		metrics.ReconcileTracked.Set(float64(len(t.intakes)))
	}
}

func (t *tracker) has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.intakes[id]
	return ok
}

// recordAttempt counts an unresolved poll and returns the new total.
func (t *tracker) recordAttempt(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	in, ok := t.intakes[id]
	if !ok {
		return 0
	}
	in.Attempts++
	return in.Attempts
}

// due returns copies of intakes older than stuckAfter, oldest first.
func (t *tracker) due(now time.Time, stuckAfter time.Duration) []intake {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]intake, 0, len(t.intakes))
	for _, in := range t.intakes {
		if now.Sub(in.Since) >= stuckAfter {
			out = append(out, *in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].DonationID < out[j].DonationID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

func (t *tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.intakes)
}
