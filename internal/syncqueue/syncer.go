// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package syncqueue

import (
	"context"
	"time"

	"github.com/tomtom215/tallyboard/internal/logging"
)

// Drainer is the part of Queue the syncer drives.
type Drainer interface {
	Drain(ctx context.Context) (*DrainReport, error)
}

// SyncerConfig tunes the drain schedule.
type SyncerConfig struct {
	// Interval between drains while they succeed.
	Interval time.Duration

	// MaxBackoff caps the delay after consecutive failing drains.
	MaxBackoff time.Duration
}

// Syncer drains the queue on a timer and whenever connectivity returns.
// After a drain with failures the next timer drain is pushed back with
// capped exponential backoff; a connectivity signal drains immediately and
// resets the backoff.
type Syncer struct {
	queue    Drainer
	cfg      SyncerConfig
	restored chan struct{}
}

// NewSyncer creates a syncer for queue.
func NewSyncer(queue Drainer, cfg SyncerConfig) *Syncer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	return &Syncer{
		queue:    queue,
		cfg:      cfg,
		restored: make(chan struct{}, 1),
	}
}

// ConnectivityRestored requests an immediate drain. It never blocks;
// signals arriving while one is already pending are coalesced.
func (s *Syncer) ConnectivityRestored() {
	select {
	case s.restored <- struct{}{}:
	default:
	}
}

// nextDelay is Interval doubled per consecutive failing drain, capped at
// MaxBackoff.
func (s *Syncer) nextDelay(failures int) time.Duration {
	delay := s.cfg.Interval
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= s.cfg.MaxBackoff {
			return s.cfg.MaxBackoff
		}
	}
	return delay
}

// RunWithContext drains until ctx is canceled.
func (s *Syncer) RunWithContext(ctx context.Context) error {
	failures := 0
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-s.restored:
			failures = 0
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		report, err := s.queue.Drain(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			failures++
			logging.Error().Err(err).Int("consecutive_failures", failures).Msg("queue drain failed")
		case report.Failed > 0:
			failures++
		default:
			failures = 0
		}

		delay := s.nextDelay(failures)
		if failures > 0 {
			logging.Debug().Dur("next_drain_in", delay).Int("consecutive_failures", failures).Msg("queue drain backing off")
		}
		timer.Reset(delay)
	}
}

func (s *Syncer) String() string {
	return "syncqueue-syncer"
}
