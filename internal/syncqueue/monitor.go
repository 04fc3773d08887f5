// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package syncqueue

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/tallyboard/internal/logging"
)

// LivenessPath is probed to decide whether the server is reachable.
const LivenessPath = "/api/v1/health/live"

// Monitor probes the server and reports offline to online transitions.
type Monitor struct {
	url       string
	interval  time.Duration
	client    *http.Client
	onRestore func()

	online bool
}

// NewMonitor creates a monitor probing baseURL every interval. onRestore is
// called on every transition to reachable, including the first successful
// probe.
func NewMonitor(baseURL string, interval time.Duration, onRestore func()) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	timeout := interval / 2
	if timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Monitor{
		url:       strings.TrimRight(baseURL, "/") + LivenessPath,
		interval:  interval,
		client:    &http.Client{Timeout: timeout},
		onRestore: onRestore,
	}
}

// Online reports the result of the last probe.
func (m *Monitor) Online() bool {
	return m.online
}

// probe checks reachability once and fires onRestore on an offline to online
// transition. Not safe for concurrent use; RunWithContext is the only caller
// outside tests.
func (m *Monitor) probe(ctx context.Context) {
	up := m.reachable(ctx)
	if up == m.online {
		return
	}
	m.online = up
	if up {
		logging.Info().Str("url", m.url).Msg("server reachable")
		if m.onRestore != nil {
			m.onRestore()
		}
		return
	}
	logging.Warn().Str("url", m.url).Msg("server unreachable, queueing locally")
}

func (m *Monitor) reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RunWithContext probes immediately and then every interval until ctx is
// canceled.
func (m *Monitor) RunWithContext(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) String() string {
	return "syncqueue-monitor"
}
