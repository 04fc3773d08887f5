// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package broadcast

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/metrics"
	"github.com/tomtom215/tallyboard/internal/models"
)

// ShutdownReason identifies why the gateway stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Frame types.
const (
	FrameDonationChanged = "donation.changed"
	FrameSubscribed      = "subscribed"
	FrameUnsubscribed    = "unsubscribed"
	FramePong            = "pong"
	FrameError           = "error"
)

// Disconnect reasons used in metrics and logs.
const (
	ReasonSlowConsumer = "slow_consumer"
	ReasonClientClosed = "client_closed"
	ReasonShutdown     = "shutdown"
)

// Frame is the envelope of every server to client message.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Config sizes the gateway's buffers.
type Config struct {
	// QueueSize bounds pending deliveries across all events.
	QueueSize int

	// SessionBuffer bounds frames waiting to be written to one session.
	SessionBuffer int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 1024, SessionBuffer: 64}
}

type delivery struct {
	eventID    string
	frame      []byte
	recipients []*Session
}

// Gateway routes change messages to the sessions watching an event.
type Gateway struct {
	mu       sync.RWMutex
	events   map[string]map[*Session]struct{}
	global   map[*Session]struct{}
	sessions map[*Session]map[string]struct{}

	queue         chan delivery
	sessionBuffer int
}

// NewGateway creates a gateway.
func NewGateway(cfg Config) *Gateway {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SessionBuffer <= 0 {
		cfg.SessionBuffer = def.SessionBuffer
	}
	return &Gateway{
		events:        make(map[string]map[*Session]struct{}),
		global:        make(map[*Session]struct{}),
		sessions:      make(map[*Session]map[string]struct{}),
		queue:         make(chan delivery, cfg.QueueSize),
		sessionBuffer: cfg.SessionBuffer,
	}
}

// Register adds s with no subscriptions. Subscribe registers implicitly.
func (g *Gateway) Register(s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.registerLocked(s)
}

func (g *Gateway) registerLocked(s *Session) bool {
	if s.isClosed() {
		return false
	}
	if _, ok := g.sessions[s]; !ok {
		g.sessions[s] = make(map[string]struct{})
		metrics.BroadcastSessions.Set(float64(len(g.sessions)))
	}
	return true
}

// Subscribe adds s to eventID's recipients.
func (g *Gateway) Subscribe(s *Session, eventID string) bool {
	if eventID == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.registerLocked(s) {
		return false
	}
	set, ok := g.events[eventID]
	if !ok {
		set = make(map[*Session]struct{})
		g.events[eventID] = set
	}
	set[s] = struct{}{}
	g.sessions[s][eventID] = struct{}{}
	return true
}

// SubscribeAll makes s a global listener.
func (g *Gateway) SubscribeAll(s *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.registerLocked(s) {
		return false
	}
	g.global[s] = struct{}{}
	return true
}

// Leave removes s from one event, keeping the connection open.
func (g *Gateway) Leave(s *Session, eventID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if set, ok := g.events[eventID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(g.events, eventID)
		}
	}
	if subs, ok := g.sessions[s]; ok {
		delete(subs, eventID)
	}
}

// Unsubscribe removes s from every set and closes its send buffer. Calling
// it again is a no-op.
func (g *Gateway) Unsubscribe(s *Session) {
	g.mu.Lock()
	removed := g.removeLocked(s, ReasonClientClosed)
	g.mu.Unlock()

	if removed {
		logging.Debug().Uint64("session_id", s.id).Msg("broadcast session closed")
	}
}

func (g *Gateway) removeLocked(s *Session, reason string) bool {
	subs, ok := g.sessions[s]
	if !ok {
		s.close(reason)
		return false
	}
	for eventID := range subs {
		if set, ok := g.events[eventID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(g.events, eventID)
			}
		}
	}
	delete(g.global, s)
	delete(g.sessions, s)
	s.close(reason)

	metrics.BroadcastSessions.Set(float64(len(g.sessions)))
	metrics.BroadcastDisconnects.WithLabelValues(reason).Inc()
	return true
}

// Publish queues msg for the sessions watching eventID right now. It never
// blocks and reports false when the change had to be dropped.
func (g *Gateway) Publish(eventID string, msg models.ChangeMessage) bool {
	frame, err := json.Marshal(Frame{Type: FrameDonationChanged, Data: msg})
	if err != nil {
		logging.Error().Err(err).Str("donation_id", msg.DonationID).Msg("failed to encode change frame")
		metrics.BroadcastDropped.WithLabelValues("encode").Inc()
		return false
	}

	recipients := g.snapshot(eventID)
	if len(recipients) == 0 {
		metrics.BroadcastPublished.Inc()
		return true
	}

	select {
	case g.queue <- delivery{eventID: eventID, frame: frame, recipients: recipients}:
		metrics.BroadcastPublished.Inc()
		return true
	default:
		metrics.BroadcastDropped.WithLabelValues("queue_full").Inc()
		logging.Warn().
			Str("event_id", eventID).
			Str("donation_id", msg.DonationID).
			Msg("broadcast queue full, dropping change")
		return false
	}
}

// snapshot returns the event's subscribers plus global listeners, each once,
// ordered by session id.
func (g *Gateway) snapshot(eventID string) []*Session {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.events[eventID]) + len(g.global)
	seen := make(map[*Session]struct{}, n)
	out := make([]*Session, 0, n)
	for s := range g.events[eventID] {
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for s := range g.global {
		if _, dup := seen[s]; !dup {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// RunWithContext delivers queued changes until ctx is cancelled, then closes
// every session.
func (g *Gateway) RunWithContext(ctx context.Context) error {
	for {
		// Shutdown takes priority over pending deliveries.
		select {
		case <-ctx.Done():
			g.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			g.logGracefulShutdown(ctx)
			return ctx.Err()
		case d := <-g.queue:
			g.deliver(d)
		}
	}
}

func (g *Gateway) deliver(d delivery) {
	var slow []*Session

	g.mu.RLock()
	for _, s := range d.recipients {
		if _, ok := g.sessions[s]; !ok {
			continue
		}
		select {
		case s.send <- d.frame:
		default:
			slow = append(slow, s)
		}
	}
	g.mu.RUnlock()

	if len(slow) == 0 {
		return
	}

	g.mu.Lock()
	for _, s := range slow {
		g.removeLocked(s, ReasonSlowConsumer)
	}
	g.mu.Unlock()

	logging.Warn().
		Str("event_id", d.eventID).
		Int("disconnected", len(slow)).
		Msg("disconnected slow broadcast sessions")
}

// reply sends a control frame to s if it is still registered.
func (g *Gateway) reply(s *Session, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.sessions[s]; !ok {
		return
	}
	select {
	case s.send <- data:
	default:
	}
}

func (g *Gateway) logGracefulShutdown(ctx context.Context) {
	g.mu.Lock()
	sessions := make([]*Session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].id < sessions[j].id })
	for _, s := range sessions {
		g.removeLocked(s, ReasonShutdown)
	}
	g.mu.Unlock()

	logging.Info().
		Str("component", "broadcast-gateway").
		Str("reason", string(getShutdownReason(ctx))).
		Int("sessions_closed", len(sessions)).
		Msg("broadcast gateway stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// SessionCount returns the number of registered sessions.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

// EventSessionCount returns the number of sessions subscribed to eventID,
// not counting global listeners.
func (g *Gateway) EventSessionCount(eventID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.events[eventID])
}

// String implements fmt.Stringer for supervisor logs.
func (g *Gateway) String() string {
	return "broadcast-gateway"
}
