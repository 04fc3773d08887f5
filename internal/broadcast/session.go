// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/tallyboard/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

// Client command types.
const (
	CommandSubscribe    = "subscribe"
	CommandUnsubscribe  = "unsubscribe"
	CommandSubscribeAll = "subscribe_all"
	CommandPing         = "ping"
)

var sessionIDCounter atomic.Uint64

// Command is a client to server message.
type Command struct {
	Type    string `json:"type"`
	EventID string `json:"event_id,omitempty"`
}

// Session is one dashboard connection.
type Session struct {
	id      uint64
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte

	closeOnce   sync.Once
	closed      atomic.Bool
	closeReason string
}

// NewSession creates a session for conn. It receives nothing until it is
// subscribed.
func NewSession(g *Gateway, conn *websocket.Conn) *Session {
	return &Session{
		id:      sessionIDCounter.Add(1),
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, g.sessionBuffer),
	}
}

// ID returns the session's process-unique id.
func (s *Session) ID() uint64 { return s.id }

// close closes the send buffer exactly once. The gateway calls it with its
// write lock held, so no delivery can be sending concurrently.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		s.closed.Store(true)
		close(s.send)
	})
}

func (s *Session) isClosed() bool { return s.closed.Load() }

// Start runs the read and write pumps.
func (s *Session) Start() {
	go s.writePump()
	go s.readPump()
}

func (s *Session) readPump() {
	defer func() {
		s.gateway.Unsubscribe(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := s.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("session_id", s.id).Msg("unexpected websocket close")
			}
			return
		}
		s.handle(cmd)
	}
}

// handle applies one client command.
func (s *Session) handle(cmd Command) {
	g := s.gateway
	switch cmd.Type {
	case CommandSubscribe:
		if g.Subscribe(s, cmd.EventID) {
			g.reply(s, Frame{Type: FrameSubscribed, Data: map[string]string{"event_id": cmd.EventID}})
		} else {
			g.reply(s, Frame{Type: FrameError, Data: map[string]string{"error": "event_id required"}})
		}
	case CommandUnsubscribe:
		g.Leave(s, cmd.EventID)
		g.reply(s, Frame{Type: FrameUnsubscribed, Data: map[string]string{"event_id": cmd.EventID}})
	case CommandSubscribeAll:
		g.SubscribeAll(s)
		g.reply(s, Frame{Type: FrameSubscribed, Data: map[string]string{"event_id": "*"}})
	case CommandPing:
		g.reply(s, Frame{Type: FramePong})
	default:
		g.reply(s, Frame{Type: FrameError, Data: map[string]string{"error": "unknown command " + cmd.Type}})
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, closeFrame(s.closeReason))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logging.Debug().Err(err).Uint64("session_id", s.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeFrame(reason string) []byte {
	switch reason {
	case ReasonShutdown:
		return websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	case ReasonSlowConsumer:
		return websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow")
	default:
		return websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	}
}
