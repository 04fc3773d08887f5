// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/tallyboard/internal/broadcast"
	"github.com/tomtom215/tallyboard/internal/logging"
)

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow clients.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin accepts origins listed in security.cors_origins.
// Browsers always send Origin; kiosk displays and scripts that omit it are
// only accepted under a wildcard configuration.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	if h.config == nil {
		return true
	}

	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || (origin != "" && allowed == origin) {
			return true
		}
	}

	h.security.LogOriginRejected(origin, r.RemoteAddr, r.UserAgent())
	return false
}

// WebSocket handles GET /api/v1/ws. With ?event_id=X the session starts
// subscribed to X; otherwise it subscribes by sending commands.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	session := broadcast.NewSession(h.gateway, conn)
	if eventID := r.URL.Query().Get("event_id"); eventID != "" {
		h.gateway.Subscribe(session, eventID)
	} else {
		h.gateway.Register(session)
	}
	session.Start()

	logging.Ctx(r.Context()).Debug().
		Uint64("session_id", session.ID()).
		Str("event_id", r.URL.Query().Get("event_id")).
		Msg("dashboard connected")
}
