// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/tallyboard/internal/broadcast"
	"github.com/tomtom215/tallyboard/internal/models"
)

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws" + query
}

func TestWebSocketOriginCheck(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{"configured origin", "https://dash.example.org", true},
		{"foreign origin", "https://evil.example.com", false},
		{"no origin", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
			if tt.ok {
				if err != nil {
					t.Fatalf("dial: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded, want rejection")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("response = %v, want 403", resp)
			}
		})
	}
}

func TestWebSocketReceivesEventChanges(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.gateway.RunWithContext(ctx) }()

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://dash.example.org"}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?event_id=gala"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The subscription is made after the handshake completes.
	deadline := time.Now().Add(2 * time.Second)
	for s.gateway.EventSessionCount("gala") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	draft := models.DonationDraft{EventID: "gala", Amount: 4200, Currency: "EUR", Method: models.MethodCash, DonorName: "Lin"}
	w := submit(t, s, draft, "ws-cash", s.token(t, "sam", "staff"))
	if w.Code != http.StatusCreated {
		t.Fatalf("submit status = %d (body %s)", w.Code, w.Body.String())
	}
	sum := summaryOf(t, decode(t, w))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var frame struct {
		Type string               `json:"type"`
		Data models.ChangeMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	if frame.Type != broadcast.FrameDonationChanged {
		t.Fatalf("frame type = %q", frame.Type)
	}
	if frame.Data.DonationID != sum.ID || frame.Data.Amount != 4200 || frame.Data.Status != models.StatusSucceeded {
		t.Errorf("change = %+v", frame.Data)
	}
}
