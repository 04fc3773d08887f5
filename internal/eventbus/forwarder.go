// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package eventbus

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

// Publisher is the gateway side of the forwarder.
type Publisher interface {
	Publish(eventID string, msg models.ChangeMessage) bool
}

// Forwarder moves change messages from the bus into the broadcast gateway.
type Forwarder struct {
	bus    *Bus
	target Publisher
}

// NewForwarder creates a forwarder from bus to target.
func NewForwarder(bus *Bus, target Publisher) *Forwarder {
	return &Forwarder{bus: bus, target: target}
}

// RunWithContext subscribes and forwards until ctx is cancelled or the bus is
// closed. Undecodable messages are acked and dropped.
func (f *Forwarder) RunWithContext(ctx context.Context) error {
	messages, err := f.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicDonationsChanged, err)
	}

	logging.Info().Str("topic", TopicDonationsChanged).Msg("change forwarder started")

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("change forwarder stopped")
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				logging.Info().Msg("change bus closed, forwarder stopping")
				return nil
			}

			var change models.ChangeMessage
			if err := json.Unmarshal(msg.Payload, &change); err != nil {
				logging.Error().
					Err(err).
					Str("message_uuid", msg.UUID).
					Msg("dropping undecodable change message")
				msg.Ack()
				continue
			}

			f.target.Publish(change.EventID, change)
			msg.Ack()
		}
	}
}

func (f *Forwarder) String() string {
	return "eventbus-forwarder"
}
