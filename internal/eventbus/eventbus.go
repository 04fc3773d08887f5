// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package eventbus carries ledger change notifications to the broadcast
// gateway over an in-process Watermill GoChannel.
//
// The ledger publishes while it holds a donation lock. Publish blocks until
// every subscriber has acked the message, so notifications for one donation
// reach the gateway in the order their transitions were applied. The wait is
// short: the Forwarder acks as soon as the message has been handed to the
// gateway's own bounded, non-blocking queue. With no subscriber, Publish
// returns immediately and the message is dropped.
package eventbus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

// TopicDonationsChanged carries one ChangeMessage per applied transition.
const TopicDonationsChanged = "donations.changed"

// Metadata keys set on every message.
const (
	MetaEventID    = "event_id"
	MetaDonationID = "donation_id"
	MetaStatus     = "status"
)

// Config configures the bus.
type Config struct {
	// OutputBuffer is the per-subscriber channel size.
	OutputBuffer int64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{OutputBuffer: 1024}
}

// Bus is the change notification bus. It implements ledger.Notifier.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// New creates a bus.
func New(cfg Config) *Bus {
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = DefaultConfig().OutputBuffer
	}
	logger := watermill.NewSlogLogger(logging.NewSlogLogger().With("component", "eventbus"))

	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            cfg.OutputBuffer,
			BlockPublishUntilSubscriberAck: true,
		}, logger),
		logger: logger,
	}
}

// Notify publishes msg on TopicDonationsChanged.
func (b *Bus) Notify(ctx context.Context, msg models.ChangeMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode change message: %w", err)
	}

	wm := message.NewMessage(watermill.NewUUID(), payload)
	wm.Metadata.Set(MetaEventID, msg.EventID)
	wm.Metadata.Set(MetaDonationID, msg.DonationID)
	wm.Metadata.Set(MetaStatus, string(msg.Status))
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		wm.Metadata.Set("correlation_id", id)
	}

	if err := b.pubsub.Publish(TopicDonationsChanged, wm); err != nil {
		return fmt.Errorf("publish change message: %w", err)
	}
	return nil
}

// Subscribe returns the raw message stream for the change topic.
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicDonationsChanged)
}

// Close stops delivery to every subscriber.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
