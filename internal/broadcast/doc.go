// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

/*
Package broadcast fans donation changes out to live dashboard sessions.

A Gateway keeps three indexes under one RWMutex: the sessions subscribed to
each event, the global listeners that receive every event, and the reverse
map from a session to its subscriptions. There are no package level
registries; every server owns its gateway.

# Delivery

Publish never blocks. It encodes the frame once, snapshots the recipients
that are subscribed at that moment and pushes the delivery onto a bounded
queue. When the queue is full the change is dropped and counted; dashboards
recover by refetching totals.

RunWithContext drains the queue. Each snapshotted recipient that is still
registered gets the frame through a non-blocking send on its own buffer. A
session whose buffer is full is too slow to keep up and is disconnected, so
one stalled browser can never hold back the others.

# Wire format

Every frame is a JSON envelope:

	{"type": "donation.changed", "data": {"donation_id": "...", "event_id": "...",
	 "amount": 10000, "currency": "EUR", "donor_name": null,
	 "status": "SUCCEEDED", "occurred_at": "2026-05-01T12:00:00Z"}}

Clients send commands in the same envelope shape:

	{"type": "subscribe", "event_id": "gala-2026"}
	{"type": "unsubscribe", "event_id": "gala-2026"}
	{"type": "subscribe_all"}
	{"type": "ping"}

Delivery is at-least-once from the client's point of view and carries no
sequence numbers. Clients deduplicate by donation_id and status.
*/
package broadcast
