// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package models

// EventConfig is the per event configuration intake validates against.
type EventConfig struct {
	ID         string `json:"id" koanf:"id"`
	Name       string `json:"name" koanf:"name"`
	Currency   string `json:"currency" koanf:"currency"`
	GoalAmount int64  `json:"goal_amount" koanf:"goal_amount"`
}

// EventTotals is the catch-up view dashboards refetch after reconnecting.
type EventTotals struct {
	EventID    string `json:"event_id"`
	Currency   string `json:"currency"`
	GoalAmount int64  `json:"goal_amount"`
	Raised     int64  `json:"raised"`
	Count      int    `json:"count"`
	Refunded   int64  `json:"refunded"`
}
