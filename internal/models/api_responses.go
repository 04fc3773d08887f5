// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package models

import (
	"time"
)

// APIResponse is the envelope for every JSON endpoint.
//
//	{"status": "success", "data": {...}, "metadata": {"timestamp": "..."}}
//	{"status": "error", "error": {"code": "VALIDATION_ERROR", "message": "..."}, "metadata": {...}}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response bookkeeping.
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// APIError is a machine readable error code plus a human message.
//
// Codes used by the intake API:
//   - VALIDATION_ERROR
//   - PROVIDER_REJECTED
//   - PROVIDER_UNAVAILABLE
//   - DUPLICATE_SUPPRESSED
//   - SIGNATURE_INVALID
//   - UNAUTHORIZED
//   - NOT_FOUND
//   - INTERNAL_ERROR
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}
