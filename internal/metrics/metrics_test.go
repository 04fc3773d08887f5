// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/donations", "201"))
	RecordAPIRequest("POST", "/api/v1/donations", "201", 15*time.Millisecond)
	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("POST", "/api/v1/donations", "201"))

	if after-before != 1 {
		t.Errorf("api_requests_total delta = %v, want 1", after-before)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	start := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests) - start; got != 2 {
		t.Errorf("active delta = %v, want 2", got)
	}
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != start {
		t.Errorf("active = %v, want %v", got, start)
	}
}

func TestRecordTransitions(t *testing.T) {
	tests := []struct {
		name   string
		record func()
		value  func() float64
	}{
		{
			name:   "applied",
			record: func() { RecordTransition("PENDING", "SUCCEEDED") },
			value: func() float64 {
				return testutil.ToFloat64(LedgerTransitions.WithLabelValues("PENDING", "SUCCEEDED"))
			},
		},
		{
			name:   "invalid",
			record: func() { RecordInvalidTransition("SUCCEEDED", "FAILED") },
			value: func() float64 {
				return testutil.ToFloat64(LedgerInvalidTransitions.WithLabelValues("SUCCEEDED", "FAILED"))
			},
		},
		{
			name:   "provider call",
			record: func() { RecordProviderCall("card", "confirm", "ok", time.Second) },
			value: func() float64 {
				return testutil.ToFloat64(ProviderCalls.WithLabelValues("card", "confirm", "ok"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.value()
			tt.record()
			if got := tt.value() - before; got != 1 {
				t.Errorf("delta = %v, want 1", got)
			}
		})
	}
}

func TestSetSyncQueueCounts(t *testing.T) {
	SetSyncQueueCounts(3, 10, 1)

	want := map[string]float64{"pending": 3, "synced": 10, "failed": 1}
	for status, v := range want {
		if got := testutil.ToFloat64(SyncQueueEntries.WithLabelValues(status)); got != v {
			t.Errorf("syncqueue_entries{status=%q} = %v, want %v", status, got, v)
		}
	}
}
