// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package syncqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/tallyboard/internal/models"
)

// IdempotencyHeader carries the entry's token to the intake endpoint.
const IdempotencyHeader = "Idempotency-Key"

// Submission failure classes.
var (
	// ErrPermanent means the server refused the entry as sent (validation,
	// authorization, provider rejection). Resubmitting unchanged will fail
	// again until staff fix the cause.
	ErrPermanent = errors.New("syncqueue: submission refused")

	// ErrUnavailable means the server could not be reached or failed
	// transiently.
	ErrUnavailable = errors.New("syncqueue: server unavailable")
)

// SubmitResult is a successful submission.
type SubmitResult struct {
	ServerID string
	Status   models.DonationStatus

	// Duplicate is set when the server already had this token.
	Duplicate bool
}

// SubmitError is a failed submission with the server's reason.
type SubmitError struct {
	Kind       error
	StatusCode int
	Code       string
	Message    string

	// ServerID is set when the server created a donation before failing it.
	ServerID string
}

func (e *SubmitError) Error() string {
	var b strings.Builder
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, "%d ", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *SubmitError) Unwrap() error { return e.Kind }

// Submitter sends one queue entry to the intake endpoint.
type Submitter interface {
	Submit(ctx context.Context, entry *PendingDonation) (*SubmitResult, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, entry *PendingDonation) (*SubmitResult, error)

func (f SubmitterFunc) Submit(ctx context.Context, entry *PendingDonation) (*SubmitResult, error) {
	return f(ctx, entry)
}

// HTTPSubmitter posts entries to POST /api/v1/donations.
type HTTPSubmitter struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSubmitter creates a submitter for the server at baseURL using the
// staff bearer token.
func NewHTTPSubmitter(baseURL, staffToken string, timeout time.Duration) *HTTPSubmitter {
	return &HTTPSubmitter{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/v1/donations",
		token:    staffToken,
		client:   &http.Client{Timeout: timeout},
	}
}

// intakeResponse is the API envelope with a donation summary payload.
type intakeResponse struct {
	Status string                  `json:"status"`
	Data   *models.DonationSummary `json:"data"`
	Error  *models.APIError        `json:"error"`
}

// Submit posts entry and classifies the response:
// 201 synced, 409 duplicate of an earlier success, 400/401/402/403 permanent,
// 5xx, 429 and network errors unavailable.
func (s *HTTPSubmitter) Submit(ctx context.Context, entry *PendingDonation) (*SubmitResult, error) {
	body, err := json.Marshal(entry.Draft())
	if err != nil {
		return nil, fmt.Errorf("marshal draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(IdempotencyHeader, entry.IdempotencyToken)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SubmitError{Kind: ErrUnavailable, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &SubmitError{Kind: ErrUnavailable, StatusCode: resp.StatusCode, Message: "read response: " + err.Error()}
	}

	var env intakeResponse
	decodeErr := json.Unmarshal(data, &env)

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		if decodeErr != nil || env.Data == nil {
			return nil, &SubmitError{Kind: ErrUnavailable, StatusCode: resp.StatusCode, Message: "malformed intake response"}
		}
		return &SubmitResult{ServerID: env.Data.ID, Status: env.Data.Status}, nil

	case resp.StatusCode == http.StatusConflict:
		if decodeErr != nil || env.Data == nil {
			return nil, &SubmitError{Kind: ErrUnavailable, StatusCode: resp.StatusCode, Message: "malformed duplicate response"}
		}
		return &SubmitResult{ServerID: env.Data.ID, Status: env.Data.Status, Duplicate: true}, nil
	}

	serr := &SubmitError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	if decodeErr == nil && env.Error != nil {
		serr.Code = env.Error.Code
		serr.Message = env.Error.Message
	}
	if decodeErr == nil && env.Data != nil {
		serr.ServerID = env.Data.ID
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		serr.Kind = ErrUnavailable
	default:
		serr.Kind = ErrPermanent
	}
	return nil, serr
}
