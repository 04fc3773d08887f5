// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

// Package wallet implements the wallet rail against a REST wallet processor.
//
// The processor exposes POST /v1/payments and GET /v1/payments/{id}. A new
// payment returns a redirect URL the donor follows to approve it in their
// wallet app; the outcome arrives later as a signed callback.
package wallet

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body.
const SignatureHeader = "X-Wallet-Signature"

// Callback types.
const (
	EventCompleted = "payment.completed"
	EventFailed    = "payment.failed"
	EventRefunded  = "payment.refunded"
)

// Processor payment statuses.
const (
	statusPending   = "pending"
	statusCompleted = "completed"
	statusDeclined  = "declined"
	statusFailed    = "failed"
	statusCanceled  = "canceled"
)

// Config configures the wallet processor client.
type Config struct {
	BaseURL        string
	APIKey         string
	CallbackSecret string

	// RequestsPerSecond and Burst throttle outbound calls. Zero disables
	// throttling.
	RequestsPerSecond float64
	Burst             int

	Timeout time.Duration
	Retry   provider.RetryPolicy
	Breaker provider.BreakerConfig
}

type paymentRequest struct {
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Reference      string `json:"reference"`
	EventID        string `json:"event_id,omitempty"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type payment struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type callback struct {
	Type    string  `json:"type"`
	Payment payment `json:"payment"`
}

// Adapter is the wallet rail.
type Adapter struct {
	baseURL string
	apiKey  string
	secret  []byte
	client  *http.Client
	limiter *rate.Limiter
	caller  *provider.Caller
}

// New creates the wallet adapter.
func New(cfg Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  []byte(cfg.CallbackSecret),
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		caller:  provider.NewCaller(models.RailWallet, cfg.Retry, cfg.Breaker),
	}
}

// Rail implements provider.Adapter.
func (a *Adapter) Rail() string { return models.RailWallet }

// Initiate creates the payment at the processor.
func (a *Adapter) Initiate(ctx context.Context, amount int64, currency string, meta provider.Metadata) (*provider.Handle, error) {
	body, err := json.Marshal(paymentRequest{
		Amount:         amount,
		Currency:       currency,
		Reference:      meta.DonationID,
		EventID:        meta.EventID,
		Description:    meta.Description,
		IdempotencyKey: meta.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payment request: %w", err)
	}

	p, err := provider.Call(ctx, a.caller, "initiate", func(ctx context.Context) (*payment, error) {
		return a.do(ctx, http.MethodPost, "/v1/payments", body)
	})
	if err != nil {
		return nil, err
	}

	if isDeclined(p.Status) {
		return nil, &provider.RejectedError{Rail: models.RailWallet, Code: p.Status, Reason: "payment " + p.Status}
	}

	return &provider.Handle{
		Rail:         models.RailWallet,
		Ref:          p.ID,
		ClientAction: p.RedirectURL,
		Settled:      p.Status == statusCompleted,
	}, nil
}

// Confirm fetches the payment and maps its status.
func (a *Adapter) Confirm(ctx context.Context, h *provider.Handle) (provider.Outcome, error) {
	return provider.Call(ctx, a.caller, "confirm", func(ctx context.Context) (provider.Outcome, error) {
		p, err := a.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(h.Ref), nil)
		if errors.Is(err, provider.ErrProviderRejected) {
			// Unknown to the processor; it will never complete.
			return provider.OutcomeDeclined, nil
		}
		if err != nil {
			return provider.OutcomePending, err
		}
		return outcomeFor(p.Status), nil
	})
}

// VerifyCallback checks the hex HMAC-SHA256 signature over the raw body.
func (a *Adapter) VerifyCallback(_ context.Context, raw []byte, signature string) (*provider.VerifiedEvent, error) {
	if len(a.secret) == 0 || signature == "" {
		return nil, fmt.Errorf("%w: missing signature", provider.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(raw)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return nil, fmt.Errorf("%w: digest mismatch", provider.ErrSignatureInvalid)
	}

	var cb callback
	if err := json.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("decode wallet callback: %w", err)
	}

	ev := &provider.VerifiedEvent{
		Rail:       models.RailWallet,
		Type:       cb.Type,
		Ref:        cb.Payment.ID,
		DonationID: cb.Payment.Reference,
	}
	switch cb.Type {
	case EventCompleted:
		ev.Outcome = provider.OutcomeConfirmed
	case EventFailed:
		ev.Outcome = provider.OutcomeDeclined
	case EventRefunded:
		ev.Refunded = true
	}
	return ev, nil
}

// Sign returns the signature the processor would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) (*payment, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", provider.ErrProviderUnavailable, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build wallet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", provider.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 500, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode == http.StatusRequestTimeout:
		return nil, fmt.Errorf("%w: wallet returned %d", provider.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		var er errorResponse
		_ = json.Unmarshal(data, &er)
		reason := er.Error.Message
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return nil, &provider.RejectedError{Rail: models.RailWallet, Code: er.Error.Code, Reason: reason}
	}

	var p payment
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode wallet response: %v", provider.ErrProviderUnavailable, err)
	}
	return &p, nil
}

func isDeclined(status string) bool {
	return status == statusDeclined || status == statusFailed || status == statusCanceled
}

func outcomeFor(status string) provider.Outcome {
	switch {
	case status == statusCompleted:
		return provider.OutcomeConfirmed
	case isDeclined(status):
		return provider.OutcomeDeclined
	default:
		return provider.OutcomePending
	}
}
