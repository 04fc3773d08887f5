// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/tallyboard/internal/auth"
	"github.com/tomtom215/tallyboard/internal/authz"
	"github.com/tomtom215/tallyboard/internal/broadcast"
	"github.com/tomtom215/tallyboard/internal/config"
	"github.com/tomtom215/tallyboard/internal/ledger"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
	"github.com/tomtom215/tallyboard/internal/provider"
	"github.com/tomtom215/tallyboard/internal/provider/manual"
	"github.com/tomtom215/tallyboard/internal/settlement"
	"github.com/tomtom215/tallyboard/internal/store"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

const testPassword = "correct horse battery"

// fakeCard settles nothing by itself; callbacks decide the outcome.
type fakeCard struct {
	mu          sync.Mutex
	initiateErr error
}

func (f *fakeCard) Rail() string { return models.RailCard }

func (f *fakeCard) Initiate(_ context.Context, _ int64, _ string, meta provider.Metadata) (*provider.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return &provider.Handle{
		Rail:         models.RailCard,
		Ref:          "pi_" + meta.DonationID,
		ClientAction: "secret_" + meta.DonationID,
	}, nil
}

func (f *fakeCard) Confirm(context.Context, *provider.Handle) (provider.Outcome, error) {
	return provider.OutcomePending, nil
}

// VerifyCallback accepts the signature "good" and a body of
// {"ref": "...", "outcome": "confirmed" | "declined"}.
func (f *fakeCard) VerifyCallback(_ context.Context, raw []byte, signature string) (*provider.VerifiedEvent, error) {
	if signature != "good" {
		return nil, provider.ErrSignatureInvalid
	}
	var body struct {
		Ref     string `json:"ref"`
		Outcome string `json:"outcome"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	ev := &provider.VerifiedEvent{Rail: models.RailCard, Type: "payment_intent." + body.Outcome, Ref: body.Ref}
	switch body.Outcome {
	case "confirmed":
		ev.Outcome = provider.OutcomeConfirmed
	case "declined":
		ev.Outcome = provider.OutcomeDeclined
	default:
		ev.Outcome = provider.OutcomePending
	}
	return ev, nil
}

func (f *fakeCard) fail(err error) {
	f.mu.Lock()
	f.initiateErr = err
	f.mu.Unlock()
}

type testServer struct {
	router  http.Handler
	handler *Handler
	ledger  *ledger.Ledger
	gateway *broadcast.Gateway
	card    *fakeCard
	jwt     *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	if err := store.SeedEvents(ctx, mem, []models.EventConfig{
		{ID: "gala", Name: "Spring Gala", Currency: "EUR", GoalAmount: 5000000},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw := broadcast.NewGateway(broadcast.Config{QueueSize: 64, SessionBuffer: 16})
	l := ledger.New(mem, ledger.NotifierFunc(func(_ context.Context, msg models.ChangeMessage) error {
		gw.Publish(msg.EventID, msg)
		return nil
	}))

	card := &fakeCard{}
	coord := settlement.NewCoordinator(l, mem, provider.NewRegistry(card, manual.New()), settlement.Options{})

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	sec := &config.SecurityConfig{
		JWTSecret:         "test-secret-that-is-at-least-32-characters",
		SessionTimeout:    time.Hour,
		RateLimitDisabled: true,
		CORSOrigins:       []string{"https://dash.example.org"},
		Staff: []config.StaffAccount{
			{Username: "sam", PasswordHash: string(hash), Role: "staff"},
			{Username: "alex", PasswordHash: string(hash), Role: "admin"},
		},
	}
	jwtMgr, err := auth.NewJWTManager(sec)
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	staff, err := auth.NewStaffDirectory(sec.Staff)
	if err != nil {
		t.Fatalf("staff: %v", err)
	}
	enforcer, err := authz.NewEnforcer()
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}

	h := NewHandler(Deps{
		Coordinator: coord,
		Ledger:      l,
		Store:       mem,
		Gateway:     gw,
		Config:      &config.Config{Security: *sec},
		JWTManager:  jwtMgr,
		Staff:       staff,
	})
	router := NewRouter(h, auth.NewMiddleware(jwtMgr), authz.NewMiddleware(enforcer), NewChiMiddleware(ChiMiddlewareConfigFromSecurity(sec)))

	return &testServer{router: router.SetupChi(), handler: h, ledger: l, gateway: gw, card: card, jwt: jwtMgr}
}

func (s *testServer) token(t *testing.T, user, role string) string {
	t.Helper()
	tok, _, err := s.jwt.GenerateToken(user, role)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return tok
}

type request struct {
	method  string
	path    string
	body    interface{}
	token   string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	switch b := req.body.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}

	r := httptest.NewRequest(req.method, req.path, body)
	r.RemoteAddr = "192.0.2.10:4000"
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

type envelope struct {
	Status   string           `json:"status"`
	Data     json.RawMessage  `json:"data"`
	Metadata models.Metadata  `json:"metadata"`
	Error    *models.APIError `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func summaryOf(t *testing.T, env envelope) models.DonationSummary {
	t.Helper()
	var sum models.DonationSummary
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatalf("decode summary %s: %v", env.Data, err)
	}
	return sum
}

func cardDraft() models.DonationDraft {
	return models.DonationDraft{EventID: "gala", Amount: 2500, Currency: "EUR", Method: models.MethodCard, DonorName: "Ada", DonorEmail: "ada@example.org"}
}

func submit(t *testing.T, s *testServer, draft models.DonationDraft, key, token string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, request{
		method:  http.MethodPost,
		path:    "/api/v1/donations",
		body:    draft,
		token:   token,
		headers: map[string]string{IdempotencyHeader: key},
	})
}

func TestSubmitCardDonation(t *testing.T) {
	s := newTestServer(t)

	w := submit(t, s, cardDraft(), "key-1", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	env := decode(t, w)
	if env.Status != "success" {
		t.Errorf("envelope status = %q", env.Status)
	}
	if env.Metadata.RequestID == "" || w.Header().Get("X-Request-ID") != env.Metadata.RequestID {
		t.Errorf("request id %q not echoed (header %q)", env.Metadata.RequestID, w.Header().Get("X-Request-ID"))
	}
	sum := summaryOf(t, env)
	if sum.Status != models.StatusPending {
		t.Errorf("status = %s, want PENDING", sum.Status)
	}
	if sum.ClientAction != "secret_"+sum.ID {
		t.Errorf("client_action = %q", sum.ClientAction)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("ada@example.org")) {
		t.Error("donor email leaked in intake response")
	}
}

func TestSubmitDuplicateReturnsOriginal(t *testing.T) {
	s := newTestServer(t)

	first := summaryOf(t, decode(t, submit(t, s, cardDraft(), "key-dup", "")))

	w := submit(t, s, cardDraft(), "key-dup", "")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	env := decode(t, w)
	if env.Error == nil || env.Error.Code != ErrCodeDuplicate {
		t.Fatalf("error = %+v", env.Error)
	}
	if got := summaryOf(t, env); got.ID != first.ID {
		t.Errorf("duplicate id = %s, want %s", got.ID, first.ID)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name     string
		draft    models.DonationDraft
		key      string
		rawBody  string
		card     error
		status   int
		code     string
		withData bool
	}{
		{
			name:   "missing idempotency key",
			draft:  cardDraft(),
			status: http.StatusBadRequest,
			code:   ErrCodeValidation,
		},
		{
			name:   "zero amount",
			draft:  models.DonationDraft{EventID: "gala", Amount: 0, Currency: "EUR", Method: models.MethodCard},
			key:    "k",
			status: http.StatusBadRequest,
			code:   ErrCodeValidation,
		},
		{
			name:   "manual method without staff",
			draft:  models.DonationDraft{EventID: "gala", Amount: 1000, Currency: "EUR", Method: models.MethodCash},
			key:    "k",
			status: http.StatusBadRequest,
			code:   ErrCodeValidation,
		},
		{
			name:    "malformed body",
			rawBody: "{not json",
			key:     "k",
			status:  http.StatusBadRequest,
			code:    ErrCodeValidation,
		},
		{
			name:     "provider declines",
			draft:    cardDraft(),
			key:      "k",
			card:     &provider.RejectedError{Rail: models.RailCard, Code: "insufficient_funds", Reason: "Your card has insufficient funds."},
			status:   http.StatusPaymentRequired,
			code:     ErrCodeProviderRejected,
			withData: true,
		},
		{
			name:     "provider unavailable",
			draft:    cardDraft(),
			key:      "k",
			card:     fmt.Errorf("%w: timeout", provider.ErrProviderUnavailable),
			status:   http.StatusServiceUnavailable,
			code:     ErrCodeProviderUnavailable,
			withData: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.card.fail(tt.card)

			req := request{method: http.MethodPost, path: "/api/v1/donations", body: tt.draft, headers: map[string]string{}}
			if tt.rawBody != "" {
				req.body = tt.rawBody
			}
			if tt.key != "" {
				req.headers[IdempotencyHeader] = tt.key
			}
			w := s.do(t, req)

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			env := decode(t, w)
			if env.Status != "error" || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("error = %+v, want code %s", env.Error, tt.code)
			}
			if tt.withData && len(env.Data) == 0 {
				t.Error("expected the donation summary alongside the error")
			}
			if tt.status == http.StatusServiceUnavailable && w.Header().Get("Retry-After") == "" {
				t.Error("missing Retry-After on 503")
			}
		})
	}
}

func TestSubmitValidationDetails(t *testing.T) {
	s := newTestServer(t)

	draft := models.DonationDraft{EventID: "gala", Amount: 100, Currency: "USD", Method: models.MethodCard}
	env := decode(t, submit(t, s, draft, "k", ""))
	if env.Error == nil || env.Error.Details == nil {
		t.Fatalf("missing details: %+v", env.Error)
	}
	fields, ok := env.Error.Details["fields"].([]interface{})
	if !ok {
		t.Fatalf("details.fields = %#v", env.Error.Details["fields"])
	}
	found := false
	for _, f := range fields {
		if m, ok := f.(map[string]interface{}); ok && m["field"] == "currency" {
			found = true
		}
	}
	if !found {
		t.Errorf("fields = %v, want currency", fields)
	}
}

func TestManualDonationByStaff(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(t, "sam", "staff")

	draft := models.DonationDraft{EventID: "gala", Amount: 5000, Currency: "EUR", Method: models.MethodCash, DonorName: "Grace", Anonymous: true}
	w := submit(t, s, draft, "cash-1", tok)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	sum := summaryOf(t, decode(t, w))
	if sum.Status != models.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", sum.Status)
	}
	if sum.DonorName != nil {
		t.Error("anonymous donor name returned")
	}

	rec := s.do(t, request{method: http.MethodGet, path: "/api/v1/donations/" + sum.ID + "/record", token: tok})
	if rec.Code != http.StatusOK {
		t.Fatalf("record status = %d", rec.Code)
	}
	var d models.Donation
	if err := json.Unmarshal(decode(t, rec).Data, &d); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if d.RecordedBy != "sam" || d.DonorName != "Grace" {
		t.Errorf("record = %+v", d)
	}

	totals := s.do(t, request{method: http.MethodGet, path: "/api/v1/events/gala/totals"})
	if totals.Code != http.StatusOK {
		t.Fatalf("totals status = %d", totals.Code)
	}
	var tt models.EventTotals
	if err := json.Unmarshal(decode(t, totals).Data, &tt); err != nil {
		t.Fatalf("decode totals: %v", err)
	}
	if tt.Raised != 5000 || tt.Count != 1 {
		t.Errorf("totals = %+v", tt)
	}
}

func TestGetDonation(t *testing.T) {
	s := newTestServer(t)
	sum := summaryOf(t, decode(t, submit(t, s, cardDraft(), "k", "")))

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"public summary", "/api/v1/donations/" + sum.ID, "", http.StatusOK},
		{"unknown donation", "/api/v1/donations/missing", "", http.StatusNotFound},
		{"record needs staff", "/api/v1/donations/" + sum.ID + "/record", "", http.StatusUnauthorized},
		{"record with bad token", "/api/v1/donations/" + sum.ID + "/record", "garbage", http.StatusUnauthorized},
		{"unknown event totals", "/api/v1/events/nope/totals", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodGet, path: tt.path, token: tt.token})
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestProviderWebhook(t *testing.T) {
	s := newTestServer(t)
	sum := summaryOf(t, decode(t, submit(t, s, cardDraft(), "k", "")))

	callback := func(rail, sig, body string) *httptest.ResponseRecorder {
		headers := map[string]string{}
		if sig != "" {
			headers["Stripe-Signature"] = sig
		}
		return s.do(t, request{method: http.MethodPost, path: "/api/v1/webhooks/" + rail, body: body, headers: headers})
	}

	good := fmt.Sprintf(`{"ref":%q,"outcome":"confirmed"}`, sum.ExternalRef)

	tests := []struct {
		name   string
		rail   string
		sig    string
		body   string
		status int
		code   string
	}{
		{"unknown rail", "bank", "good", good, http.StatusNotFound, ErrCodeNotFound},
		{"manual rail has no callbacks", "cash", "good", good, http.StatusNotFound, ErrCodeNotFound},
		{"missing signature", "card", "", good, http.StatusBadRequest, ErrCodeSignatureInvalid},
		{"bad signature", "card", "forged", good, http.StatusBadRequest, ErrCodeSignatureInvalid},
		{"undecodable body", "card", "good", "{", http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := callback(tt.rail, tt.sig, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if env := decode(t, w); env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want %s", env.Error, tt.code)
			}
		})
	}

	if d, _ := s.ledger.Get(context.Background(), sum.ID); d.Status != models.StatusPending {
		t.Fatalf("rejected callbacks changed status to %s", d.Status)
	}

	for i := 0; i < 2; i++ {
		w := callback("card", "good", good)
		if w.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d (body %s)", i, w.Code, w.Body.String())
		}
	}

	d, err := s.ledger.Get(context.Background(), sum.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != models.StatusSucceeded {
		t.Errorf("status = %s, want SUCCEEDED", d.Status)
	}
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		body     interface{}
		status   int
		wantRole string
	}{
		{"valid staff", LoginRequest{Username: "sam", Password: testPassword}, http.StatusOK, "staff"},
		{"valid admin", LoginRequest{Username: "alex", Password: testPassword}, http.StatusOK, "admin"},
		{"wrong password", LoginRequest{Username: "sam", Password: "nope"}, http.StatusUnauthorized, ""},
		{"unknown user", LoginRequest{Username: "mallory", Password: testPassword}, http.StatusUnauthorized, ""},
		{"missing password", LoginRequest{Username: "sam"}, http.StatusBadRequest, ""},
		{"malformed body", "[]", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: tt.body})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			if tt.wantRole == "" {
				return
			}

			var resp LoginResponse
			if err := json.Unmarshal(decode(t, w).Data, &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Role != tt.wantRole || resp.Token == "" {
				t.Fatalf("login response = %+v", resp)
			}

			me := s.do(t, request{method: http.MethodGet, path: "/api/v1/auth/me", token: resp.Token})
			if me.Code != http.StatusOK {
				t.Fatalf("me status = %d", me.Code)
			}
			var id StaffIdentity
			if err := json.Unmarshal(decode(t, me).Data, &id); err != nil {
				t.Fatalf("decode me: %v", err)
			}
			if id.Role != tt.wantRole {
				t.Errorf("me role = %q, want %q", id.Role, tt.wantRole)
			}
		})
	}
}

func TestLoginDisabledWithoutStaff(t *testing.T) {
	s := newTestServer(t)
	s.handler.jwtManager = nil
	s.handler.staff = nil

	w := s.do(t, request{method: http.MethodPost, path: "/api/v1/auth/login", body: LoginRequest{Username: "sam", Password: testPassword}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != ErrCodeAuthDisabled {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestReviewQueue(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	s.card.fail(&provider.RejectedError{Rail: models.RailCard, Code: "card_declined", Reason: "declined"})
	failed := summaryOf(t, decode(t, submit(t, s, cardDraft(), "k-fail", "")))
	if _, err := s.ledger.Flag(ctx, failed.ID, "late_success"); err != nil {
		t.Fatalf("flag: %v", err)
	}

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"staff", s.token(t, "sam", "staff"), http.StatusForbidden},
		{"admin", s.token(t, "alex", "admin"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, request{method: http.MethodGet, path: "/api/v1/review", token: tt.token})
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var items []ReviewItem
			if err := json.Unmarshal(decode(t, w).Data, &items); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(items) != 1 || items[0].ID != failed.ID || items[0].ReviewFlag != "late_success" {
				t.Errorf("review = %+v", items)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	live := s.do(t, request{method: http.MethodGet, path: "/api/v1/health/live"})
	if live.Code != http.StatusOK {
		t.Fatalf("live status = %d", live.Code)
	}

	ready := s.do(t, request{method: http.MethodGet, path: "/api/v1/health/ready"})
	if ready.Code != http.StatusOK {
		t.Fatalf("ready status = %d", ready.Code)
	}
	if env := decode(t, ready); env.Status != "ready" {
		t.Errorf("ready envelope status = %q", env.Status)
	}

	s.handler.AddReadinessCheck("store", func(context.Context) error { return fmt.Errorf("disk gone") })
	ready = s.do(t, request{method: http.MethodGet, path: "/api/v1/health/ready"})
	if ready.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d, want 503", ready.Code)
	}
	env := decode(t, ready)
	if env.Status != "not_ready" || env.Error == nil || env.Error.Code != ErrCodeNotReady {
		t.Errorf("envelope = %+v", env)
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, request{method: http.MethodGet, path: "/api/v1/nothing-here"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if env := decode(t, w); env.Error == nil || env.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v", env.Error)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(t, request{method: http.MethodGet, path: "/api/v1/health/live"})

	w := s.do(t, request{method: http.MethodGet, path: "/metrics"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("/api/v1/health/live")) {
		t.Error("request metrics missing the health route")
	}
}
