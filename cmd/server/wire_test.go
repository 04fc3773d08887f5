// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tomtom215/tallyboard/internal/config"
	"github.com/tomtom215/tallyboard/internal/logging"
	"github.com/tomtom215/tallyboard/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func memoryConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 0, Timeout: 30 * time.Second, ShutdownTimeout: time.Second},
		Storage: config.StorageConfig{Backend: "memory"},
		Security: config.SecurityConfig{
			RateLimitDisabled: true,
		},
		Events: []models.EventConfig{
			{ID: "gala", Name: "Spring Gala", Currency: "EUR", GoalAmount: 100000},
		},
	}
}

func TestBuildAppWiresRoutes(t *testing.T) {
	ctx := context.Background()
	a, err := buildApp(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.closeResources()

	if err := a.recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/health/live", http.StatusOK},
		{"/api/v1/health/ready", http.StatusOK},
		{"/api/v1/events/gala/totals", http.StatusOK},
		{"/api/v1/events/other/totals", http.StatusNotFound},
		{"/api/v1/review", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			a.server.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestLoginDisabledWithoutStaff(t *testing.T) {
	a, err := buildApp(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.closeResources()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	a.server.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestBuildAdapters(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.ProvidersConfig
		rails []string
	}{
		{"manual only", config.ProvidersConfig{}, []string{models.RailManual}},
		{
			name: "all rails",
			cfg: config.ProvidersConfig{
				Card:   config.CardConfig{Enabled: true, SecretKey: "sk_test_x", WebhookSecret: "whsec_x"},
				Wallet: config.WalletConfig{Enabled: true, BaseURL: "https://wallet.example.org", APIKey: "k", CallbackSecret: "s"},
			},
			rails: []string{models.RailManual, models.RailCard, models.RailWallet},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapters := buildAdapters(tt.cfg)
			if len(adapters) != len(tt.rails) {
				t.Fatalf("adapters = %d, want %d", len(adapters), len(tt.rails))
			}
			for i, a := range adapters {
				if a.Rail() != tt.rails[i] {
					t.Errorf("adapter %d rail = %q, want %q", i, a.Rail(), tt.rails[i])
				}
			}
		})
	}
}
