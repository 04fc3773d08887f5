// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package config

import (
	"time"

	"github.com/tomtom215/tallyboard/internal/models"
)

// Config holds the server configuration.
type Config struct {
	Server     ServerConfig         `koanf:"server"`
	Security   SecurityConfig       `koanf:"security"`
	Storage    StorageConfig        `koanf:"storage"`
	Settlement SettlementConfig     `koanf:"settlement"`
	Providers  ProvidersConfig      `koanf:"providers"`
	Broadcast  BroadcastConfig      `koanf:"broadcast"`
	Notify     NotifyConfig         `koanf:"notify"`
	Events     []models.EventConfig `koanf:"events"`
	Logging    LoggingConfig        `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// SecurityConfig holds staff authentication and request limiting settings.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"`
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// Staff accounts allowed to log in. Password hashes are bcrypt.
	Staff []StaffAccount `koanf:"staff"`

	// StaffAccounts is the env form of Staff:
	// "user:bcrypt-hash:role,user2:bcrypt-hash:role".
	StaffAccounts string `koanf:"staff_accounts"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// CORSOrigins also gates websocket upgrades.
	CORSOrigins []string `koanf:"cors_origins"`
}

// StaffAccount is one configured staff login.
type StaffAccount struct {
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
	Role         string `koanf:"role"`
}

// StorageConfig selects the donation store.
type StorageConfig struct {
	// Backend is badger or memory.
	Backend    string `koanf:"backend"`
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// SettlementConfig tunes the reconciler.
type SettlementConfig struct {
	SweepInterval  time.Duration `koanf:"sweep_interval"`
	StuckAfter     time.Duration `koanf:"stuck_after"`
	ConfirmTimeout time.Duration `koanf:"confirm_timeout"`
	MaxAttempts    int           `koanf:"max_attempts"`
}

// ProvidersConfig holds per rail credentials and the shared resilience policy.
type ProvidersConfig struct {
	Card    CardConfig    `koanf:"card"`
	Wallet  WalletConfig  `koanf:"wallet"`
	Retry   RetryConfig   `koanf:"retry"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// CardConfig configures the Stripe card rail.
type CardConfig struct {
	Enabled       bool   `koanf:"enabled"`
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
}

// WalletConfig configures the wallet processor rail.
type WalletConfig struct {
	Enabled           bool          `koanf:"enabled"`
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	CallbackSecret    string        `koanf:"callback_secret"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
	Timeout           time.Duration `koanf:"timeout"`
}

// RetryConfig bounds retries of provider calls.
type RetryConfig struct {
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff"`
	CallTimeout    time.Duration `koanf:"call_timeout"`
}

// BreakerConfig configures the per rail circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// BroadcastConfig sizes the dashboard fan-out.
type BroadcastConfig struct {
	QueueSize     int   `koanf:"queue_size"`
	SessionBuffer int   `koanf:"session_buffer"`
	BusBuffer     int64 `koanf:"bus_buffer"`
}

// NotifyConfig configures the receipt and review webhook. An empty URL
// disables it.
type NotifyConfig struct {
	URL     string        `koanf:"url"`
	Secret  string        `koanf:"secret"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load reads configuration from defaults, an optional YAML file and the
// environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
