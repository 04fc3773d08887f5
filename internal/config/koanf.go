// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tallyboard/config.yaml",
	"/etc/tallyboard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			JWTSecret:         "",
			SessionTimeout:    12 * time.Hour,
			RateLimitReqs:     120,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
		},
		Storage: StorageConfig{
			Backend:    "badger",
			Path:       "/data/tallyboard",
			SyncWrites: true,
		},
		Settlement: SettlementConfig{
			SweepInterval:  30 * time.Second,
			StuckAfter:     2 * time.Minute,
			ConfirmTimeout: 10 * time.Second,
			MaxAttempts:    10,
		},
		Providers: ProvidersConfig{
			Wallet: WalletConfig{
				RequestsPerSecond: 20,
				Burst:             5,
				Timeout:           15 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 200 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
				CallTimeout:    10 * time.Second,
			},
			Breaker: BreakerConfig{
				MaxRequests:  3,
				Interval:     time.Minute,
				Timeout:      30 * time.Second,
				MinRequests:  10,
				FailureRatio: 0.6,
			},
		},
		Broadcast: BroadcastConfig{
			QueueSize:     1024,
			SessionBuffer: 64,
			BusBuffer:     1024,
		},
		Notify: NotifyConfig{
			Timeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := loadLayers(k, defaultConfig(), findConfigFile(), envTransformFunc, sliceConfigPaths); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.applyStaffAccounts(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadLayers applies defaults, the optional file at path and the environment
// to k, in that order.
func loadLayers(k *koanf.Koanf, defaults interface{}, path string, envFn func(string) string, slicePaths []string) error {
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envFn), nil); err != nil {
		return fmt.Errorf("failed to load environment variables: %w", err)
	}

	return processSliceFields(k, slicePaths)
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf, paths []string) error {
	for _, path := range paths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		trimmed := splitList(strVal)
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyStaffAccounts appends accounts from the STAFF_ACCOUNTS form to the
// structured list.
func (c *Config) applyStaffAccounts() error {
	for _, entry := range splitList(c.Security.StaffAccounts) {
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return fmt.Errorf("STAFF_ACCOUNTS entry %q must be user:bcrypt-hash:role", parts[0])
		}
		c.Security.Staff = append(c.Security.Staff, StaffAccount{
			Username:     parts[0],
			PasswordHash: parts[1],
			Role:         parts[2],
		})
	}
	return nil
}

// envMappings maps plain environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	// Security
	"jwt_secret":          "security.jwt_secret",
	"session_timeout":     "security.session_timeout",
	"staff_accounts":      "security.staff_accounts",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",

	// Storage
	"storage_backend":    "storage.backend",
	"badger_path":        "storage.path",
	"badger_sync_writes": "storage.sync_writes",

	// Settlement
	"reconcile_interval":        "settlement.sweep_interval",
	"reconcile_stuck_after":     "settlement.stuck_after",
	"reconcile_confirm_timeout": "settlement.confirm_timeout",
	"reconcile_max_attempts":    "settlement.max_attempts",

	// Card rail
	"stripe_enabled":        "providers.card.enabled",
	"stripe_secret_key":     "providers.card.secret_key",
	"stripe_webhook_secret": "providers.card.webhook_secret",

	// Wallet rail
	"wallet_enabled":             "providers.wallet.enabled",
	"wallet_base_url":            "providers.wallet.base_url",
	"wallet_api_key":             "providers.wallet.api_key",
	"wallet_callback_secret":     "providers.wallet.callback_secret",
	"wallet_requests_per_second": "providers.wallet.requests_per_second",
	"wallet_burst":               "providers.wallet.burst",
	"wallet_timeout":             "providers.wallet.timeout",

	// Provider resilience
	"provider_retry_attempts":       "providers.retry.max_attempts",
	"provider_retry_backoff":        "providers.retry.initial_backoff",
	"provider_retry_max_backoff":    "providers.retry.max_backoff",
	"provider_call_timeout":         "providers.retry.call_timeout",
	"provider_breaker_max_requests": "providers.breaker.max_requests",
	"provider_breaker_interval":     "providers.breaker.interval",
	"provider_breaker_timeout":      "providers.breaker.timeout",
	"provider_breaker_min_requests": "providers.breaker.min_requests",
	"provider_breaker_ratio":        "providers.breaker.failure_ratio",

	// Broadcast
	"broadcast_queue_size":     "broadcast.queue_size",
	"broadcast_session_buffer": "broadcast.session_buffer",
	"broadcast_bus_buffer":     "broadcast.bus_buffer",

	// Notify
	"notify_url":     "notify.url",
	"notify_secret":  "notify.secret",
	"notify_timeout": "notify.timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - STRIPE_SECRET_KEY -> providers.card.secret_key
//   - RECONCILE_MAX_ATTEMPTS -> settlement.max_attempts
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables never
	// pollute the config.
	return ""
}
