// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package config

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour

	minJWTSecretLength = 32
)

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

var validStaffRoles = map[string]bool{
	"staff": true,
	"admin": true,
}

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if err := c.validateSettlement(); err != nil {
		return err
	}

	if err := c.validateProviders(); err != nil {
		return err
	}

	if err := c.validateBroadcast(); err != nil {
		return err
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	return nil
}

// validateSecurity validates staff authentication and request limiting.
func (c *Config) validateSecurity() error {
	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}

	return c.validateStaff()
}

// validateCORS rejects wildcard origins in production while staff logins are
// enabled.
func (c *Config) validateCORS() error {
	if len(c.Security.Staff) > 0 && c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed in production with staff accounts configured. " +
			"Set specific origins: CORS_ORIGINS=https://dashboard.example.org")
	}
	return nil
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// validateStaff requires a strong JWT secret whenever staff can log in, and
// checks every account.
func (c *Config) validateStaff() error {
	if len(c.Security.Staff) == 0 {
		return nil
	}

	if err := c.validateJWTSecret(); err != nil {
		return err
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT must be positive")
	}

	seen := make(map[string]bool, len(c.Security.Staff))
	for _, acct := range c.Security.Staff {
		if acct.Username == "" {
			return fmt.Errorf("staff account username is required")
		}
		if seen[acct.Username] {
			return fmt.Errorf("staff account %q is configured twice", acct.Username)
		}
		seen[acct.Username] = true

		if !validStaffRoles[acct.Role] {
			return fmt.Errorf("staff account %q: role must be staff or admin, got %q", acct.Username, acct.Role)
		}
		if _, err := bcrypt.Cost([]byte(acct.PasswordHash)); err != nil {
			return fmt.Errorf("staff account %q: password_hash is not a bcrypt hash: %w", acct.Username, err)
		}
	}
	return nil
}

func (c *Config) validateJWTSecret() error {
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when staff accounts are configured")
	}
	if len(c.Security.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters for security", minJWTSecretLength)
	}
	if containsPlaceholder(c.Security.JWTSecret) {
		return fmt.Errorf("JWT_SECRET contains a placeholder value - generate a secure secret with: openssl rand -base64 32")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "memory":
		return nil
	case "badger":
		if c.Storage.Path == "" {
			return fmt.Errorf("BADGER_PATH is required when STORAGE_BACKEND=badger")
		}
		return nil
	default:
		return fmt.Errorf("STORAGE_BACKEND must be badger or memory, got %q", c.Storage.Backend)
	}
}

func (c *Config) validateSettlement() error {
	s := c.Settlement
	if s.SweepInterval <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must be positive")
	}
	if s.StuckAfter < 0 {
		return fmt.Errorf("RECONCILE_STUCK_AFTER must not be negative")
	}
	if s.ConfirmTimeout <= 0 {
		return fmt.Errorf("RECONCILE_CONFIRM_TIMEOUT must be positive")
	}
	if s.MaxAttempts < 1 {
		return fmt.Errorf("RECONCILE_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

func (c *Config) validateProviders() error {
	if err := c.validateCard(); err != nil {
		return err
	}
	if err := c.validateWallet(); err != nil {
		return err
	}

	r := c.Providers.Retry
	if r.MaxAttempts < 1 {
		return fmt.Errorf("PROVIDER_RETRY_ATTEMPTS must be at least 1")
	}
	if r.InitialBackoff < 0 || r.MaxBackoff < r.InitialBackoff {
		return fmt.Errorf("PROVIDER_RETRY_MAX_BACKOFF must be at least PROVIDER_RETRY_BACKOFF")
	}

	b := c.Providers.Breaker
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		return fmt.Errorf("PROVIDER_BREAKER_RATIO must be in (0, 1]")
	}
	if b.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_BREAKER_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateCard() error {
	card := c.Providers.Card
	if !card.Enabled {
		return nil
	}
	if card.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when STRIPE_ENABLED=true")
	}
	if card.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required when STRIPE_ENABLED=true")
	}
	if containsPlaceholder(card.SecretKey) {
		return fmt.Errorf("STRIPE_SECRET_KEY contains a placeholder value")
	}
	return nil
}

func (c *Config) validateWallet() error {
	w := c.Providers.Wallet
	if !w.Enabled {
		return nil
	}
	if err := validateHTTPURL(w.BaseURL, "WALLET_BASE_URL"); err != nil {
		return err
	}
	if w.APIKey == "" {
		return fmt.Errorf("WALLET_API_KEY is required when WALLET_ENABLED=true")
	}
	if w.CallbackSecret == "" {
		return fmt.Errorf("WALLET_CALLBACK_SECRET is required when WALLET_ENABLED=true")
	}
	if w.RequestsPerSecond < 0 || w.Burst < 0 {
		return fmt.Errorf("WALLET_REQUESTS_PER_SECOND and WALLET_BURST must not be negative")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.QueueSize < 1 || c.Broadcast.SessionBuffer < 1 || c.Broadcast.BusBuffer < 1 {
		return fmt.Errorf("broadcast queue, session and bus buffers must be at least 1")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.URL == "" {
		return nil
	}
	return validateEndpointURL(c.Notify.URL, "NOTIFY_URL")
}

// validateEvents checks the configured events. Ids must be unique and
// currencies ISO 4217 shaped.
func (c *Config) validateEvents() error {
	seen := make(map[string]bool, len(c.Events))
	for i := range c.Events {
		ev := &c.Events[i]
		if ev.ID == "" {
			return fmt.Errorf("events[%d]: id is required", i)
		}
		if seen[ev.ID] {
			return fmt.Errorf("event %q is configured twice", ev.ID)
		}
		seen[ev.ID] = true

		ev.Currency = strings.ToUpper(ev.Currency)
		if len(ev.Currency) != 3 {
			return fmt.Errorf("event %q: currency must be a 3 letter code", ev.ID)
		}
		if ev.GoalAmount < 0 {
			return fmt.Errorf("event %q: goal_amount must not be negative", ev.ID)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Server.Environment)
	return env == "production" || env == "prod"
}

// placeholderPatterns defines common placeholder patterns that indicate
// the user forgot to set a real value.
var placeholderPatterns = []string{
	"REPLACE",
	"CHANGEME",
	"CHANGE_ME",
	"YOUR_SECRET",
	"YOUR_PASSWORD",
	"PLACEHOLDER",
	"TODO",
	"FIXME",
	"XXX",
	"EXAMPLE",
}

func containsPlaceholder(value string) bool {
	upperValue := strings.ToUpper(value)
	for _, pattern := range placeholderPatterns {
		if strings.Contains(upperValue, pattern) {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS reports a wildcard origin outside production, where it
// is allowed but lets any site drive the staff API from a logged-in browser.
func (c *Config) ShouldWarnAboutCORS() bool {
	return len(c.Security.Staff) > 0 && c.hasWildcardCORS()
}
