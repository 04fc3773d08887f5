// Tallyboard - Live Donation Intake and Broadcast
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tallyboard

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// Security event names.
const (
	EventCallbackSignatureInvalid = "callback_signature_invalid"
	EventStaffTokenInvalid        = "staff_token_invalid"
	EventStaffLoginFailed         = "staff_login_failed"
	EventOriginRejected           = "websocket_origin_rejected"
)

// SecurityEvent is a security-relevant occurrence such as a forged provider
// callback or a rejected staff token.
type SecurityEvent struct {
	Event string
	// Rail is the payment rail for callback events.
	Rail string
	// Subject is the staff identity, when known.
	Subject    string
	RemoteAddr string
	UserAgent  string
	Reason     string
	Details    map[string]string
}

// SecurityLogger writes security events at warn level under component=security.
// Values are sanitized before they reach the log.
type SecurityLogger struct {
	logger zerolog.Logger
}

func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{logger: Component("security")}
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent writes one security event.
func (l *SecurityLogger) LogEvent(ev *SecurityEvent) {
	e := l.logger.Warn().Str("event", ev.Event).Bool("security", true)
	if ev.Rail != "" {
		e = e.Str("rail", ev.Rail)
	}
	if ev.Subject != "" {
		e = e.Str("subject", SanitizeSubject(ev.Subject))
	}
	if ev.RemoteAddr != "" {
		e = e.Str("ip", ev.RemoteAddr)
	}
	if ev.UserAgent != "" {
		e = e.Str("user_agent", truncate(ev.UserAgent, 100))
	}
	if ev.Reason != "" {
		e = e.Str("reason", SanitizeError(ev.Reason))
	}
	for k, v := range ev.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}
	e.Msg("security event")
}

// LogSignatureInvalid records a provider callback that failed verification.
func (l *SecurityLogger) LogSignatureInvalid(rail, remoteAddr, userAgent, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:      EventCallbackSignatureInvalid,
		Rail:       rail,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Reason:     reason,
	})
}

// LogStaffTokenInvalid records a bearer token that could not be validated.
func (l *SecurityLogger) LogStaffTokenInvalid(remoteAddr, path, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:      EventStaffTokenInvalid,
		RemoteAddr: remoteAddr,
		Reason:     reason,
		Details:    map[string]string{"path": path},
	})
}

// LogLoginFailed records a rejected staff login.
func (l *SecurityLogger) LogLoginFailed(username, remoteAddr, reason string) {
	l.LogEvent(&SecurityEvent{
		Event:      EventStaffLoginFailed,
		Subject:    username,
		RemoteAddr: remoteAddr,
		Reason:     reason,
	})
}

// LogOriginRejected records a websocket handshake from a disallowed origin.
func (l *SecurityLogger) LogOriginRejected(origin, remoteAddr, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event:      EventOriginRejected,
		RemoteAddr: remoteAddr,
		UserAgent:  userAgent,
		Details:    map[string]string{"origin": origin},
	})
}

// SanitizeToken keeps the first four characters of a secret-bearing value.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..."
}

// SanitizeSubject truncates staff identifiers.
func SanitizeSubject(subject string) string {
	return truncate(subject, 64)
}

// SanitizeEmail masks the local part: jane@example.org -> j***@example.org.
func SanitizeEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// SanitizeError strips line breaks and caps the length.
func SanitizeError(msg string) string {
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	return truncate(msg, 200)
}

// SanitizeValue masks values whose key suggests a secret.
func SanitizeValue(key, value string) string {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "token"), strings.Contains(k, "secret"),
		strings.Contains(k, "signature"), strings.Contains(k, "password"):
		return SanitizeToken(value)
	case strings.Contains(k, "email"):
		return SanitizeEmail(value)
	default:
		return truncate(value, 200)
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
