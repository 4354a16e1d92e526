// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package logging

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Security event names. Kept stable so log queries survive refactors.
const (
	EventLoginSuccess         = "login_success"
	EventLoginFailed          = "login_failed"
	EventLogout               = "logout"
	EventTokenRefresh         = "token_refresh"
	EventRefreshReuse         = "refresh_token_reuse"
	EventAccountLocked        = "account_locked"
	EventRegistrationRequest  = "registration_requested"
	EventRegistrationDecision = "registration_decided"
	EventPasswordChanged      = "password_changed"
	EventPermissionsChanged   = "permissions_changed"
	EventAccountCreated       = "account_created"
	EventAccountDeleted       = "account_deleted"
	EventMigration            = "legacy_permissions_migrated"
	EventTVBoxDenied          = "tvbox_denied"
	EventTVBoxDeviceBound     = "tvbox_device_bound"
	EventTVBoxAdmin           = "tvbox_admin"
)

// SecurityEvent is one audit record. Fields are sanitized before writing.
type SecurityEvent struct {
	Event     string
	Username  string
	Actor     string
	IPAddress string
	UserAgent string
	Success   bool
	Reason    string
	Details   map[string]string
}

// SecurityLogger writes audit events under component=security.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger creates a security logger on top of the global logger.
func NewSecurityLogger() *SecurityLogger {
	return NewSecurityLoggerWithLogger(Logger())
}

// NewSecurityLoggerWithLogger creates a security logger with a custom zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger.With().Str("component", "security").Logger()}
}

// LogEvent writes event. Failures are logged at warn level.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	var e *zerolog.Event
	if event.Success {
		e = l.logger.Info().Str("status", "success")
	} else {
		e = l.logger.Warn().Str("status", "failed")
	}
	e = e.Str("event", event.Event)

	if event.Username != "" {
		e = e.Str("username", SanitizeUsername(event.Username))
	}
	if event.Actor != "" {
		e = e.Str("actor", event.Actor)
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncateString(event.UserAgent, 100))
	}
	if event.Reason != "" && !event.Success {
		e = e.Str("reason", SanitizeError(event.Reason))
	}
	for k, v := range event.Details {
		e = e.Str(k, SanitizeValue(k, v))
	}
	e.Send()
}

// LogLoginSuccess records a completed login.
func (l *SecurityLogger) LogLoginSuccess(username, ip, userAgent string) {
	l.LogEvent(&SecurityEvent{
		Event: EventLoginSuccess, Username: username, IPAddress: ip, UserAgent: userAgent, Success: true,
	})
}

// LogLoginFailure records a rejected login. reason is the error code, never
// the submitted password.
func (l *SecurityLogger) LogLoginFailure(username, ip, userAgent, reason string) {
	l.LogEvent(&SecurityEvent{
		Event: EventLoginFailed, Username: username, IPAddress: ip, UserAgent: userAgent, Reason: reason,
	})
}

// LogLogout records a logout.
func (l *SecurityLogger) LogLogout(username, ip string) {
	l.LogEvent(&SecurityEvent{Event: EventLogout, Username: username, IPAddress: ip, Success: true})
}

// LogTokenRefresh records a refresh exchange.
func (l *SecurityLogger) LogTokenRefresh(username string, success bool, reason string) {
	l.LogEvent(&SecurityEvent{Event: EventTokenRefresh, Username: username, Success: success, Reason: reason})
}

// LogRefreshReuse records presentation of an already-rotated refresh token.
// The whole token family is revoked when this fires.
func (l *SecurityLogger) LogRefreshReuse(username, familyID string, revoked int) {
	l.LogEvent(&SecurityEvent{
		Event:    EventRefreshReuse,
		Username: username,
		Reason:   "revoked refresh token presented",
		Details: map[string]string{
			"family":         SanitizeToken(familyID),
			"tokens_revoked": strconv.Itoa(revoked),
		},
	})
}

// LogAccountLocked records a lockout triggered by repeated failures.
func (l *SecurityLogger) LogAccountLocked(subject string, failures int) {
	l.LogEvent(&SecurityEvent{
		Event:    EventAccountLocked,
		Username: subject,
		Reason:   "too many failed attempts",
		Details:  map[string]string{"failures": strconv.Itoa(failures)},
	})
}

// LogAdminAction records an administrative change made by actor to username.
func (l *SecurityLogger) LogAdminAction(event, actor, username string, details map[string]string) {
	l.LogEvent(&SecurityEvent{Event: event, Actor: actor, Username: username, Success: true, Details: details})
}

// SanitizeToken masks a token, showing only the first and last 4 characters.
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUsername keeps the first 2 characters.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	if len(username) <= 2 {
		return "***"
	}
	return username[:2] + "***"
}

var sensitiveErrorWords = []string{"password", "secret", "token", "bearer", "authorization", "cookie", "signature"}

// SanitizeError replaces messages that mention credentials with a generic one.
func SanitizeError(err string) string {
	lower := strings.ToLower(err)
	for _, word := range sensitiveErrorWords {
		if strings.Contains(lower, word) {
			return "authentication error"
		}
	}
	return truncateString(err, 200)
}

var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"password":      true,
	"secret":        true,
	"signature":     true,
	"sig":           true,
	"authorization": true,
	"cookie":        true,
}

// SanitizeValue masks v when key names a credential.
func SanitizeValue(key, value string) string {
	if sensitiveKeys[strings.ToLower(key)] {
		return SanitizeToken(value)
	}
	return value
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
