// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package config

import (
	"fmt"
	"strings"
	"time"
)

// MinJWTSecretLength is the minimum accepted signing secret length.
const MinJWTSecretLength = 32

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateBackends(); err != nil {
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

func (c *Config) validateSecurity() error {
	s := &c.Security

	switch s.AuthMode {
	case AuthModeOwner, AuthModeMulti:
	default:
		return fmt.Errorf("AUTH_MODE must be %q or %q, got %q", AuthModeOwner, AuthModeMulti, s.AuthMode)
	}

	if len(s.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", MinJWTSecretLength)
	}
	if strings.TrimSpace(s.OwnerUsername) == "" {
		return fmt.Errorf("OWNER_USERNAME is required")
	}
	if s.OwnerPassword == "" {
		return fmt.Errorf("OWNER_PASSWORD is required")
	}

	policy := RelaxedPasswordPolicy()
	if c.IsProduction() {
		policy = DefaultPasswordPolicy()
	}
	if err := policy.ValidateWithError(s.OwnerPassword, s.OwnerUsername); err != nil {
		return fmt.Errorf("OWNER_PASSWORD does not meet password policy: %w", err)
	}

	if err := requirePositive(map[string]time.Duration{
		"ACCESS_TOKEN_TTL":   s.AccessTokenTTL,
		"REFRESH_TOKEN_TTL":  s.RefreshTokenTTL,
		"IDENTITY_CACHE_TTL": s.IdentityCacheTTL,
	}); err != nil {
		return err
	}
	if s.RefreshTokenTTL <= s.AccessTokenTTL {
		return fmt.Errorf("REFRESH_TOKEN_TTL (%s) must exceed ACCESS_TOKEN_TTL (%s)", s.RefreshTokenTTL, s.AccessTokenTTL)
	}

	if err := c.validateRateLimits(); err != nil {
		return err
	}
	if err := c.validateCORS(); err != nil {
		return err
	}
	return c.validateLockout()
}

func requirePositive(values map[string]time.Duration) error {
	for name, v := range values {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}
	return nil
}

// Rate limit bounds
const (
	MinRateLimitReqs   = 1
	MaxRateLimitReqs   = 100000
	MinRateLimitWindow = time.Second
	MaxRateLimitWindow = time.Hour
)

func (c *Config) validateRateLimits() error {
	s := &c.Security
	if !s.RateLimitDisabled {
		if s.RateLimitReqs < MinRateLimitReqs || s.RateLimitReqs > MaxRateLimitReqs {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", MinRateLimitReqs, MaxRateLimitReqs)
		}
		if s.RateLimitWindow < MinRateLimitWindow || s.RateLimitWindow > MaxRateLimitWindow {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be between %s and %s", MinRateLimitWindow, MaxRateLimitWindow)
		}
	}
	if s.LoginRatePerMinute < 1 || s.LoginBurst < 1 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE and LOGIN_BURST must be at least 1")
	}
	return nil
}

// validateCORS rejects wildcard origins in production; credentials travel in cookies.
func (c *Config) validateCORS() error {
	if c.hasWildcardCORS() && c.IsProduction() {
		return fmt.Errorf("CORS_ORIGINS=* is not allowed in production; list the allowed origins explicitly")
	}
	return nil
}

func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// ShouldWarnAboutCORS is true when wildcard CORS is configured outside production.
func (c *Config) ShouldWarnAboutCORS() bool {
	return c.hasWildcardCORS()
}

func (c *Config) validateLockout() error {
	l := &c.Security.Lockout
	if !l.Enabled {
		return nil
	}
	if l.MaxAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1")
	}
	if l.Duration <= 0 || l.MaxDuration < l.Duration {
		return fmt.Errorf("lockout duration must be positive and not exceed max_duration")
	}
	return nil
}

func (c *Config) validateBackends() error {
	switch c.Security.RefreshStore {
	case BackendMemory, BackendRedis:
	case BackendBadger:
		if c.Security.RefreshStorePath == "" {
			return fmt.Errorf("REFRESH_STORE_PATH is required for the badger refresh store")
		}
	default:
		return fmt.Errorf("REFRESH_STORE must be memory, badger or redis, got %q", c.Security.RefreshStore)
	}

	switch c.TVBox.Limiter {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("TVBOX_LIMITER must be memory or redis, got %q", c.TVBox.Limiter)
	}
	if c.TVBox.Window <= 0 {
		return fmt.Errorf("TVBOX_WINDOW must be positive")
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when a redis backend is selected")
	}
	if c.Store.Path != "" && c.Security.RefreshStore == BackendBadger && c.Store.Path == c.Security.RefreshStorePath {
		return fmt.Errorf("STORE_PATH and REFRESH_STORE_PATH must differ; badger holds an exclusive directory lock")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
