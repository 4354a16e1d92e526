// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package config

import (
	"time"
)

// Config holds all application configuration.
//
// Loading order (see LoadWithKoanf):
//  1. Defaults: built-in values for every optional setting
//  2. Config File: optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment Variables: explicit mapping, highest priority
//
// Config is immutable after Load and safe for concurrent reads.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Security     SecurityConfig     `koanf:"security"`
	Store        StoreConfig        `koanf:"store"`
	Redis        RedisConfig        `koanf:"redis"`
	Registration RegistrationConfig `koanf:"registration"`
	TVBox        TVBoxConfig        `koanf:"tvbox"`
	Logging      LoggingConfig      `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"` // development or production
}

// Authentication modes.
const (
	// AuthModeOwner runs with a single owner credential from process config.
	AuthModeOwner = "owner"
	// AuthModeMulti adds per-user accounts from the credential store.
	AuthModeMulti = "multi"
)

// Refresh store and limiter backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// SecurityConfig holds authentication, token and HTTP protection settings.
type SecurityConfig struct {
	AuthMode      string `koanf:"auth_mode"`
	OwnerUsername string `koanf:"owner_username"`
	OwnerPassword string `koanf:"owner_password"`

	// JWTSecret signs access tokens and the signature credential. At least 32 characters.
	JWTSecret           string        `koanf:"jwt_secret"`
	AccessTokenTTL      time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL     time.Duration `koanf:"refresh_token_ttl"`
	RotateRefreshTokens bool          `koanf:"rotate_refresh_tokens"`
	SecureCookies       bool          `koanf:"secure_cookies"`

	RefreshStore     string        `koanf:"refresh_store"`      // memory, badger or redis
	RefreshStorePath string        `koanf:"refresh_store_path"` // badger only
	IdentityCacheTTL time.Duration `koanf:"identity_cache_ttl"`

	// General per-IP API rate limit (httprate).
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// Token bucket applied to login and register per client IP.
	LoginRatePerMinute int `koanf:"login_rate_per_minute"`
	LoginBurst         int `koanf:"login_burst"`

	CORSOrigins    []string `koanf:"cors_origins"`
	TrustedProxies []string `koanf:"trusted_proxies"`

	Lockout LockoutConfig `koanf:"lockout"`
	Casbin  CasbinConfig  `koanf:"casbin"`
}

// LockoutConfig controls account lockout after repeated login failures.
type LockoutConfig struct {
	Enabled            bool          `koanf:"enabled"`
	MaxAttempts        int           `koanf:"max_attempts"`
	Duration           time.Duration `koanf:"duration"`
	ExponentialBackoff bool          `koanf:"exponential_backoff"`
	MaxDuration        time.Duration `koanf:"max_duration"`
	TrackByIP          bool          `koanf:"track_by_ip"`
	CleanupInterval    time.Duration `koanf:"cleanup_interval"`
}

// CasbinConfig controls the route policy enforcer.
type CasbinConfig struct {
	ModelPath    string        `koanf:"model_path"`  // empty = embedded model
	PolicyPath   string        `koanf:"policy_path"` // empty = embedded policy
	CacheEnabled bool          `koanf:"cache_enabled"`
	CacheTTL     time.Duration `koanf:"cache_ttl"`
}

// StoreConfig selects the credential store. An empty Path keeps everything in memory.
type StoreConfig struct {
	Path       string `koanf:"path"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// RedisConfig is shared by the Redis refresh store and the Redis rate limiter.
type RedisConfig struct {
	Addr         string        `koanf:"addr"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	KeyPrefix    string        `koanf:"key_prefix"`

	// Circuit breaker around every Redis call.
	BreakerMaxFailures uint32        `koanf:"breaker_max_failures"`
	BreakerTimeout     time.Duration `koanf:"breaker_timeout"`
}

// RegistrationConfig seeds the site section of a brand-new configuration
// snapshot. Once the snapshot exists the owner edits it through the API.
type RegistrationConfig struct {
	SiteName        string `koanf:"site_name"`
	Enabled         bool   `koanf:"enabled"`
	RequireApproval bool   `koanf:"require_approval"`
}

// TVBoxConfig controls the box-client guard runtime.
type TVBoxConfig struct {
	Window        time.Duration `koanf:"window"`
	Limiter       string        `koanf:"limiter"` // memory or redis
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// IsProduction reports whether production-only checks apply.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// UsesRedis reports whether any component needs a Redis client.
func (c *Config) UsesRedis() bool {
	return c.Security.RefreshStore == BackendRedis || c.TVBox.Limiter == BackendRedis
}

// Load reads configuration from defaults, an optional YAML file and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
