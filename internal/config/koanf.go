// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

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
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/reelgate/config.yaml",
	"/etc/reelgate/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Timeout:     30 * time.Second,
			Environment: "development",
		},
		Security: SecurityConfig{
			AuthMode:            AuthModeMulti,
			OwnerUsername:       "owner",
			AccessTokenTTL:      15 * time.Minute,
			RefreshTokenTTL:     7 * 24 * time.Hour,
			RotateRefreshTokens: true,
			SecureCookies:       false,
			RefreshStore:        BackendBadger,
			RefreshStorePath:    "/data/refresh",
			IdentityCacheTTL:    5 * time.Minute,
			RateLimitReqs:       100,
			RateLimitWindow:     time.Minute,
			LoginRatePerMinute:  10,
			LoginBurst:          5,
			CORSOrigins:         []string{"*"},
			TrustedProxies:      []string{},
			Lockout: LockoutConfig{
				Enabled:            true,
				MaxAttempts:        5,
				Duration:           15 * time.Minute,
				ExponentialBackoff: true,
				MaxDuration:        24 * time.Hour,
				TrackByIP:          false,
				CleanupInterval:    5 * time.Minute,
			},
			Casbin: CasbinConfig{
				CacheEnabled: true,
				CacheTTL:     5 * time.Minute,
			},
		},
		Store: StoreConfig{
			Path: "/data/store",
		},
		Redis: RedisConfig{
			Addr:               "127.0.0.1:6379",
			DialTimeout:        2 * time.Second,
			ReadTimeout:        500 * time.Millisecond,
			WriteTimeout:       500 * time.Millisecond,
			KeyPrefix:          "reelgate:",
			BreakerMaxFailures: 5,
			BreakerTimeout:     30 * time.Second,
		},
		Registration: RegistrationConfig{
			SiteName:        "Reelgate",
			Enabled:         false,
			RequireApproval: true,
		},
		TVBox: TVBoxConfig{
			Window:        time.Minute,
			Limiter:       BackendMemory,
			SweepInterval: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults from defaultConfig
//  2. Optional YAML config file
//  3. Mapped environment variables (highest priority)
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns "" when no file exists.
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

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"security.trusted_proxies",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so the process environment cannot pollute config.
var envMappings = map[string]string{
	// Server
	"http_host":    "server.host",
	"http_port":    "server.port",
	"http_timeout": "server.timeout",
	"environment":  "server.environment",

	// Security
	"auth_mode":             "security.auth_mode",
	"owner_username":        "security.owner_username",
	"owner_password":        "security.owner_password",
	"jwt_secret":            "security.jwt_secret",
	"access_token_ttl":      "security.access_token_ttl",
	"refresh_token_ttl":     "security.refresh_token_ttl",
	"rotate_refresh_tokens": "security.rotate_refresh_tokens",
	"secure_cookies":        "security.secure_cookies",
	"refresh_store":         "security.refresh_store",
	"refresh_store_path":    "security.refresh_store_path",
	"identity_cache_ttl":    "security.identity_cache_ttl",
	"rate_limit_requests":   "security.rate_limit_reqs",
	"rate_limit_window":     "security.rate_limit_window",
	"disable_rate_limit":    "security.rate_limit_disabled",
	"login_rate_per_minute": "security.login_rate_per_minute",
	"login_burst":           "security.login_burst",
	"cors_origins":          "security.cors_origins",
	"trusted_proxies":       "security.trusted_proxies",

	// Lockout
	"lockout_enabled":      "security.lockout.enabled",
	"lockout_max_attempts": "security.lockout.max_attempts",
	"lockout_duration":     "security.lockout.duration",
	"lockout_track_by_ip":  "security.lockout.track_by_ip",

	// Casbin
	"casbin_model_path":    "security.casbin.model_path",
	"casbin_policy_path":   "security.casbin.policy_path",
	"casbin_cache_enabled": "security.casbin.cache_enabled",
	"casbin_cache_ttl":     "security.casbin.cache_ttl",

	// Credential store
	"store_path":        "store.path",
	"store_sync_writes": "store.sync_writes",

	// Redis
	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",
	"redis_prefix":   "redis.key_prefix",

	// Registration seed values
	"site_name":                     "registration.site_name",
	"allow_registration":            "registration.enabled",
	"registration_require_approval": "registration.require_approval",

	// Box client guard
	"tvbox_window":  "tvbox.window",
	"tvbox_limiter": "tvbox.limiter",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps HTTP_PORT -> server.port and so on; "" skips the variable.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
