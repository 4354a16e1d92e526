// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package models

import (
	"slices"
	"time"
)

// TVBoxSecurityConfig controls the secondary box-client protocol.
// Each account entry in UserTokens owns its own device list bounded by MaxDevices.
type TVBoxSecurityConfig struct {
	EnableAuth bool `json:"enableAuth"`

	EnableRateLimit bool `json:"enableRateLimit"`
	RateLimit       int  `json:"rateLimit" validate:"min=0,max=100000"`

	EnableDeviceBinding bool `json:"enableDeviceBinding"`
	MaxDevices          int  `json:"maxDevices" validate:"min=0,max=1000"`

	EnableUserAgentWhitelist bool     `json:"enableUserAgentWhitelist"`
	AllowedUserAgents        []string `json:"allowedUserAgents,omitempty" validate:"dive,required"`

	UserTokens []UserToken `json:"userTokens,omitempty" validate:"dive"`
}

// UserToken is the static per-account credential of the box-client protocol.
type UserToken struct {
	Username string              `json:"username" validate:"required"`
	Token    string              `json:"token" validate:"required,min=8,max=256"`
	Enabled  bool                `json:"enabled"`
	Devices  []DeviceFingerprint `json:"devices,omitempty"`
}

// DeviceFingerprint identifies one bound client installation.
type DeviceFingerprint struct {
	DeviceID   string    `json:"deviceId"`
	BindTime   time.Time `json:"bindTime"`
	DeviceName string    `json:"deviceName,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IP         string    `json:"ip,omitempty"`
	LastSeen   time.Time `json:"lastSeen,omitempty"`
}

// DefaultTVBoxSecurityConfig returns the settings used when none are stored.
// Every control starts disabled.
func DefaultTVBoxSecurityConfig() TVBoxSecurityConfig {
	return TVBoxSecurityConfig{
		RateLimit:  60,
		MaxDevices: 2,
	}
}

// Clone returns a deep copy of the config.
func (c TVBoxSecurityConfig) Clone() TVBoxSecurityConfig {
	c.AllowedUserAgents = slices.Clone(c.AllowedUserAgents)
	if c.UserTokens != nil {
		tokens := make([]UserToken, len(c.UserTokens))
		for i, t := range c.UserTokens {
			t.Devices = slices.Clone(t.Devices)
			tokens[i] = t
		}
		c.UserTokens = tokens
	}
	return c
}

// FindToken returns the index of the account entry holding token, or -1.
func (c *TVBoxSecurityConfig) FindToken(token string) int {
	if token == "" {
		return -1
	}
	for i := range c.UserTokens {
		if c.UserTokens[i].Token == token {
			return i
		}
	}
	return -1
}

// FindUsername returns the index of the account entry for username, or -1.
func (c *TVBoxSecurityConfig) FindUsername(username string) int {
	for i := range c.UserTokens {
		if c.UserTokens[i].Username == username {
			return i
		}
	}
	return -1
}

// HasDevice reports whether deviceID is bound to the account entry.
func (t *UserToken) HasDevice(deviceID string) bool {
	for _, d := range t.Devices {
		if d.DeviceID == deviceID {
			return true
		}
	}
	return false
}
