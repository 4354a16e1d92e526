// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package authz

import (
	"fmt"
	"slices"

	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/validation"
)

// ValidationResult is the outcome of a structural configuration check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidatePermissionConfig checks snap for structural problems without
// modifying it. ownerUsername may hold box-client tokens without being a
// stored user, and may not be used as a stored username.
func ValidatePermissionConfig(snap *models.ConfigSnapshot, ownerUsername string) ValidationResult {
	v := &validator{errors: []string{}}
	if snap == nil {
		v.addf("configuration is missing")
		return v.result()
	}

	sources := make(map[string]bool, len(snap.Sources))
	for _, src := range snap.Sources {
		switch {
		case src.Key == "":
			v.addf("source with empty key")
		case sources[src.Key]:
			v.addf("duplicate source key %q", src.Key)
		}
		sources[src.Key] = true
	}

	tags := make(map[string]bool, len(snap.Tags))
	for _, t := range snap.Tags {
		switch {
		case t.Name == "":
			v.addf("tag with empty name")
		case tags[t.Name]:
			v.addf("duplicate tag name %q", t.Name)
		}
		tags[t.Name] = true
		v.checkAPIs("tag "+quote(t.Name), t.EnabledAPIs, sources)
		if len(t.VideoSources) > 0 {
			v.addf("tag %q still uses legacy videoSources; run the permission migration", t.Name)
		}
	}

	users := make(map[string]bool, len(snap.Users))
	for _, u := range snap.Users {
		label := "user " + quote(u.Username)
		switch {
		case !models.IsValidUsername(u.Username):
			v.addf("invalid username %q", u.Username)
		case users[u.Username]:
			v.addf("duplicate username %q", u.Username)
		case ownerUsername != "" && u.Username == ownerUsername:
			v.addf("%s collides with the owner account", label)
		}
		users[u.Username] = true

		switch u.Role {
		case "", models.RoleUser, models.RoleAdmin:
		case models.RoleOwner:
			v.addf("%s: the owner role cannot be stored", label)
		default:
			v.addf("%s: unknown role %q", label, u.Role)
		}

		for _, name := range u.Tags {
			if !tags[name] {
				v.addf("%s references unknown tag %q", label, name)
			}
		}
		v.checkAPIs(label, u.EnabledAPIs, sources)
	}

	v.checkTVBox(&snap.TVBox, users, ownerUsername)
	return v.result()
}

type validator struct {
	errors []string
}

func (v *validator) addf(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) result() ValidationResult {
	return ValidationResult{Valid: len(v.errors) == 0, Errors: v.errors}
}

// checkAPIs flags legacy tokens and, when sources are configured, unknown keys.
func (v *validator) checkAPIs(label string, apis []string, sources map[string]bool) {
	for _, key := range apis {
		if _, legacy := models.LegacyFeatureToken(key); legacy && !sources[key] {
			v.addf("%s: legacy feature token %q in enabledApis; run the permission migration", label, key)
			continue
		}
		if len(sources) > 0 && !sources[key] {
			v.addf("%s: unknown source %q", label, key)
		}
	}
}

func (v *validator) checkTVBox(cfg *models.TVBoxSecurityConfig, users map[string]bool, owner string) {
	if verr := validation.ValidateStruct(cfg); verr != nil {
		for _, msg := range verr.Messages() {
			v.addf("tvbox: %s", msg)
		}
	}
	if cfg.EnableRateLimit && cfg.RateLimit <= 0 {
		v.addf("tvbox: rateLimit must be positive when rate limiting is enabled")
	}
	if cfg.EnableDeviceBinding && cfg.MaxDevices <= 0 {
		v.addf("tvbox: maxDevices must be positive when device binding is enabled")
	}

	var seenTokens []string
	seenUsers := make(map[string]bool, len(cfg.UserTokens))
	for _, t := range cfg.UserTokens {
		if slices.Contains(seenTokens, t.Token) {
			v.addf("tvbox: duplicate token for user %q", t.Username)
		}
		seenTokens = append(seenTokens, t.Token)
		if seenUsers[t.Username] {
			v.addf("tvbox: user %q has more than one token", t.Username)
		}
		seenUsers[t.Username] = true
		if !users[t.Username] && t.Username != owner {
			v.addf("tvbox: token for unknown user %q", t.Username)
		}
	}
}

func quote(s string) string { return fmt.Sprintf("%q", s) }
