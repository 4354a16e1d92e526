// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package models

import (
	"regexp"
	"slices"
	"time"
)

// usernamePattern allows alphanumerics, dots, hyphens and underscores.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,32}$`)

// IsValidUsername checks the username format used for registration and config validation.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User is a stored account. The owner is never a stored User.
//
// EnabledAPIs is a direct override: when non-empty it replaces the sources
// inherited from tags. Features follows the same rule: a non-empty flag set
// replaces the union of tag flags.
//
// Password hashes are held by the credential store, never in this struct.
type User struct {
	Username          string       `json:"username"`
	Role              Role         `json:"role,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
	EnabledAPIs       []string     `json:"enabledApis,omitempty"`
	Features          FeatureFlags `json:"features"`
	Banned            bool         `json:"banned,omitempty"`
	PermissionVersion int64        `json:"permissionVersion"`
	CreatedAt         time.Time    `json:"createdAt"`
}

// Clone returns a deep copy of the user.
func (u User) Clone() User {
	u.Tags = slices.Clone(u.Tags)
	u.EnabledAPIs = slices.Clone(u.EnabledAPIs)
	return u
}

// HasTag reports whether the user belongs to the named tag.
func (u *User) HasTag(name string) bool {
	return slices.Contains(u.Tags, name)
}

// PermissionsEqual reports whether two users carry the same permission-bearing
// fields (role, tags, enabled sources, features, banned). Tag and source order
// is not significant.
func (u *User) PermissionsEqual(other *User) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Role == other.Role &&
		u.Banned == other.Banned &&
		u.Features == other.Features &&
		sameSet(u.Tags, other.Tags) &&
		sameSet(u.EnabledAPIs, other.EnabledAPIs)
}

// Tag is a named permission group.
type Tag struct {
	Name        string       `json:"name"`
	EnabledAPIs []string     `json:"enabledApis,omitempty"`
	Features    FeatureFlags `json:"features"`

	// VideoSources is the legacy alias of EnabledAPIs. The migration folds it
	// into EnabledAPIs and clears it.
	VideoSources []string `json:"videoSources,omitempty"`
}

// Clone returns a deep copy of the tag.
func (t Tag) Clone() Tag {
	t.EnabledAPIs = slices.Clone(t.EnabledAPIs)
	t.VideoSources = slices.Clone(t.VideoSources)
	return t
}

// PendingUser is a registration awaiting administrator approval.
// It is kept apart from active users until approved.
type PendingUser struct {
	Username    string    `json:"username"`
	Reason      string    `json:"reason,omitempty"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Identity is the authenticated principal injected into request contexts.
type Identity struct {
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EffectivePermissions is the resolved permission view of a single user.
type EffectivePermissions struct {
	Username           string       `json:"username"`
	Role               Role         `json:"role"`
	EnabledSources     []string     `json:"enabled_sources"`
	Features           FeatureFlags `json:"features"`
	FilterAdultContent bool         `json:"filter_adult_content"`
	PermissionVersion  int64        `json:"permission_version"`
}

// sameSet compares two string slices as sets.
func sameSet(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	seenA := make(map[string]struct{}, len(a))
	for _, v := range a {
		seenA[v] = struct{}{}
	}
	seenB := make(map[string]struct{}, len(b))
	for _, v := range b {
		if _, ok := seenA[v]; !ok {
			return false
		}
		seenB[v] = struct{}{}
	}
	return len(seenA) == len(seenB)
}
