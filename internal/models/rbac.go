// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
rbac.go - Role definitions

Role Hierarchy:
  - user: default role for every stored account
  - admin: manages users, tags and box-client settings (inherits user)
  - owner: the single process-configured account (inherits admin)

The owner is never a stored record. A stored role of "owner" is ignored by the
resolver and reported by config validation.
*/

package models

import (
	"fmt"
	"strings"
)

// Role is a closed set of authorization tiers.
type Role string

// Role constants. These align with the Casbin grouping policy in internal/authz.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
	RoleOwner Role = "owner"
)

// ValidRoles lists every role in ascending rank.
var ValidRoles = []Role{RoleUser, RoleAdmin, RoleOwner}

// ParseRole converts a string into a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleOwner:
		return RoleOwner, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Rank returns the position of the role in the hierarchy. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleOwner:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// IsValid reports whether r is one of the defined roles.
func (r Role) IsValid() bool {
	return r.Rank() > 0
}

// Satisfies reports whether r meets the minimum role. The check is non-strict:
// admin satisfies user, owner satisfies both. An unknown role satisfies nothing.
func (r Role) Satisfies(minimum Role) bool {
	if !r.IsValid() || !minimum.IsValid() {
		return false
	}
	return r.Rank() >= minimum.Rank()
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}
