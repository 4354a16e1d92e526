// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package authz

import (
	"slices"

	"github.com/tomtom215/reelgate/internal/models"
)

// Resolver computes effective roles and permissions from a configuration
// snapshot. It holds no state beyond the owner's name and is safe for
// concurrent use.
type Resolver struct {
	owner string
}

// NewResolver returns a resolver that treats ownerUsername as the owner.
func NewResolver(ownerUsername string) *Resolver {
	return &Resolver{owner: ownerUsername}
}

// IsOwner reports whether username is the configured owner.
func (r *Resolver) IsOwner(username string) bool {
	return r.owner != "" && username == r.owner
}

// ResolveRole returns owner for the configured owner name, otherwise the
// stored role. A stored "owner" role, an unknown role or an unknown user
// resolve to user: ownership only comes from process configuration.
func (r *Resolver) ResolveRole(snap *models.ConfigSnapshot, username string) models.Role {
	if r.IsOwner(username) {
		return models.RoleOwner
	}
	if snap == nil {
		return models.RoleUser
	}
	u := snap.FindUser(username)
	if u == nil {
		return models.RoleUser
	}
	switch u.Role {
	case models.RoleAdmin:
		return models.RoleAdmin
	case models.RoleUser, models.RoleOwner:
		return models.RoleUser
	default:
		return models.RoleUser
	}
}

// CanManage reports whether an actor may change another account's
// permission fields, ban state or devices. The owner manages everyone;
// admins manage only plain users. Nobody manages the owner.
func CanManage(actor, target models.Role) bool {
	switch {
	case target == models.RoleOwner:
		return false
	case actor == models.RoleOwner:
		return true
	case actor == models.RoleAdmin:
		return target == models.RoleUser
	default:
		return false
	}
}

// ResolveEnabledSources applies override-then-union: a non-empty
// user.EnabledAPIs wins outright, otherwise the union of the tags' sets.
// There is no implicit "all sources" fallback. The result is sorted.
func ResolveEnabledSources(user *models.User, tags []models.Tag) []string {
	if user == nil {
		return []string{}
	}
	if len(user.EnabledAPIs) > 0 {
		return sortedUnique(user.EnabledAPIs)
	}
	var union []string
	for _, t := range tags {
		union = append(union, t.EnabledAPIs...)
	}
	return sortedUnique(union)
}

// ResolveFeatures applies the same rule to FeatureFlags: a user with any
// flag set overrides, an empty set inherits the OR across tags.
func ResolveFeatures(user *models.User, tags []models.Tag) models.FeatureFlags {
	if user == nil {
		return models.FeatureFlags{}
	}
	if !user.Features.IsEmpty() {
		return user.Features
	}
	var flags models.FeatureFlags
	for _, t := range tags {
		flags = flags.Union(t.Features)
	}
	return flags
}

// ResolveFeature reports whether username may use feature. The owner has
// every feature regardless of stored flags.
func (r *Resolver) ResolveFeature(snap *models.ConfigSnapshot, username string, feature models.Feature) bool {
	if r.IsOwner(username) {
		return true
	}
	if snap == nil {
		return false
	}
	u := snap.FindUser(username)
	if u == nil {
		return false
	}
	return ResolveFeatures(u, snap.TagsFor(u)).Get(feature)
}

// Effective computes the full permission view for username. The owner sees
// every enabled source and every feature. Unknown non-owner users get an
// empty view with role user.
func (r *Resolver) Effective(snap *models.ConfigSnapshot, username string) models.EffectivePermissions {
	eff := models.EffectivePermissions{
		Username:       username,
		Role:           r.ResolveRole(snap, username),
		EnabledSources: []string{},
	}
	switch {
	case eff.Role == models.RoleOwner:
		eff.Features = models.AllFeatureFlags()
		if snap != nil {
			eff.EnabledSources = sortedUnique(snap.EnabledSourceKeys())
		}
	case snap != nil:
		if u := snap.FindUser(username); u != nil {
			tags := snap.TagsFor(u)
			eff.EnabledSources = ResolveEnabledSources(u, tags)
			eff.Features = ResolveFeatures(u, tags)
			eff.PermissionVersion = u.PermissionVersion
		}
	}

	// The adult-content filter is on unless disabled site-wide or per user.
	siteOff := snap != nil && snap.Site.DisableYellowFilter
	eff.FilterAdultContent = !siteOff && !eff.Features.DisableYellowFilter
	return eff
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v != "" {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
