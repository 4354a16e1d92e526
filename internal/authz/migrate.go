// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tomtom215/reelgate/internal/models"
)

// MigrationResult summarizes a legacy permission migration.
type MigrationResult struct {
	Success      bool     `json:"success"`
	ChangedUsers []string `json:"changed_users"`
	ChangedTags  []string `json:"changed_tags"`
	// InheritingUsers held only legacy tokens in EnabledAPIs. Their
	// override is now empty, so they inherit every source of their tags.
	InheritingUsers []string `json:"inheriting_users"`
	Message         string   `json:"message"`
}

// Changed reports whether the migration rewrote anything.
func (r MigrationResult) Changed() bool {
	return len(r.ChangedUsers) > 0 || len(r.ChangedTags) > 0
}

// MigrateLegacyPermissions returns a migrated copy of snap; the input is
// never modified. Tag VideoSources fold into EnabledAPIs, and legacy
// feature tokens found in any EnabledAPIs move into FeatureFlags. A token
// that is also the key of a configured source is a genuine source and
// stays. Running it on its own output changes nothing.
//
// A user whose Features were empty inherited them from tags; when that user
// gains flags from tokens, the inherited flags are folded in first so the
// new override does not drop them.
func MigrateLegacyPermissions(snap *models.ConfigSnapshot) (*models.ConfigSnapshot, MigrationResult) {
	if snap == nil {
		return nil, MigrationResult{Message: "no configuration to migrate"}
	}
	out := snap.Clone()
	result := MigrationResult{
		Success:         true,
		ChangedUsers:    []string{},
		ChangedTags:     []string{},
		InheritingUsers: []string{},
	}

	genuine := make(map[string]bool, len(out.Sources))
	for _, src := range out.Sources {
		genuine[src.Key] = true
	}

	for i := range out.Tags {
		t := &out.Tags[i]
		changed := false
		if len(t.VideoSources) > 0 {
			t.EnabledAPIs = mergeUnique(t.EnabledAPIs, t.VideoSources)
			t.VideoSources = nil
			changed = true
		}
		var found models.FeatureFlags
		if t.EnabledAPIs, found = extractLegacyTokens(t.EnabledAPIs, genuine); !found.IsEmpty() {
			t.Features = t.Features.Union(found)
			changed = true
		}
		if changed {
			result.ChangedTags = append(result.ChangedTags, t.Name)
		}
	}

	for i := range out.Users {
		u := &out.Users[i]
		var found models.FeatureFlags
		hadOverride := len(u.EnabledAPIs) > 0
		u.EnabledAPIs, found = extractLegacyTokens(u.EnabledAPIs, genuine)
		if found.IsEmpty() {
			continue
		}
		if hadOverride && len(u.EnabledAPIs) == 0 {
			result.InheritingUsers = append(result.InheritingUsers, u.Username)
		}
		if u.Features.IsEmpty() {
			for _, t := range out.TagsFor(u) {
				u.Features = u.Features.Union(t.Features)
			}
		}
		u.Features = u.Features.Union(found)
		result.ChangedUsers = append(result.ChangedUsers, u.Username)
	}

	slices.Sort(result.ChangedUsers)
	slices.Sort(result.ChangedTags)
	slices.Sort(result.InheritingUsers)
	if result.Changed() {
		result.Message = fmt.Sprintf("migrated %d users and %d tags", len(result.ChangedUsers), len(result.ChangedTags))
		if n := len(result.InheritingUsers); n > 0 {
			result.Message += fmt.Sprintf("; %d users now inherit tag sources: %s", n, strings.Join(result.InheritingUsers, ", "))
		}
	} else {
		result.Message = "no legacy permissions found"
	}
	return out, result
}

// extractLegacyTokens splits apis into real entries and the feature flags
// encoded by legacy tokens. The returned slice is nil when empty so an
// emptied override reads as "inherit".
func extractLegacyTokens(apis []string, genuine map[string]bool) ([]string, models.FeatureFlags) {
	var (
		kept  []string
		flags models.FeatureFlags
	)
	for _, v := range apis {
		if f, ok := models.LegacyFeatureToken(v); ok && !genuine[v] {
			flags.Set(f, true)
			continue
		}
		kept = append(kept, v)
	}
	if flags.IsEmpty() {
		return apis, flags
	}
	return kept, flags
}

func mergeUnique(a, b []string) []string {
	out := slices.Clone(a)
	for _, v := range b {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
