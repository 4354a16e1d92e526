// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package models

// Feature names a capability gate that is independent of video-source access.
type Feature string

// Feature constants use the JSON key of the matching FeatureFlags field.
const (
	FeatureAIRecommend         Feature = "aiRecommend"
	FeatureDisableYellowFilter Feature = "disableYellowFilter"
	FeatureNetdiskSearch       Feature = "netdiskSearch"
	FeatureTMDBActorSearch     Feature = "tmdbActorSearch"
)

// AllFeatures lists every feature in a stable order.
var AllFeatures = []Feature{
	FeatureAIRecommend,
	FeatureDisableYellowFilter,
	FeatureNetdiskSearch,
	FeatureTMDBActorSearch,
}

// legacyFeatureTokens maps the ad-hoc strings older configurations stored
// inside enabledApis to their structured feature.
var legacyFeatureTokens = map[string]Feature{
	"ai-recommend":          FeatureAIRecommend,
	"disable-yellow-filter": FeatureDisableYellowFilter,
	"netdisk-search":        FeatureNetdiskSearch,
	"tmdb-actor-search":     FeatureTMDBActorSearch,
}

// ParseFeature returns the feature for a name, accepting both the structured
// key ("aiRecommend") and the legacy token ("ai-recommend").
func ParseFeature(name string) (Feature, bool) {
	for _, f := range AllFeatures {
		if string(f) == name {
			return f, true
		}
	}
	return LegacyFeatureToken(name)
}

// LegacyFeatureToken reports whether s is a legacy feature token and returns
// the feature it encodes.
func LegacyFeatureToken(s string) (Feature, bool) {
	f, ok := legacyFeatureTokens[s]
	return f, ok
}

// FeatureFlags holds the structured capability gates of a user or tag.
// A value with no flag set is "empty" and means "inherit".
type FeatureFlags struct {
	AIRecommend         bool `json:"aiRecommend,omitempty"`
	DisableYellowFilter bool `json:"disableYellowFilter,omitempty"`
	NetdiskSearch       bool `json:"netdiskSearch,omitempty"`
	TMDBActorSearch     bool `json:"tmdbActorSearch,omitempty"`
}

// AllFeatureFlags returns flags with every feature enabled.
func AllFeatureFlags() FeatureFlags {
	return FeatureFlags{
		AIRecommend:         true,
		DisableYellowFilter: true,
		NetdiskSearch:       true,
		TMDBActorSearch:     true,
	}
}

// Get returns the value of a single feature. Unknown features are false.
func (f FeatureFlags) Get(feature Feature) bool {
	switch feature {
	case FeatureAIRecommend:
		return f.AIRecommend
	case FeatureDisableYellowFilter:
		return f.DisableYellowFilter
	case FeatureNetdiskSearch:
		return f.NetdiskSearch
	case FeatureTMDBActorSearch:
		return f.TMDBActorSearch
	default:
		return false
	}
}

// Set assigns a single feature and reports whether the feature is known.
func (f *FeatureFlags) Set(feature Feature, enabled bool) bool {
	switch feature {
	case FeatureAIRecommend:
		f.AIRecommend = enabled
	case FeatureDisableYellowFilter:
		f.DisableYellowFilter = enabled
	case FeatureNetdiskSearch:
		f.NetdiskSearch = enabled
	case FeatureTMDBActorSearch:
		f.TMDBActorSearch = enabled
	default:
		return false
	}
	return true
}

// IsEmpty reports whether no feature is enabled.
func (f FeatureFlags) IsEmpty() bool {
	return f == FeatureFlags{}
}

// Union returns the flags enabled in either f or other.
func (f FeatureFlags) Union(other FeatureFlags) FeatureFlags {
	return FeatureFlags{
		AIRecommend:         f.AIRecommend || other.AIRecommend,
		DisableYellowFilter: f.DisableYellowFilter || other.DisableYellowFilter,
		NetdiskSearch:       f.NetdiskSearch || other.NetdiskSearch,
		TMDBActorSearch:     f.TMDBActorSearch || other.TMDBActorSearch,
	}
}

// Enabled returns the enabled features in AllFeatures order.
func (f FeatureFlags) Enabled() []Feature {
	var out []Feature
	for _, feature := range AllFeatures {
		if f.Get(feature) {
			out = append(out, feature)
		}
	}
	return out
}
