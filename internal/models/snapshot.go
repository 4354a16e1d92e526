// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package models

import (
	"slices"
	"time"
)

// SiteConfig holds the site-wide settings the permission core reads.
type SiteConfig struct {
	Name string `json:"siteName,omitempty"`

	// DisableYellowFilter turns the adult-content filter off for everyone.
	DisableYellowFilter bool `json:"disableYellowFilter"`

	AllowRegistration bool `json:"allowRegistration"`
	RequireApproval   bool `json:"requireApproval"`
}

// VideoSource is a configured upstream source. Only the key matters to the core.
type VideoSource struct {
	Key      string `json:"key"`
	Name     string `json:"name,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ConfigSnapshot is the versioned permission-bearing configuration.
// Components receive it explicitly; nothing reads it from global state.
type ConfigSnapshot struct {
	Version   int64               `json:"version"`
	Site      SiteConfig          `json:"siteConfig"`
	Sources   []VideoSource       `json:"sources,omitempty"`
	Users     []User              `json:"users"`
	Tags      []Tag               `json:"tags"`
	TVBox     TVBoxSecurityConfig `json:"tvboxSecurityConfig"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// NewConfigSnapshot returns an empty snapshot with default box-client settings.
func NewConfigSnapshot() *ConfigSnapshot {
	return &ConfigSnapshot{
		Users: []User{},
		Tags:  []Tag{},
		TVBox: DefaultTVBoxSecurityConfig(),
	}
}

// Clone returns a deep copy of the snapshot.
func (s *ConfigSnapshot) Clone() *ConfigSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Sources = slices.Clone(s.Sources)
	out.Users = make([]User, len(s.Users))
	for i, u := range s.Users {
		out.Users[i] = u.Clone()
	}
	out.Tags = make([]Tag, len(s.Tags))
	for i, t := range s.Tags {
		out.Tags[i] = t.Clone()
	}
	out.TVBox = s.TVBox.Clone()
	return &out
}

// FindUser returns a pointer into Users for the named user, or nil.
func (s *ConfigSnapshot) FindUser(username string) *User {
	for i := range s.Users {
		if s.Users[i].Username == username {
			return &s.Users[i]
		}
	}
	return nil
}

// FindTag returns a pointer into Tags for the named tag, or nil.
func (s *ConfigSnapshot) FindTag(name string) *Tag {
	for i := range s.Tags {
		if s.Tags[i].Name == name {
			return &s.Tags[i]
		}
	}
	return nil
}

// TagsFor returns the tags the user belongs to. Unknown tag names are skipped.
func (s *ConfigSnapshot) TagsFor(user *User) []Tag {
	if user == nil {
		return nil
	}
	tags := make([]Tag, 0, len(user.Tags))
	for _, name := range user.Tags {
		if t := s.FindTag(name); t != nil {
			tags = append(tags, *t)
		}
	}
	return tags
}

// EnabledSourceKeys returns the keys of every source that is not disabled.
func (s *ConfigSnapshot) EnabledSourceKeys() []string {
	keys := make([]string, 0, len(s.Sources))
	for _, src := range s.Sources {
		if !src.Disabled {
			keys = append(keys, src.Key)
		}
	}
	return keys
}
