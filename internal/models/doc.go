// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package models defines the data structures shared by the Reelgate core.

The package is the single source of truth for the permission-bearing
configuration document and the identity types that flow between the
authentication, authorization and box-client layers.

Key Components:

  - Role: closed enum (owner > admin > user) with an exhaustive rank switch
  - Feature / FeatureFlags: structured capability gates plus the legacy
    string tokens that older configurations stored inside enabledApis
  - User / Tag: permission holders; a user belongs to zero or more tags
  - ConfigSnapshot: versioned, read-mostly configuration passed explicitly
    to every component instead of living in global state
  - TVBoxSecurityConfig: device-binding, rate-limit and UA rules for the
    secondary box-client protocol
  - Identity / EffectivePermissions: what the route guard injects and what
    the resolver computes
  - APIResponse: standardized JSON envelope for HTTP handlers

JSON Naming:

The configuration document (users, tags, site, tvbox) uses camelCase keys so
it stays compatible with configuration files written by earlier releases.
The HTTP envelope uses snake_case keys like the rest of the API surface.

Thread Safety:

Models are plain values. ConfigSnapshot.Clone returns a deep copy so a caller
can mutate a snapshot without racing readers of the shared instance.
*/
package models
