// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package authz resolves what an authenticated user may do.

# Permission Resolution

Resolver and the package functions compute effective permissions from a
models.ConfigSnapshot passed in by the caller:

  - role: the configured owner name resolves to owner; otherwise the stored
    role, with unknown or stored "owner" values treated as user
  - sources: a non-empty user EnabledAPIs overrides; otherwise the union of
    the user's tags; never an implicit "all"
  - features: same override-then-union rule on FeatureFlags; the owner has
    every feature

# Migration and Validation

MigrateLegacyPermissions rewrites legacy feature tokens stored inside
EnabledAPIs (for example "ai-recommend") into FeatureFlags and folds tag
VideoSources into EnabledAPIs. It is pure and idempotent; saving the result
is the caller's job. ValidatePermissionConfig reports structural errors and
never mutates its input.

# Route Policy

Enforcer wraps a Casbin model whose subjects are role names:

	m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")

with owner inheriting admin and admin inheriting user. Middleware applies it
to admin and owner route groups behind the role guards. Decisions are cached
in a cache.Cache.
*/
package authz
