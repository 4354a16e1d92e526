// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package api provides the HTTP layer of Reelgate.

Routes are served by a chi router. Every response uses the models.APIResponse
envelope; rejections are mapped onto status codes by auth.WriteError.

Route groups:

	/api/v1/health/*        liveness and readiness, public
	/api/v1/auth/*          login, logout, refresh, register (public, throttled)
	                        check (signature cookie), me, password (user)
	/api/v1/permissions     effective permissions of the caller (user)
	/api/v1/admin/*         users, tags, registrations, box-client settings (admin)
	/api/v1/owner/*         migration, site settings, sources, roles (owner)
	/tvbox/*                box-client protocol behind tvbox.Guard
	/metrics                Prometheus exposition

Admin and owner groups run the role guard first and the Casbin route policy
second. Only the owner changes roles, and admins manage plain users only
(see authz.CanManage).

Middleware stack (outermost first):

	RequestID -> TrustedRealIP -> Recoverer -> CORS -> PrometheusMetrics -> httprate

Login and register additionally pass a per-IP token bucket
(auth.IPRateLimiter) on top of the general httprate limit.
*/
package api
