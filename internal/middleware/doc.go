// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Package middleware provides HTTP middleware shared by every route:
// request ID propagation into the logging context and Prometheus request
// instrumentation. Authentication and authorization middleware live with
// their decision logic in the auth, authz and tvbox packages.
//
// Both middlewares use the func(http.Handler) http.Handler shape and are
// mounted with chi's Router.Use.
package middleware
