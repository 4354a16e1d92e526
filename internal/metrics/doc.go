// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Package metrics defines the Prometheus collectors exported on /metrics.
//
// All collectors are registered on the default registry at package init via
// promauto and share the reelgate_ prefix. Labels are bounded: outcomes are
// error codes from a closed set, roles come from the closed role enum, and
// endpoints are chi route patterns rather than raw paths. Usernames, tokens
// and device IDs are never used as label values.
package metrics
