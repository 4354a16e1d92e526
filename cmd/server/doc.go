// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Command server runs the Reelgate authentication and permission service.
//
// # Startup
//
// Components are built in dependency order:
//
//  1. Configuration: koanf defaults, optional config.yaml, environment
//  2. Logging: zerolog, with a slog bridge for the supervisor
//  3. Credential store: Badger at STORE_PATH, or in memory when empty
//  4. Legacy permission migration, applied once
//  5. Refresh store (memory, badger or redis) and the token codec
//  6. Auth manager, lockout, route guard and Casbin enforcer
//  7. Box-client guard with its memory or Redis limiter
//  8. chi router, HTTP server and janitors under the suture tree
//
// # Configuration
//
// The required settings are JWT_SECRET (32+ characters), OWNER_USERNAME and
// OWNER_PASSWORD. AUTH_MODE=owner disables per-user accounts. See
// internal/config for the full list.
//
// # Signals
//
// SIGINT and SIGTERM cancel the root context. The HTTP server drains for up
// to ten seconds; stores and the Redis client are closed after the tree stops.
package main
