// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package logging provides centralized zerolog-based logging for Reelgate.

Every component logs through one global zerolog logger configured at startup
from the logging section of the configuration file:

	logging.Init(logging.Config{Level: "info", Format: "json", Timestamp: true})
	logging.Info().Str("addr", ":8080").Msg("HTTP server listening")

# Request Context

The request ID middleware stores a request ID and correlation ID in the
request context, and the route guard adds the authenticated username.
Ctx(ctx) returns a logger that carries all three:

	logging.Ctx(r.Context()).Warn().Err(err).Msg("Permission resolution failed")

# Security Audit Log

SecurityLogger writes authentication and administration events under
component=security. Usernames, tokens and error messages are sanitized
before they reach the log; raw passwords and tokens are never passed in.

# slog Bridge

NewSlogLogger adapts zerolog to log/slog for libraries such as sutureslog.

Always terminate event chains with Msg or Send; an unterminated event is
silently dropped.
*/
package logging
