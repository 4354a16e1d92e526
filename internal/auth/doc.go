// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package auth authenticates Reelgate users and manages their sessions.

Key Components:

  - TokenCodec: HS256 access tokens, opaque refresh tokens with family
    rotation, per-user revocation marks and the HMAC signature credential.
    It is the only holder of the server secret.
  - RefreshStore: refresh records in memory, BadgerDB or Redis.
  - Manager: login, request authentication with an identity cache, refresh,
    logout, registration with optional approval, password change and
    configuration writes that must invalidate cached identities.
  - LockoutManager: locks usernames (and optionally IPs) after repeated
    failed logins, with exponential backoff.
  - Guard: route guard middleware (RequireUser, RequireAdmin, RequireOwner,
    RequireSigned) and the session cookie transport.
  - IPRateLimiter: token bucket in front of login and registration.

Authentication Modes:

  - owner: a single process-configured password; every login is the owner.
  - multi: stored accounts plus the owner, who is never a stored record.

Errors:

Every failure is one of the sentinel errors in errors.go or wraps
ErrInternal. StatusCode, ErrorCode and PublicMessage map them onto HTTP
responses:

	res, err := manager.Login(ctx, auth.LoginRequest{Username: u, Password: p})
	if err != nil {
	    auth.WriteError(w, r, err) // 401, 403 or 500
	    return
	}
	guard.SetSessionCookies(w, res)

Security Notes:

  - Raw refresh tokens are never stored; records are keyed by SHA-256.
  - Presenting a rotated refresh token again revokes its whole family.
  - Password change and ban revoke every refresh token of the account and
    purge its cached identities before returning.
  - Tokens and passwords never appear in logs.
*/
package auth
