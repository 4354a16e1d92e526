// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package tvbox gates the secondary box-client protocol.

Box clients do not hold sessions. They present a static per-account token and
are checked by Guard.Check in this order:

 1. User-Agent whitelist (enableUserAgentWhitelist)
 2. Token lookup against tvboxSecurityConfig.userTokens (enableAuth)
 3. Fixed-window rate limit keyed by account, or client IP without one
 4. Device binding against the account's device list (enableDeviceBinding)

A device already bound to the account passes. An unknown device is bound
when the account is below maxDevices and rejected at the cap. Rejection
never evicts; only Rebind, which re-registers the calling device, evicts the
oldest bindings to make room.

Bindings are stored in the configuration snapshot and written through
store.Update, so concurrent first-use binds cannot exceed the cap.

Two limiter backends exist: MemoryLimiter for a single instance and
RedisLimiter for several instances sharing counters. Both fail closed.
*/
package tvbox
