// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package cache provides thread-safe in-memory caching with TTL support.

The cache memoizes the results of expensive or frequently repeated auth work:
verified identities keyed by token hash, casbin enforcement decisions, and
resolved effective permissions. Entries are always recomputable from the
credential store, so losing the cache only costs latency.

# Keys

Keys are namespaced strings. Raw credentials never appear in a key; use
HashKey to derive one:

	key := cache.HashKey("identity:alice", rawToken)

Per-user invalidation relies on the namespace layout:

	c.DeletePrefix("identity:alice:")

# Expiration

Every entry carries its own deadline. Get treats an entry as absent once
the deadline has passed and deletes it. Sweep removes expired entries in
bulk; it is run on an interval by a supervised janitor service rather than
by a goroutine owned by the cache.

# Invalidation

Any write that changes who a user is or what they may do must invalidate
the cache before the write is acknowledged. The auth manager calls Clear on
configuration saves, migrations and password changes, and DeletePrefix on
logout and ban.

# Thread Safety

All methods are safe for concurrent use. Statistics are maintained with
atomics and never take the entry lock.
*/
package cache
