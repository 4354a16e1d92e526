// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

/*
Package store holds Reelgate's credential store.

The store owns three kinds of data:

  - the permission-bearing configuration document (models.ConfigSnapshot),
    replaced atomically and versioned on every save
  - password hashes, one per stored user, kept apart from the snapshot
  - registrations awaiting approval, each with its password hash

Two implementations share one contract: MemoryStore for tests and ephemeral
deployments, and BadgerStore for durable storage.

Every save increments the snapshot Version. A user's PermissionVersion moves
when their role, ban state, tags, sources or features change, or when a tag
they belong to changes. New accounts start above every version handed out
before, so a re-created name never repeats one. Callers cannot set
PermissionVersion directly.

Plaintext passwords are handed to the injected Hasher and never stored.
*/
package store
