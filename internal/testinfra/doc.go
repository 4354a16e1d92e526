// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Package testinfra starts disposable containers for integration tests.
//
// Tests using it carry the integration build tag and skip when Docker is
// unavailable:
//
//	func TestRedisRefreshStore_Integration(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    rc, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, rc.Container)
//	    client := rc.Client(t, "refresh")
//	    ...
//	}
//
// Run them with:
//
//	go test -tags integration ./...
package testinfra
