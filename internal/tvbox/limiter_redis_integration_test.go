// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

//go:build integration

package tvbox

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/reelgate/internal/testinfra"
)

func TestRedisLimiter_Integration(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("NewRedisContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc.Container)

	l := NewRedisLimiter(rc.Client(t, "tvbox"), 2*time.Second)

	for i := 1; i <= 5; i++ {
		res, err := l.Allow(ctx, "user:alice", 5)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d = %+v, %v; want allowed", i, res, err)
		}
	}
	res, err := l.Allow(ctx, "user:alice", 5)
	if err != nil || res.Allowed {
		t.Fatalf("6th request = %+v, %v; want rejected", res, err)
	}
	if res.ResetIn <= 0 || res.ResetIn > 2*time.Second {
		t.Errorf("ResetIn = %v, want within the window", res.ResetIn)
	}

	if err := l.Reset(ctx, "user:alice"); err != nil {
		t.Fatal(err)
	}
	if res, _ := l.Allow(ctx, "user:alice", 5); !res.Allowed || res.Count != 1 {
		t.Errorf("after Reset() = %+v, want count 1", res)
	}

	_, _ = l.Allow(ctx, "user:bob", 1)
	time.Sleep(2100 * time.Millisecond)
	if res, _ := l.Allow(ctx, "user:bob", 1); !res.Allowed {
		t.Errorf("after window rollover = %+v, want allowed", res)
	}
}
