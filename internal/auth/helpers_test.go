// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"sync"
	"testing"
	"time"
)

const testSecret = "test-secret-with-at-least-32-characters"

// fakeClock is a settable clock for codec and manager tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestCodec(t *testing.T, clock *fakeClock, rotate bool) (*TokenCodec, *MemoryRefreshStore) {
	t.Helper()
	rs := NewMemoryRefreshStore()
	codec, err := NewTokenCodec(CodecConfig{
		Secret:     []byte(testSecret),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Rotate:     rotate,
		Now:        clock.Now,
	}, rs)
	if err != nil {
		t.Fatalf("NewTokenCodec() error = %v", err)
	}
	return codec, rs
}
