// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package tvbox

import (
	"context"
	"sync"
	"time"
)

// Result is the state of a counter after one request was counted.
type Result struct {
	Allowed bool
	Count   int
	Limit   int
	// ResetIn is the time until the current window closes.
	ResetIn time.Duration
}

// Limiter counts requests per identifier in fixed windows.
type Limiter interface {
	// Allow counts one request for key and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int) (Result, error)
	// Reset clears the counter of key.
	Reset(ctx context.Context, key string) error
}

// MemoryLimiter is a process-local fixed-window limiter. Windows reset
// lazily on the next request after they close; Sweep drops closed ones.
type MemoryLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	buckets map[string]*windowBucket
	now     func() time.Time
}

type windowBucket struct {
	start time.Time
	count int
}

// NewMemoryLimiter creates a limiter with the given window, one minute if unset.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{
		window:  window,
		buckets: make(map[string]*windowBucket),
		now:     time.Now,
	}
}

// Allow implements Limiter.
func (l *MemoryLimiter) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.start.Add(l.window)) {
		b = &windowBucket{start: now}
		l.buckets[key] = b
	}
	b.count++
	return Result{
		Allowed: b.count <= limit,
		Count:   b.count,
		Limit:   limit,
		ResetIn: b.start.Add(l.window).Sub(now),
	}, nil
}

// Reset implements Limiter.
func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

// Sweep removes counters whose window has closed and returns how many.
func (l *MemoryLimiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.start.Add(l.window)) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live counters.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
