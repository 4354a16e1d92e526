// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/reelgate/internal/config"
)

func newTestLockout(cfg config.LockoutConfig, clock *fakeClock) *LockoutManager {
	cfg.Enabled = true
	m := NewLockoutManager(NewMemoryLockoutStore(), cfg)
	m.now = clock.Now
	return m
}

func TestLockoutManager_LocksAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	m := newTestLockout(config.LockoutConfig{MaxAttempts: 3, Duration: 5 * time.Minute}, clock)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		locked, _, err := m.RecordFailedAttempt(ctx, "alice", "10.0.0.1")
		if err != nil {
			t.Fatalf("RecordFailedAttempt() error = %v", err)
		}
		if locked {
			t.Fatalf("locked after %d attempts, want 3", i)
		}
	}

	locked, remaining, err := m.RecordFailedAttempt(ctx, "alice", "10.0.0.1")
	if err != nil {
		t.Fatal(err)
	}
	if !locked || remaining != 5*time.Minute {
		t.Errorf("third attempt = %v, %v; want locked for 5m", locked, remaining)
	}

	locked, _, _ = m.CheckLocked(ctx, "alice", "10.0.0.1")
	if !locked {
		t.Error("CheckLocked() = false after lockout")
	}
	if other, _, _ := m.CheckLocked(ctx, "bob", "10.0.0.1"); other {
		t.Error("lockout leaked to another username without IP tracking")
	}

	clock.Advance(5 * time.Minute)
	if locked, _, _ := m.CheckLocked(ctx, "alice", ""); locked {
		t.Error("lockout did not expire")
	}
}

func TestLockoutManager_Disabled(t *testing.T) {
	m := NewLockoutManager(nil, config.LockoutConfig{Enabled: false, MaxAttempts: 1})
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if locked, _, _ := m.RecordFailedAttempt(ctx, "alice", ""); locked {
			t.Fatal("disabled lockout locked an account")
		}
	}
	if locked, _, _ := m.CheckLocked(ctx, "alice", ""); locked {
		t.Error("disabled lockout reports locked")
	}
}

func TestLockoutManager_SuccessResetsUsernameOnly(t *testing.T) {
	clock := newFakeClock()
	m := newTestLockout(config.LockoutConfig{MaxAttempts: 3, Duration: time.Hour, TrackByIP: true}, clock)
	ctx := context.Background()

	_, _, _ = m.RecordFailedAttempt(ctx, "alice", "10.0.0.1")
	_, _, _ = m.RecordFailedAttempt(ctx, "alice", "10.0.0.1")
	if err := m.RecordSuccessfulLogin(ctx, "alice"); err != nil {
		t.Fatalf("RecordSuccessfulLogin() error = %v", err)
	}

	// Username count restarted; the IP count did not.
	locked, _, _ := m.RecordFailedAttempt(ctx, "alice", "10.0.0.1")
	if !locked {
		t.Error("IP should lock on its third failure")
	}
	if locked, _, _ := m.CheckLocked(ctx, "carol", "10.0.0.1"); !locked {
		t.Error("IP lockout should apply to other usernames")
	}
	if locked, _, _ := m.CheckLocked(ctx, "alice", "10.0.0.2"); locked {
		t.Error("username should not be locked after success reset")
	}
}

func TestCalculateLockoutDuration(t *testing.T) {
	cfg := config.LockoutConfig{Duration: time.Minute, MaxDuration: 10 * time.Minute, ExponentialBackoff: true}
	tests := []struct {
		count int
		want  time.Duration
	}{
		{0, time.Minute},
		{1, 2 * time.Minute},
		{3, 8 * time.Minute},
		{4, 10 * time.Minute},
		{62, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := calculateLockoutDuration(cfg, tt.count); got != tt.want {
			t.Errorf("calculateLockoutDuration(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}

	cfg.ExponentialBackoff = false
	if got := calculateLockoutDuration(cfg, 5); got != time.Minute {
		t.Errorf("without backoff = %v, want 1m", got)
	}
}

func TestLockoutManager_BackoffGrows(t *testing.T) {
	clock := newFakeClock()
	m := newTestLockout(config.LockoutConfig{
		MaxAttempts: 1, Duration: time.Minute, MaxDuration: time.Hour, ExponentialBackoff: true,
	}, clock)
	ctx := context.Background()

	_, first, _ := m.RecordFailedAttempt(ctx, "alice", "")
	clock.Advance(first)
	_, second, _ := m.RecordFailedAttempt(ctx, "alice", "")
	if first != time.Minute || second != 2*time.Minute {
		t.Errorf("durations = %v, %v; want 1m, 2m", first, second)
	}
}

func TestLockoutManager_CallbackAndList(t *testing.T) {
	clock := newFakeClock()
	m := newTestLockout(config.LockoutConfig{MaxAttempts: 1, Duration: time.Minute}, clock)
	ctx := context.Background()

	var got []string
	m.SetOnLockout(func(e LockoutEntry) { got = append(got, e.Subject) })
	_, _, _ = m.RecordFailedAttempt(ctx, "alice", "")

	if len(got) != 1 || got[0] != "alice" {
		t.Errorf("callback subjects = %v, want [alice]", got)
	}
	locked, err := m.LockedSubjects(ctx)
	if err != nil || len(locked) != 1 {
		t.Fatalf("LockedSubjects() = %v, %v", locked, err)
	}

	if err := m.ClearLockout(ctx, "alice"); err != nil {
		t.Fatalf("ClearLockout() error = %v", err)
	}
	if l, _, _ := m.CheckLocked(ctx, "alice", ""); l {
		t.Error("still locked after ClearLockout")
	}
}

func TestMemoryLockoutStore_CleanupExpired(t *testing.T) {
	s := NewMemoryLockoutStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_ = s.SaveEntry(ctx, &LockoutEntry{Subject: "stale", LastAttempt: now.Add(-25 * time.Hour)})
	_ = s.SaveEntry(ctx, &LockoutEntry{Subject: "recent", LastAttempt: now.Add(-time.Hour)})
	_ = s.SaveEntry(ctx, &LockoutEntry{Subject: "locked", LastAttempt: now.Add(-25 * time.Hour), LockedUntil: now.Add(time.Hour)})

	n, err := s.CleanupExpired(ctx, now)
	if err != nil || n != 1 {
		t.Errorf("CleanupExpired() = %d, %v; want 1", n, err)
	}
	if _, err := s.GetEntry(ctx, "stale"); err == nil {
		t.Error("stale entry survived cleanup")
	}
}
