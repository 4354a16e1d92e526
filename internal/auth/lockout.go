// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
)

// ErrLockoutNotFound is returned when a lockout entry doesn't exist.
var ErrLockoutNotFound = errors.New("lockout entry not found")

// LockoutEntry tracks failed login attempts for a subject (username or "ip:<addr>").
type LockoutEntry struct {
	Subject        string    `json:"subject"`
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	LockoutCount   int       `json:"lockout_count"` // drives exponential backoff
	LockedUntil    time.Time `json:"locked_until"`
	LastFailedIP   string    `json:"last_failed_ip,omitempty"`
}

func (e *LockoutEntry) lockedAt(now time.Time) bool {
	return now.Before(e.LockedUntil)
}

// LockoutStore defines lockout state persistence.
type LockoutStore interface {
	GetEntry(ctx context.Context, subject string) (*LockoutEntry, error)
	SaveEntry(ctx context.Context, entry *LockoutEntry) error
	DeleteEntry(ctx context.Context, subject string) error
	ListEntries(ctx context.Context) ([]*LockoutEntry, error)
	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}

// LockoutManager locks subjects after repeated failed logins.
type LockoutManager struct {
	cfg   config.LockoutConfig
	store LockoutStore
	now   func() time.Time
	// serializes read-modify-write of entries
	mu sync.Mutex

	onLockout func(entry LockoutEntry)
}

// NewLockoutManager creates a lockout manager. A nil store gets an in-memory one.
func NewLockoutManager(store LockoutStore, cfg config.LockoutConfig) *LockoutManager {
	if store == nil {
		store = NewMemoryLockoutStore()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	if cfg.MaxDuration < cfg.Duration {
		cfg.MaxDuration = cfg.Duration
	}
	return &LockoutManager{cfg: cfg, store: store, now: time.Now}
}

// SetOnLockout sets a callback invoked synchronously when a subject locks.
func (m *LockoutManager) SetOnLockout(fn func(entry LockoutEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLockout = fn
}

// Enabled reports whether lockout is active.
func (m *LockoutManager) Enabled() bool { return m.cfg.Enabled }

// CheckLocked returns true and the remaining time if username, or the
// client IP when tracked, is locked.
func (m *LockoutManager) CheckLocked(ctx context.Context, username, ip string) (bool, time.Duration, error) {
	if !m.cfg.Enabled {
		return false, 0, nil
	}
	for _, subject := range m.subjects(username, ip) {
		entry, err := m.store.GetEntry(ctx, subject)
		if errors.Is(err, ErrLockoutNotFound) {
			continue
		}
		if err != nil {
			return false, 0, fmt.Errorf("check lockout: %w", err)
		}
		now := m.now()
		if entry.lockedAt(now) {
			return true, entry.LockedUntil.Sub(now), nil
		}
	}
	return false, 0, nil
}

func (m *LockoutManager) subjects(username, ip string) []string {
	subjects := make([]string, 0, 2)
	if username != "" {
		subjects = append(subjects, username)
	}
	if m.cfg.TrackByIP && ip != "" {
		subjects = append(subjects, "ip:"+ip)
	}
	return subjects
}

// RecordFailedAttempt records a failed login and reports whether the
// username or IP is now locked.
func (m *LockoutManager) RecordFailedAttempt(ctx context.Context, username, ip string) (bool, time.Duration, error) {
	if !m.cfg.Enabled {
		return false, 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		locked    bool
		remaining time.Duration
	)
	for _, subject := range m.subjects(username, ip) {
		l, r, err := m.recordAttemptForSubject(ctx, subject, ip)
		if err != nil {
			return false, 0, err
		}
		if l && r > remaining {
			locked, remaining = true, r
		}
	}
	return locked, remaining, nil
}

// calculateLockoutDuration doubles the base duration per previous lockout, capped.
func calculateLockoutDuration(cfg config.LockoutConfig, lockoutCount int) time.Duration {
	duration := cfg.Duration
	if !cfg.ExponentialBackoff || lockoutCount == 0 {
		return duration
	}
	if lockoutCount > 30 {
		return cfg.MaxDuration
	}
	duration = time.Duration(int64(duration) * int64(1<<lockoutCount))
	if duration > cfg.MaxDuration || duration <= 0 {
		return cfg.MaxDuration
	}
	return duration
}

func (m *LockoutManager) recordAttemptForSubject(ctx context.Context, subject, ip string) (bool, time.Duration, error) {
	entry, err := m.store.GetEntry(ctx, subject)
	if errors.Is(err, ErrLockoutNotFound) {
		entry = &LockoutEntry{Subject: subject}
	} else if err != nil {
		return false, 0, fmt.Errorf("get entry: %w", err)
	}

	now := m.now()
	if entry.lockedAt(now) {
		return true, entry.LockedUntil.Sub(now), nil
	}

	entry.FailedAttempts++
	entry.LastAttempt = now
	entry.LastFailedIP = ip

	if entry.FailedAttempts < m.cfg.MaxAttempts {
		if err := m.store.SaveEntry(ctx, entry); err != nil {
			return false, 0, fmt.Errorf("save entry: %w", err)
		}
		return false, 0, nil
	}

	duration := calculateLockoutDuration(m.cfg, entry.LockoutCount)
	entry.LockedUntil = now.Add(duration)
	entry.LockoutCount++
	entry.FailedAttempts = 0

	if err := m.store.SaveEntry(ctx, entry); err != nil {
		return false, 0, fmt.Errorf("save locked entry: %w", err)
	}

	logging.Warn().
		Str("subject", logging.SanitizeUsername(subject)).
		Dur("duration", duration).
		Int("lockout_count", entry.LockoutCount).
		Msg("Account locked")
	metrics.AccountLockouts.Inc()
	if m.onLockout != nil {
		m.onLockout(*entry)
	}
	return true, duration, nil
}

// RecordSuccessfulLogin clears the username's failure count. The IP entry
// is left alone so one valid account cannot reset a spraying IP.
func (m *LockoutManager) RecordSuccessfulLogin(ctx context.Context, username string) error {
	if !m.cfg.Enabled {
		return nil
	}
	if err := m.store.DeleteEntry(ctx, username); err != nil && !errors.Is(err, ErrLockoutNotFound) {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

// ClearLockout manually clears a lockout (admin action).
func (m *LockoutManager) ClearLockout(ctx context.Context, subject string) error {
	if err := m.store.DeleteEntry(ctx, subject); err != nil && !errors.Is(err, ErrLockoutNotFound) {
		return fmt.Errorf("clear lockout: %w", err)
	}
	logging.Info().Str("subject", logging.SanitizeUsername(subject)).Msg("Manually cleared lockout")
	return nil
}

// LockedSubjects returns every currently locked entry.
func (m *LockoutManager) LockedSubjects(ctx context.Context) ([]LockoutEntry, error) {
	entries, err := m.store.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list lockouts: %w", err)
	}
	now := m.now()
	var locked []LockoutEntry
	for _, e := range entries {
		if e.lockedAt(now) {
			locked = append(locked, *e)
		}
	}
	return locked, nil
}

// Cleanup removes entries that are neither locked nor recently active.
// It is run by the supervised janitor.
func (m *LockoutManager) Cleanup(ctx context.Context) error {
	count, err := m.store.CleanupExpired(ctx, m.now())
	if err != nil {
		return fmt.Errorf("lockout cleanup: %w", err)
	}
	if count > 0 {
		logging.Debug().Int("count", count).Msg("Cleaned up expired lockout entries")
	}
	return nil
}

// CleanupInterval returns the configured janitor period.
func (m *LockoutManager) CleanupInterval() time.Duration {
	if m.cfg.CleanupInterval <= 0 {
		return 5 * time.Minute
	}
	return m.cfg.CleanupInterval
}

// MemoryLockoutStore implements LockoutStore in memory.
type MemoryLockoutStore struct {
	entries map[string]*LockoutEntry
	mu      sync.RWMutex
	// retention after the last attempt once unlocked
	retention time.Duration
}

// NewMemoryLockoutStore creates a new in-memory lockout store.
func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{
		entries:   make(map[string]*LockoutEntry),
		retention: 24 * time.Hour,
	}
}

func (s *MemoryLockoutStore) GetEntry(ctx context.Context, subject string) (*LockoutEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[subject]
	if !ok {
		return nil, ErrLockoutNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryLockoutStore) SaveEntry(ctx context.Context, entry *LockoutEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	s.entries[entry.Subject] = &cp
	return nil
}

func (s *MemoryLockoutStore) DeleteEntry(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[subject]; !ok {
		return ErrLockoutNotFound
	}
	delete(s.entries, subject)
	return nil
}

func (s *MemoryLockoutStore) ListEntries(ctx context.Context) ([]*LockoutEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*LockoutEntry, 0, len(s.entries))
	for _, e := range s.entries {
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryLockoutStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	threshold := now.Add(-s.retention)
	count := 0
	for subject, e := range s.entries {
		if !e.lockedAt(now) && e.LastAttempt.Before(threshold) {
			delete(s.entries, subject)
			count++
		}
	}
	return count, nil
}
