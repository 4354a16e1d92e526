// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRefreshNotFound is returned when no record exists for a token ID.
var ErrRefreshNotFound = errors.New("refresh token not found")

// RefreshRecord is the server-side state of one refresh token.
type RefreshRecord struct {
	ID        string    `json:"id"` // hex SHA-256 of the raw token
	FamilyID  string    `json:"family_id"`
	Username  string    `json:"username"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// RefreshStore persists refresh records and per-user revocation marks.
type RefreshStore interface {
	Save(ctx context.Context, rec *RefreshRecord) error
	Get(ctx context.Context, id string) (*RefreshRecord, error)

	// Revoke marks one record revoked. It reports true only for the call
	// that performed the transition, which makes rotation race-safe.
	Revoke(ctx context.Context, id string) (bool, error)
	RevokeFamily(ctx context.Context, familyID string) (int, error)
	RevokeUser(ctx context.Context, username string) (int, error)

	// SetUserMark records a revocation time kept for at least ttl.
	SetUserMark(ctx context.Context, username string, at time.Time, ttl time.Duration) error
	// UserMark returns the zero time when no mark exists.
	UserMark(ctx context.Context, username string) (time.Time, error)

	CleanupExpired(ctx context.Context, now time.Time) (int, error)
}

// MemoryRefreshStore implements RefreshStore in process memory.
type MemoryRefreshStore struct {
	mu      sync.RWMutex
	records map[string]*RefreshRecord
	marks   map[string]userMark
}

type userMark struct {
	at      time.Time
	expires time.Time
}

var _ RefreshStore = (*MemoryRefreshStore)(nil)

// NewMemoryRefreshStore creates an empty in-memory store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{
		records: make(map[string]*RefreshRecord),
		marks:   make(map[string]userMark),
	}
}

func (s *MemoryRefreshStore) Save(ctx context.Context, rec *RefreshRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryRefreshStore) Get(ctx context.Context, id string) (*RefreshRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRefreshNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryRefreshStore) Revoke(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, ErrRefreshNotFound
	}
	if rec.Revoked {
		return false, nil
	}
	rec.Revoked = true
	return true, nil
}

func (s *MemoryRefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	return s.revokeWhere(func(r *RefreshRecord) bool { return r.FamilyID == familyID }), nil
}

func (s *MemoryRefreshStore) RevokeUser(ctx context.Context, username string) (int, error) {
	return s.revokeWhere(func(r *RefreshRecord) bool { return r.Username == username }), nil
}

func (s *MemoryRefreshStore) revokeWhere(match func(*RefreshRecord) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if !rec.Revoked && match(rec) {
			rec.Revoked = true
			n++
		}
	}
	return n
}

func (s *MemoryRefreshStore) SetUserMark(ctx context.Context, username string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[username] = userMark{at: at, expires: at.Add(ttl)}
	return nil
}

func (s *MemoryRefreshStore) UserMark(ctx context.Context, username string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[username].at, nil
}

// CleanupExpired removes expired records. Revoked records are kept until
// they expire so reuse of a rotated token is still detected.
func (s *MemoryRefreshStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, id)
			n++
		}
	}
	for u, m := range s.marks {
		if !now.Before(m.expires) {
			delete(s.marks, u)
		}
	}
	return n, nil
}
