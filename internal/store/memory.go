// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tomtom215/reelgate/internal/models"
)

// MemoryStore keeps everything in process memory. It is used in tests and
// for deployments that configure storage as "memory".
type MemoryStore struct {
	mu      sync.RWMutex
	opts    Options
	snap    *models.ConfigSnapshot
	creds   map[string][]byte
	pending map[string]pendingRecord
	closed  bool
	dummy   dummyHash
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding a copy of opts.Seed.
func NewMemoryStore(opts Options) *MemoryStore {
	opts.defaults()
	return &MemoryStore{
		opts:    opts,
		snap:    opts.Seed.Clone(),
		creds:   make(map[string][]byte),
		pending: make(map[string]pendingRecord),
	}
}

func (m *MemoryStore) Snapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.snap.Clone(), nil
}

func (m *MemoryStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	u := snap.FindUser(username)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *MemoryStore) ListUsers(ctx context.Context) ([]models.User, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Users, nil
}

func (m *MemoryStore) ListTags(ctx context.Context) ([]models.Tag, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tags, nil
}

func (m *MemoryStore) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	m.mu.RLock()
	hash, ok := m.creds[username]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return false, ErrClosed
	}
	if !ok {
		m.opts.Hasher.Compare(m.dummy.get(m.opts.Hasher), password)
		return false, nil
	}
	return m.opts.Hasher.Compare(hash, password), nil
}

func (m *MemoryStore) SaveConfig(ctx context.Context, snap *models.ConfigSnapshot) (*models.ConfigSnapshot, error) {
	return m.Update(ctx, func(s *models.ConfigSnapshot) error {
		*s = *snap.Clone()
		return nil
	})
}

func (m *MemoryStore) Update(ctx context.Context, fn UpdateFunc) (*models.ConfigSnapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	next, err := m.apply(fn)
	if err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// apply must be called with mu held.
func (m *MemoryStore) apply(fn UpdateFunc) (*models.ConfigSnapshot, error) {
	next := m.snap.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	prepareSave(m.snap, next, m.opts.Now())
	m.snap = next
	return next, nil
}

func (m *MemoryStore) ChangePassword(ctx context.Context, username, newPassword string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	hash, err := m.opts.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.snap.FindUser(username) == nil {
		return ErrUserNotFound
	}
	m.creds[username] = hash
	return nil
}

func (m *MemoryStore) CreateUser(ctx context.Context, user models.User, password string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	hash, err := m.opts.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.snap.FindUser(user.Username) != nil {
		return ErrUserExists
	}
	if _, err := m.apply(func(s *models.ConfigSnapshot) error {
		s.Users = append(s.Users, user.Clone())
		return nil
	}); err != nil {
		return err
	}
	m.creds[user.Username] = hash
	return nil
}

func (m *MemoryStore) DeleteUser(ctx context.Context, username string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.snap.FindUser(username) == nil {
		return ErrUserNotFound
	}
	if _, err := m.apply(func(s *models.ConfigSnapshot) error {
		removeUser(s, username)
		return nil
	}); err != nil {
		return err
	}
	delete(m.creds, username)
	return nil
}

func (m *MemoryStore) AddPending(ctx context.Context, pending models.PendingUser, password string) error {
	if err := checkCtx(ctx); err != nil {
		return err
	}
	hash, err := m.opts.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.snap.FindUser(pending.Username) != nil {
		return ErrUserExists
	}
	if _, ok := m.pending[pending.Username]; ok {
		return ErrPendingExists
	}
	if pending.RequestedAt.IsZero() {
		pending.RequestedAt = m.opts.Now().UTC()
	}
	m.pending[pending.Username] = pendingRecord{Pending: pending, Hash: hash}
	return nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]models.PendingUser, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]models.PendingUser, 0, len(m.pending))
	for _, rec := range m.pending {
		out = append(out, rec.Pending)
	}
	sortPending(out)
	return out, nil
}

func (m *MemoryStore) TakePending(ctx context.Context, username string) (models.PendingUser, error) {
	if err := checkCtx(ctx); err != nil {
		return models.PendingUser{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.PendingUser{}, ErrClosed
	}
	rec, ok := m.pending[username]
	if !ok {
		return models.PendingUser{}, ErrPendingNotFound
	}
	delete(m.pending, username)
	return rec.Pending, nil
}

func (m *MemoryStore) ApprovePending(ctx context.Context, username string, user models.User) (*models.ConfigSnapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.pending[username]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if m.snap.FindUser(username) != nil {
		return nil, ErrUserExists
	}
	user.Username = username
	next, err := m.apply(func(s *models.ConfigSnapshot) error {
		s.Users = append(s.Users, user.Clone())
		return nil
	})
	if err != nil {
		return nil, err
	}
	delete(m.pending, username)
	m.creds[username] = rec.Hash
	return next.Clone(), nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func sortPending(p []models.PendingUser) {
	sort.SliceStable(p, func(i, j int) bool {
		if p[i].RequestedAt.Equal(p[j].RequestedAt) {
			return p[i].Username < p[j].Username
		}
		return p[i].RequestedAt.Before(p[j].RequestedAt)
	})
}

