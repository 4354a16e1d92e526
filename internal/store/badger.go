// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/models"
)

// Key layout
const (
	snapshotKey   = "config:snapshot"
	credKeyPrefix = "cred:"
	pendingPrefix = "pending:"
)

// BadgerStore persists the snapshot, password hashes and pending
// registrations in BadgerDB. The decoded snapshot is kept in memory; every
// write goes through a single mutex so versions are strictly sequential.
type BadgerStore struct {
	db    *badger.DB
	opts  Options
	mu    sync.RWMutex
	snap  *models.ConfigSnapshot
	dummy dummyHash
}

var _ Store = (*BadgerStore)(nil)

// OpenBadgerStore opens (or creates) a store at path. When the database has
// no snapshot yet, opts.Seed is written as version 1.
func OpenBadgerStore(path string, syncWrites bool, opts Options) (*BadgerStore, error) {
	opts.defaults()
	bopts := badger.DefaultOptions(path)
	bopts.Logger = nil
	bopts.SyncWrites = syncWrites
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	s, err := newBadgerStore(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func newBadgerStore(db *badger.DB, opts Options) (*BadgerStore, error) {
	s := &BadgerStore{db: db, opts: opts}

	var snap models.ConfigSnapshot
	err := db.View(func(txn *badger.Txn) error {
		return getJSON(txn, snapshotKey, &snap)
	})
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		seed := opts.Seed.Clone()
		prepareSave(&models.ConfigSnapshot{}, seed, opts.Now())
		if err := db.Update(func(txn *badger.Txn) error {
			return setJSON(txn, snapshotKey, seed)
		}); err != nil {
			return nil, fmt.Errorf("seed store: %w", err)
		}
		logging.Info().Int64("version", seed.Version).Msg("Credential store seeded")
		s.snap = seed
	case err != nil:
		return nil, fmt.Errorf("load snapshot: %w", err)
	default:
		s.snap = &snap
	}
	return s, nil
}

func getJSON(txn *badger.Txn, key string, v interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set([]byte(key), data)
}

func (s *BadgerStore) current() (*models.ConfigSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, ErrClosed
	}
	return s.snap.Clone(), nil
}

func (s *BadgerStore) Snapshot(ctx context.Context) (*models.ConfigSnapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	return s.current()
}

func (s *BadgerStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	u := snap.FindUser(username)
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *BadgerStore) ListUsers(ctx context.Context) ([]models.User, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Users, nil
}

func (s *BadgerStore) ListTags(ctx context.Context) ([]models.Tag, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Tags, nil
}

func (s *BadgerStore) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	if err := checkCtx(ctx); err != nil {
		return false, err
	}
	if _, err := s.current(); err != nil {
		return false, err
	}
	var hash []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(credKeyPrefix + username))
		if err != nil {
			return err
		}
		hash, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.opts.Hasher.Compare(s.dummy.get(s.opts.Hasher), password)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read credential: %w", err)
	}
	return s.opts.Hasher.Compare(hash, password), nil
}

func (s *BadgerStore) SaveConfig(ctx context.Context, snap *models.ConfigSnapshot) (*models.ConfigSnapshot, error) {
	return s.Update(ctx, func(cur *models.ConfigSnapshot) error {
		*cur = *snap.Clone()
		return nil
	})
}

func (s *BadgerStore) Update(ctx context.Context, fn UpdateFunc) (*models.ConfigSnapshot, error) {
	return s.write(ctx, fn, nil)
}

// write applies fn to the snapshot and commits it together with whatever
// extra key changes the caller adds, in one transaction. The in-memory
// snapshot only moves after a successful commit.
func (s *BadgerStore) write(ctx context.Context, fn UpdateFunc, extra func(txn *badger.Txn, next *models.ConfigSnapshot) error) (*models.ConfigSnapshot, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil, ErrClosed
	}

	next := s.snap.Clone()
	if fn != nil {
		if err := fn(next); err != nil {
			return nil, err
		}
		prepareSave(s.snap, next, s.opts.Now())
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if extra != nil {
			if err := extra(txn, next); err != nil {
				return err
			}
		}
		if fn == nil {
			return nil
		}
		return setJSON(txn, snapshotKey, next)
	})
	if err != nil {
		return nil, err
	}
	s.snap = next
	return next.Clone(), nil
}

func (s *BadgerStore) ChangePassword(ctx context.Context, username, newPassword string) error {
	hash, err := s.opts.Hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.write(ctx, nil, func(txn *badger.Txn, cur *models.ConfigSnapshot) error {
		if cur.FindUser(username) == nil {
			return ErrUserNotFound
		}
		return txn.Set([]byte(credKeyPrefix+username), hash)
	})
	return err
}

func (s *BadgerStore) CreateUser(ctx context.Context, user models.User, password string) error {
	hash, err := s.opts.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.write(ctx, func(snap *models.ConfigSnapshot) error {
		if snap.FindUser(user.Username) != nil {
			return ErrUserExists
		}
		snap.Users = append(snap.Users, user.Clone())
		return nil
	}, func(txn *badger.Txn, _ *models.ConfigSnapshot) error {
		return txn.Set([]byte(credKeyPrefix+user.Username), hash)
	})
	return err
}

func (s *BadgerStore) DeleteUser(ctx context.Context, username string) error {
	_, err := s.write(ctx, func(snap *models.ConfigSnapshot) error {
		if !removeUser(snap, username) {
			return ErrUserNotFound
		}
		return nil
	}, func(txn *badger.Txn, _ *models.ConfigSnapshot) error {
		return txn.Delete([]byte(credKeyPrefix + username))
	})
	return err
}

func (s *BadgerStore) AddPending(ctx context.Context, pending models.PendingUser, password string) error {
	hash, err := s.opts.Hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if pending.RequestedAt.IsZero() {
		pending.RequestedAt = s.opts.Now().UTC()
	}
	_, err = s.write(ctx, nil, func(txn *badger.Txn, cur *models.ConfigSnapshot) error {
		if cur.FindUser(pending.Username) != nil {
			return ErrUserExists
		}
		key := pendingPrefix + pending.Username
		if _, err := txn.Get([]byte(key)); err == nil {
			return ErrPendingExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, key, pendingRecord{Pending: pending, Hash: hash})
	})
	return err
}

func (s *BadgerStore) ListPending(ctx context.Context) ([]models.PendingUser, error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if _, err := s.current(); err != nil {
		return nil, err
	}
	out := []models.PendingUser{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pendingPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec pendingRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode pending: %w", err)
			}
			out = append(out, rec.Pending)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortPending(out)
	return out, nil
}

func (s *BadgerStore) takePending(txn *badger.Txn, username string) (pendingRecord, error) {
	var rec pendingRecord
	err := getJSON(txn, pendingPrefix+username, &rec)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return rec, ErrPendingNotFound
	}
	if err != nil {
		return rec, err
	}
	return rec, txn.Delete([]byte(pendingPrefix + username))
}

func (s *BadgerStore) TakePending(ctx context.Context, username string) (models.PendingUser, error) {
	var rec pendingRecord
	_, err := s.write(ctx, nil, func(txn *badger.Txn, _ *models.ConfigSnapshot) error {
		var err error
		rec, err = s.takePending(txn, username)
		return err
	})
	if err != nil {
		return models.PendingUser{}, err
	}
	return rec.Pending, nil
}

func (s *BadgerStore) ApprovePending(ctx context.Context, username string, user models.User) (*models.ConfigSnapshot, error) {
	user.Username = username
	return s.write(ctx, func(snap *models.ConfigSnapshot) error {
		if snap.FindUser(username) != nil {
			return ErrUserExists
		}
		snap.Users = append(snap.Users, user.Clone())
		return nil
	}, func(txn *badger.Txn, _ *models.ConfigSnapshot) error {
		rec, err := s.takePending(txn, username)
		if err != nil {
			return err
		}
		return txn.Set([]byte(credKeyPrefix+username), rec.Hash)
	})
}

// Close flushes and closes the database. Further calls return ErrClosed.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return nil
	}
	s.snap = nil
	return s.db.Close()
}
