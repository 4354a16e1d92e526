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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// Key prefixes for refresh state in BadgerDB
const (
	refreshKeyPrefix       = "rt:"
	refreshFamilyKeyPrefix = "rt_family:"
	refreshUserKeyPrefix   = "rt_user:"
	refreshMarkKeyPrefix   = "rt_mark:"
)

// ErrRefreshStoreClosed is returned after Close.
var ErrRefreshStoreClosed = errors.New("refresh store closed")

// BadgerRefreshStore implements RefreshStore on BadgerDB so sessions
// survive restarts.
type BadgerRefreshStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

var _ RefreshStore = (*BadgerRefreshStore)(nil)

// OpenBadgerRefreshStore opens a dedicated database at path.
func OpenBadgerRefreshStore(path string) (*BadgerRefreshStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open refresh store: %w", err)
	}
	return &BadgerRefreshStore{db: db}, nil
}

func (s *BadgerRefreshStore) check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrRefreshStoreClosed
	}
	return nil
}

func (s *BadgerRefreshStore) Save(ctx context.Context, rec *RefreshRecord) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(refreshKeyPrefix+rec.ID), data); err != nil {
			return fmt.Errorf("set record: %w", err)
		}
		if err := txn.Set([]byte(refreshFamilyKeyPrefix+rec.FamilyID+":"+rec.ID), nil); err != nil {
			return fmt.Errorf("set family index: %w", err)
		}
		return txn.Set([]byte(refreshUserKeyPrefix+rec.Username+":"+rec.ID), nil)
	})
}

func getRecord(txn *badger.Txn, id string) (*RefreshRecord, error) {
	item, err := txn.Get([]byte(refreshKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec RefreshRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode refresh record: %w", err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, rec *RefreshRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set([]byte(refreshKeyPrefix+rec.ID), data)
}

func (s *BadgerRefreshStore) Get(ctx context.Context, id string) (*RefreshRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rec *RefreshRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	return rec, err
}

func (s *BadgerRefreshStore) Revoke(ctx context.Context, id string) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	won := false
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if rec.Revoked {
			return nil
		}
		rec.Revoked = true
		won = true
		return putRecord(txn, rec)
	})
	if errors.Is(err, badger.ErrConflict) {
		// Another transaction revoked it between our read and commit.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return won, nil
}

func (s *BadgerRefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	return s.revokeIndexed(refreshFamilyKeyPrefix + familyID + ":")
}

func (s *BadgerRefreshStore) RevokeUser(ctx context.Context, username string) (int, error) {
	return s.revokeIndexed(refreshUserKeyPrefix + username + ":")
}

func (s *BadgerRefreshStore) revokeIndexed(prefix string) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		ids := collectIDs(txn, prefix)
		for _, id := range ids {
			rec, err := getRecord(txn, id)
			if errors.Is(err, ErrRefreshNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if rec.Revoked {
				continue
			}
			rec.Revoked = true
			if err := putRecord(txn, rec); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	return count, err
}

// collectIDs returns the token IDs under an index prefix.
func collectIDs(txn *badger.Txn, prefix string) []string {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		ids = append(ids, string(it.Item().Key()[len(prefix):]))
	}
	return ids
}

func (s *BadgerRefreshStore) SetUserMark(ctx context.Context, username string, at time.Time, ttl time.Duration) error {
	if err := s.check(); err != nil {
		return err
	}
	data, err := at.MarshalBinary()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(refreshMarkKeyPrefix+username), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *BadgerRefreshStore) UserMark(ctx context.Context, username string) (time.Time, error) {
	if err := s.check(); err != nil {
		return time.Time{}, err
	}
	var at time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(refreshMarkKeyPrefix + username))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(at.UnmarshalBinary)
	})
	return at, err
}

// CleanupExpired deletes expired records and their index entries.
func (s *BadgerRefreshStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(refreshKeyPrefix)
		it := txn.NewIterator(opts)

		var expired []*RefreshRecord
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var rec RefreshRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if !now.Before(rec.ExpiresAt) {
				expired = append(expired, &rec)
			}
		}
		it.Close()

		for _, rec := range expired {
			for _, key := range []string{
				refreshKeyPrefix + rec.ID,
				refreshFamilyKeyPrefix + rec.FamilyID + ":" + rec.ID,
				refreshUserKeyPrefix + rec.Username + ":" + rec.ID,
			} {
				if err := txn.Delete([]byte(key)); err != nil {
					return err
				}
			}
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the database.
func (s *BadgerRefreshStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
