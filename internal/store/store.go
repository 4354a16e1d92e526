// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/reelgate/internal/models"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrUserNotFound    = errors.New("store: user not found")
	ErrUserExists      = errors.New("store: user already exists")
	ErrPendingNotFound = errors.New("store: pending registration not found")
	ErrPendingExists   = errors.New("store: registration already pending")
	ErrClosed          = errors.New("store: closed")
)

// Hasher hashes and compares passwords. The store never sees a plaintext
// password outside these two calls.
type Hasher interface {
	Hash(password string) ([]byte, error)
	Compare(hash []byte, password string) bool
}

// UpdateFunc mutates a private copy of the snapshot. Returning an error
// aborts the update and nothing is written.
type UpdateFunc func(snap *models.ConfigSnapshot) error

// Store is the credential store contract.
//
// The permission-bearing configuration is a single versioned document
// (models.ConfigSnapshot); SaveConfig and Update replace it atomically.
// Password hashes are kept apart from the snapshot and never leave the store.
type Store interface {
	// Snapshot returns a deep copy of the current configuration.
	Snapshot(ctx context.Context) (*models.ConfigSnapshot, error)
	GetUser(ctx context.Context, username string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListTags(ctx context.Context) ([]models.Tag, error)

	// VerifyPassword reports whether password matches the stored hash.
	// Unknown users return false after a comparable amount of work.
	VerifyPassword(ctx context.Context, username, password string) (bool, error)

	// SaveConfig overwrites the whole configuration and returns the stored version.
	SaveConfig(ctx context.Context, snap *models.ConfigSnapshot) (*models.ConfigSnapshot, error)
	// Update applies fn to a copy of the current configuration and saves the result.
	Update(ctx context.Context, fn UpdateFunc) (*models.ConfigSnapshot, error)

	ChangePassword(ctx context.Context, username, newPassword string) error
	CreateUser(ctx context.Context, user models.User, password string) error
	DeleteUser(ctx context.Context, username string) error

	AddPending(ctx context.Context, pending models.PendingUser, password string) error
	ListPending(ctx context.Context) ([]models.PendingUser, error)
	// TakePending removes and returns a pending registration (rejection path).
	TakePending(ctx context.Context, username string) (models.PendingUser, error)
	// ApprovePending moves a pending registration into the active users,
	// carrying its password hash, in one atomic write.
	ApprovePending(ctx context.Context, username string, user models.User) (*models.ConfigSnapshot, error)

	Close() error
}

// Options configure both store implementations.
type Options struct {
	Hasher Hasher
	// Seed is written when the store holds no configuration yet.
	Seed *models.ConfigSnapshot
	Now  func() time.Time
}

func (o *Options) defaults() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Seed == nil {
		o.Seed = models.NewConfigSnapshot()
	}
}

// pendingRecord is the persisted form of a registration awaiting approval.
type pendingRecord struct {
	Pending models.PendingUser `json:"pending"`
	Hash    []byte             `json:"hash"`
}

// prepareSave stamps next as the successor of prev: the snapshot version
// increments, and every user whose effective permissions may have changed
// gets PermissionVersion+1. A user is affected when their own permission
// fields differ or when any tag they belong to changed.
func prepareSave(prev, next *models.ConfigSnapshot, now time.Time) {
	next.Version = prev.Version + 1
	next.UpdatedAt = now.UTC()

	changedTags := make(map[string]bool)
	for i := range next.Tags {
		t := &next.Tags[i]
		old := prev.FindTag(t.Name)
		if old == nil || old.Features != t.Features || !sameSet(old.EnabledAPIs, t.EnabledAPIs) {
			changedTags[t.Name] = true
		}
	}
	for i := range prev.Tags {
		if next.FindTag(prev.Tags[i].Name) == nil {
			changedTags[prev.Tags[i].Name] = true
		}
	}

	// New accounts start at the store-wide high-water mark, so a name that
	// is deleted and re-created never repeats a version a client has seen.
	// Versions move at most once per save, so next.Version bounds every
	// version handed out so far.
	start := next.Version
	for i := range prev.Users {
		start = max(start, prev.Users[i].PermissionVersion+1)
	}

	for i := range next.Users {
		u := &next.Users[i]
		old := prev.FindUser(u.Username)
		if old == nil {
			if u.CreatedAt.IsZero() {
				u.CreatedAt = now.UTC()
			}
			u.PermissionVersion = start
			continue
		}
		u.CreatedAt = old.CreatedAt
		// The version is owned by the store; callers cannot move it.
		u.PermissionVersion = old.PermissionVersion
		if !u.PermissionsEqual(old) || touchesTag(u, changedTags) {
			u.PermissionVersion++
		}
	}
}

func touchesTag(u *models.User, changed map[string]bool) bool {
	for _, name := range u.Tags {
		if changed[name] {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := slices.Clone(a)
	bs := slices.Clone(b)
	slices.Sort(as)
	slices.Sort(bs)
	return slices.Equal(as, bs)
}

// removeUser drops a user and the box-client tokens they own.
func removeUser(snap *models.ConfigSnapshot, username string) bool {
	idx := slices.IndexFunc(snap.Users, func(u models.User) bool { return u.Username == username })
	if idx < 0 {
		return false
	}
	snap.Users = slices.Delete(snap.Users, idx, idx+1)
	snap.TVBox.UserTokens = slices.DeleteFunc(snap.TVBox.UserTokens, func(t models.UserToken) bool {
		return t.Username == username
	})
	return true
}

// dummyHash lets VerifyPassword spend bcrypt time on unknown users.
type dummyHash struct {
	once sync.Once
	hash []byte
}

func (d *dummyHash) get(h Hasher) []byte {
	d.once.Do(func() {
		d.hash, _ = h.Hash("reelgate-timing-equalizer")
	})
	return d.hash
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}
