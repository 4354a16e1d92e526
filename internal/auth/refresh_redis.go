// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/reelgate/internal/redisclient"
)

// redisRecordGrace keeps a record past its expiry so an expired token is
// reported as expired rather than unknown.
const redisRecordGrace = time.Hour

// RedisRefreshStore implements RefreshStore on Redis for multi-instance
// deployments. Records expire through Redis TTLs.
type RedisRefreshStore struct {
	c *redisclient.Client
}

var _ RefreshStore = (*RedisRefreshStore)(nil)

// NewRedisRefreshStore uses c for all calls.
func NewRedisRefreshStore(c *redisclient.Client) *RedisRefreshStore {
	return &RedisRefreshStore{c: c}
}

func (s *RedisRefreshStore) recordKey(id string) string { return s.c.Key("rt", id) }
func (s *RedisRefreshStore) familyKey(f string) string  { return s.c.Key("rt_family", f) }
func (s *RedisRefreshStore) userKey(u string) string    { return s.c.Key("rt_user", u) }
func (s *RedisRefreshStore) markKey(u string) string    { return s.c.Key("rt_mark", u) }

func (s *RedisRefreshStore) Save(ctx context.Context, rec *RefreshRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal refresh record: %w", err)
	}
	until := rec.ExpiresAt.Add(redisRecordGrace)
	return s.c.Exec(func(rdb redis.UniversalClient) error {
		_, err := rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, s.recordKey(rec.ID), data, 0)
			p.ExpireAt(ctx, s.recordKey(rec.ID), until)
			p.SAdd(ctx, s.familyKey(rec.FamilyID), rec.ID)
			p.ExpireAt(ctx, s.familyKey(rec.FamilyID), until)
			p.SAdd(ctx, s.userKey(rec.Username), rec.ID)
			p.ExpireAt(ctx, s.userKey(rec.Username), until)
			return nil
		})
		return err
	})
}

func (s *RedisRefreshStore) Get(ctx context.Context, id string) (*RefreshRecord, error) {
	data, err := redisclient.Do(s.c, func(rdb redis.UniversalClient) ([]byte, error) {
		return rdb.Get(ctx, s.recordKey(id)).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec RefreshRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh record: %w", err)
	}
	return &rec, nil
}

// revokeOne flips Revoked under WATCH so only one caller wins.
func (s *RedisRefreshStore) revokeOne(ctx context.Context, rdb redis.UniversalClient, id string) (bool, error) {
	key := s.recordKey(id)
	won := false
	err := rdb.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		var rec RefreshRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		if rec.Revoked {
			return nil
		}
		rec.Revoked = true
		updated, err := json.Marshal(&rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err == nil {
			won = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return won, err
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, id string) (bool, error) {
	won, err := redisclient.Do(s.c, func(rdb redis.UniversalClient) (bool, error) {
		return s.revokeOne(ctx, rdb, id)
	})
	if errors.Is(err, redis.Nil) {
		return false, ErrRefreshNotFound
	}
	return won, err
}

func (s *RedisRefreshStore) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	return s.revokeSet(ctx, s.familyKey(familyID))
}

func (s *RedisRefreshStore) RevokeUser(ctx context.Context, username string) (int, error) {
	return s.revokeSet(ctx, s.userKey(username))
}

func (s *RedisRefreshStore) revokeSet(ctx context.Context, setKey string) (int, error) {
	return redisclient.Do(s.c, func(rdb redis.UniversalClient) (int, error) {
		ids, err := rdb.SMembers(ctx, setKey).Result()
		if err != nil {
			return 0, err
		}
		n := 0
		for _, id := range ids {
			won, err := s.revokeOne(ctx, rdb, id)
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return n, err
			}
			if won {
				n++
			}
		}
		return n, nil
	})
}

func (s *RedisRefreshStore) SetUserMark(ctx context.Context, username string, at time.Time, ttl time.Duration) error {
	return s.c.Exec(func(rdb redis.UniversalClient) error {
		return rdb.Set(ctx, s.markKey(username), strconv.FormatInt(at.UnixNano(), 10), ttl).Err()
	})
}

func (s *RedisRefreshStore) UserMark(ctx context.Context, username string) (time.Time, error) {
	v, err := redisclient.Do(s.c, func(rdb redis.UniversalClient) (int64, error) {
		return rdb.Get(ctx, s.markKey(username)).Int64()
	})
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, v), nil
}

// CleanupExpired is a no-op: Redis expires records and indexes itself.
func (s *RedisRefreshStore) CleanupExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}
