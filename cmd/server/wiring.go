// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/reelgate/internal/api"
	"github.com/tomtom215/reelgate/internal/auth"
	"github.com/tomtom215/reelgate/internal/authz"
	"github.com/tomtom215/reelgate/internal/cache"
	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/models"
	"github.com/tomtom215/reelgate/internal/redisclient"
	"github.com/tomtom215/reelgate/internal/store"
	"github.com/tomtom215/reelgate/internal/supervisor/services"
	"github.com/tomtom215/reelgate/internal/tvbox"
)

var errNoRedis = errors.New("redis backend selected without a client")

// resources holds what must be closed on exit, in reverse open order.
type resources struct {
	redis   *redisclient.Client
	store   store.Store
	refresh *auth.BadgerRefreshStore
}

func (r *resources) close() {
	if r.refresh != nil {
		if err := r.refresh.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close refresh store")
		}
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close credential store")
		}
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close redis client")
		}
	}
}

func openRedis(ctx context.Context, cfg *config.Config) (*redisclient.Client, error) {
	c, err := redisclient.New(ctx, cfg.Redis, "reelgate")
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// seedSnapshot is written by a store that holds no configuration yet.
func seedSnapshot(cfg *config.Config) *models.ConfigSnapshot {
	seed := models.NewConfigSnapshot()
	seed.Site = models.SiteConfig{
		Name:              cfg.Registration.SiteName,
		AllowRegistration: cfg.Registration.Enabled,
		RequireApproval:   cfg.Registration.RequireApproval,
	}
	return seed
}

func openStore(cfg *config.Config, hasher auth.BcryptHasher) (store.Store, error) {
	opts := store.Options{Hasher: hasher, Seed: seedSnapshot(cfg)}
	if cfg.Store.Path == "" {
		logging.Warn().Msg("STORE_PATH is empty; users and permissions are kept in memory only")
		return store.NewMemoryStore(opts), nil
	}
	st, err := store.OpenBadgerStore(cfg.Store.Path, cfg.Store.SyncWrites, opts)
	if err != nil {
		return nil, fmt.Errorf("credential store: %w", err)
	}
	logging.Info().Str("path", cfg.Store.Path).Msg("Opened credential store")
	return st, nil
}

func openRefreshStore(cfg *config.Config, res *resources) (auth.RefreshStore, error) {
	switch cfg.Security.RefreshStore {
	case config.BackendBadger:
		s, err := auth.OpenBadgerRefreshStore(cfg.Security.RefreshStorePath)
		if err != nil {
			return nil, fmt.Errorf("refresh store: %w", err)
		}
		res.refresh = s
		return s, nil
	case config.BackendRedis:
		if res.redis == nil {
			return nil, errNoRedis
		}
		return auth.NewRedisRefreshStore(res.redis), nil
	default:
		return auth.NewMemoryRefreshStore(), nil
	}
}

// boxLimiter returns the configured limiter, and the memory limiter again
// when it needs sweeping.
func boxLimiter(cfg *config.Config, res *resources) (tvbox.Limiter, *tvbox.MemoryLimiter) {
	if cfg.TVBox.Limiter == config.BackendRedis {
		return tvbox.NewRedisLimiter(res.redis, cfg.TVBox.Window), nil
	}
	mem := tvbox.NewMemoryLimiter(cfg.TVBox.Window)
	return mem, mem
}

func readinessChecks(res *resources) []api.ReadinessCheck {
	if res.redis == nil {
		return nil
	}
	c := res.redis
	return []api.ReadinessCheck{{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return c.Exec(func(rdb redis.UniversalClient) error {
				return rdb.Ping(ctx).Err()
			})
		},
	}}
}

// janitorDeps are the components with periodic cleanup. Nil fields are skipped.
type janitorDeps struct {
	identities *cache.Cache
	codec      *auth.TokenCodec
	lockout    *auth.LockoutManager
	loginRL    *auth.IPRateLimiter
	boxes      *tvbox.MemoryLimiter
	enforcer   *authz.Enforcer
}

// loginBucketIdle is how long an idle login bucket is kept. A full bucket
// refills well within it.
const loginBucketIdle = 30 * time.Minute

func janitorTasks(d janitorDeps) []services.SweepTask {
	var tasks []services.SweepTask
	if d.identities != nil {
		tasks = append(tasks, services.SweepTask{Name: "identity_cache", Run: func(context.Context) (int, error) {
			return d.identities.Sweep(), nil
		}})
	}
	if d.codec != nil {
		tasks = append(tasks, services.SweepTask{Name: "refresh_tokens", Run: d.codec.CleanupExpired})
	}
	if d.lockout != nil {
		tasks = append(tasks, services.SweepTask{Name: "lockout", Run: func(ctx context.Context) (int, error) {
			return 0, d.lockout.Cleanup(ctx)
		}})
	}
	if d.loginRL != nil {
		tasks = append(tasks, services.SweepTask{Name: "login_limiter", Run: func(context.Context) (int, error) {
			return d.loginRL.Sweep(loginBucketIdle), nil
		}})
	}
	if d.boxes != nil {
		tasks = append(tasks, services.SweepTask{Name: "tvbox_limiter", Run: func(context.Context) (int, error) {
			return d.boxes.Sweep(), nil
		}})
	}
	if d.enforcer != nil {
		tasks = append(tasks, services.SweepTask{Name: "policy_cache", Run: func(context.Context) (int, error) {
			return d.enforcer.Sweep(), nil
		}})
	}
	return tasks
}

// janitorInterval is the shortest configured sweep interval.
func janitorInterval(cfg *config.Config) time.Duration {
	interval := cfg.TVBox.SweepInterval
	if li := cfg.Security.Lockout.CleanupInterval; li > 0 && (interval <= 0 || li < interval) {
		interval = li
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}
