// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

// Package redisclient wraps go-redis with a circuit breaker and key
// namespacing. Every call either runs against Redis or fails fast with
// ErrUnavailable; callers treat that as a closed gate.
package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/logging"
	"github.com/tomtom215/reelgate/internal/metrics"
)

// ErrUnavailable is returned when the breaker is open or Redis fails.
var ErrUnavailable = errors.New("redis unavailable")

// Client is a breaker-protected Redis client.
type Client struct {
	rdb    redis.UniversalClient
	cb     *gobreaker.CircuitBreaker[any]
	prefix string
	name   string
}

// New connects to Redis and verifies the connection with a PING.
func New(ctx context.Context, cfg config.RedisConfig, name string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		DialTimeout:     cfg.DialTimeout,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		PoolSize:        10,
		MinIdleConns:    2,
		MaxRetries:      1,
		ConnMaxIdleTime: 5 * time.Minute,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	logging.Info().Str("addr", cfg.Addr).Str("component", name).Msg("Connected to Redis")
	return Wrap(rdb, cfg, name), nil
}

// Wrap builds a Client around an existing go-redis client.
func Wrap(rdb redis.UniversalClient, cfg config.RedisConfig, name string) *Client {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	breakerName := "redis-" + name

	metrics.BreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A missing key is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state transition")
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{rdb: rdb, cb: cb, prefix: cfg.KeyPrefix, name: breakerName}
}

// Key prefixes parts with the configured namespace.
func (c *Client) Key(parts ...string) string {
	k := c.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// Redis exposes the raw client for callers that build pipelines inside Do.
func (c *Client) Redis() redis.UniversalClient { return c.rdb }

// State returns the breaker state.
func (c *Client) State() gobreaker.State { return c.cb.State() }

// Exec runs fn through the breaker. Breaker rejections and transport errors
// both wrap ErrUnavailable; redis.Nil passes through unchanged.
func (c *Client) Exec(fn func(rdb redis.UniversalClient) error) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, fn(c.rdb)
	})
	return c.wrap(err)
}

// Do runs fn through the breaker and returns its typed result.
func Do[T any](c *Client, fn func(rdb redis.UniversalClient) (T, error)) (T, error) {
	var zero T
	res, err := c.cb.Execute(func() (any, error) {
		return fn(c.rdb)
	})
	if err != nil {
		return zero, c.wrap(err)
	}
	v, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("redis %s: unexpected result type %T", c.name, res)
	}
	return v, nil
}

func (c *Client) wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("%w: %s breaker %v", ErrUnavailable, c.name, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
