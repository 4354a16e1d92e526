// Reelgate - Video Aggregation Authentication and Permission Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelgate

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/reelgate/internal/config"
	"github.com/tomtom215/reelgate/internal/redisclient"
)

const (
	// DefaultRedisImage is the image started by NewRedisContainer.
	DefaultRedisImage = "redis:7-alpine"
	// DefaultRedisPort is the port Redis listens on inside the container.
	DefaultRedisPort = "6379"
)

// RedisContainer is a running Redis for tests.
type RedisContainer struct {
	Container testcontainers.Container
	Addr      string
}

type redisConfig struct {
	image        string
	startTimeout time.Duration
}

// RedisOption configures NewRedisContainer.
type RedisOption func(*redisConfig)

// WithRedisImage overrides the Redis image.
func WithRedisImage(image string) RedisOption {
	return func(c *redisConfig) {
		c.image = image
	}
}

// WithStartTimeout sets how long to wait for Redis to accept connections.
func WithStartTimeout(timeout time.Duration) RedisOption {
	return func(c *redisConfig) {
		c.startTimeout = timeout
	}
}

// NewRedisContainer starts Redis and waits until it answers PING.
func NewRedisContainer(ctx context.Context, opts ...RedisOption) (*RedisContainer, error) {
	cfg := &redisConfig{
		image:        DefaultRedisImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultRedisPort + "/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultRedisPort+"/tcp"),
			wait.ForLog("Ready to accept connections"),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, DefaultRedisPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}
	addr := fmt.Sprintf("%s:%s", host, port.Port())

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	ready := WaitForReady(ctx, func() bool {
		return rdb.Ping(ctx).Err() == nil
	}, cfg.startTimeout)
	if ready != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("redis not ready: %w", ready)
	}

	return &RedisContainer{Container: container, Addr: addr}, nil
}

// Client connects a breaker-wrapped client to the container. Each test gets
// its own key prefix so tests sharing a container do not collide.
func (c *RedisContainer) Client(t *testing.T, name string) *redisclient.Client {
	t.Helper()

	client, err := redisclient.New(context.Background(), config.RedisConfig{
		Addr:        c.Addr,
		DialTimeout: 2 * time.Second,
		KeyPrefix:   fmt.Sprintf("test-%s-%d:", name, time.Now().UnixNano()),
	}, name)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
